package assistant

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// looseString accepts strings, numbers, booleans and null. Models are not
// consistent about quoting values like reps or weight.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, string(data) == "null":
		*s = ""
	case data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = looseString(str)
	case data[0] == '[', data[0] == '{':
		// nested values are not usable as text
		*s = ""
	default:
		if f, err := strconv.ParseFloat(string(data), 64); err == nil {
			*s = looseString(strconv.FormatFloat(f, 'f', -1, 64))
			return nil
		}
		*s = looseString(data)
	}
	return nil
}

func (s looseString) or(fallback string) string {
	if s == "" {
		return fallback
	}
	return string(s)
}

// looseStrings accepts a list of loose strings, a single string, or null.
type looseStrings []string

func (l *looseStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		var single looseString
		if err := single.UnmarshalJSON(data); err != nil {
			return err
		}
		if single == "" {
			*l = nil
		} else {
			*l = looseStrings{string(single)}
		}
		return nil
	}

	var items []looseString
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(looseStrings, 0, len(items))
	for _, item := range items {
		if item != "" {
			out = append(out, string(item))
		}
	}
	*l = out
	return nil
}
