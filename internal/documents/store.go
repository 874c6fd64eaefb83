package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidKey       = errors.New("invalid document key")
)

// Document is a stored source document opened for reading. Callers close Content.
type Document struct {
	Key         string
	Name        string
	ContentType string
	Size        int64
	ModTime     time.Time
	Content     io.ReadSeekCloser
}

type PutParams struct {
	Owner       string
	Filename    string
	ContentType string
	Size        int64
	File        io.Reader
}

// Store keeps uploaded source documents under their owner's prefix.
type Store interface {
	Put(ctx context.Context, params PutParams) (key string, err error)
	Get(ctx context.Context, owner, key string) (*Document, error)
	Delete(ctx context.Context, owner, key string) error
}

// newKey builds "<uuid>_<sanitized name>", the original name stays readable in listings.
func newKey(filename string) string {
	return uuid.NewString() + "_" + sanitizeFilename(filename)
}

// nameFromKey returns the original (sanitized) file name of a key.
func nameFromKey(key string) string {
	if _, name, found := strings.Cut(key, "_"); found && name != "" {
		return name
	}
	return key
}

func sanitizeFilename(filename string) string {
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range filename {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "document"
	}
	return name
}

func validatePathPart(part string) error {
	if part == "" || part == "." || part == ".." || strings.ContainsAny(part, "/\\") {
		return fmt.Errorf("%w: [%s]", ErrInvalidKey, part)
	}
	return nil
}

func objectName(owner, key string) (string, error) {
	if err := validatePathPart(owner); err != nil {
		return "", err
	}
	if err := validatePathPart(key); err != nil {
		return "", err
	}
	return owner + "/" + key, nil
}
