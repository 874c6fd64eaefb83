package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/gymsheets/internal/telemetry/tracing"
)

const (
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultExtractionModel = "gpt-4o-mini"
	DefaultAdviceModel     = "gpt-5-mini"
	DefaultRequestTimeout  = 60 * time.Second

	maxResponseBytes = 4 << 20
)

var (
	ErrNoAPIKey    = errors.New("openai api key not set")
	ErrNoChoices   = errors.New("no choices in completion")
	ErrEmptyAnswer = errors.New("empty completion content")
)

// chatCompleter returns the JSON content of one chat completion.
type chatCompleter interface {
	CompleteJSON(ctx context.Context, model, systemPrompt, userPrompt string) ([]byte, error)
}

// Client talks to an OpenAI compatible chat completions endpoint and always
// asks for a JSON object answer.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) CompleteJSON(ctx context.Context, model, systemPrompt, userPrompt string) (_ []byte, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "assistant.client.complete")
	defer func() { tracing.EndSpanWithErrCheck(span, err) }()

	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	reqBody.ResponseFormat.Type = "json_object"

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Debugf("chat completion [%s] failed: %s", model, respBytes)
		return nil, fmt.Errorf("chat completion returned %d", resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBytes, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal completion response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	content := stripCodeFence(chatResp.Choices[0].Message.Content)
	if content == "" {
		return nil, ErrEmptyAnswer
	}
	return []byte(content), nil
}

// stripCodeFence removes a markdown fence some models wrap around JSON answers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
