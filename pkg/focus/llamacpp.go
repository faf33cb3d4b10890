package focus

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLlamaCppURL is where llama-server listens by default
const DefaultLlamaCppURL = "http://localhost:8080"

// LlamaCpp asks a llama.cpp server through its OpenAI-compatible chat
// endpoint where the subject is
type LlamaCpp struct {
	baseURL    string
	model      string
	prompt     string
	httpClient *http.Client
}

// OpenAI-compatible message format
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewLlamaCpp creates a finder for the llama.cpp server at rawURL. An empty
// URL means DefaultLlamaCppURL; the model name is passed through as is.
func NewLlamaCpp(rawURL, model string) (*LlamaCpp, error) {
	if rawURL == "" {
		rawURL = DefaultLlamaCppURL
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}

	return &LlamaCpp{
		baseURL:    strings.TrimSuffix(rawURL, "/"),
		model:      model,
		prompt:     DefaultPrompt,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Find returns the centre of the subject box in img's pixel space
func (l *LlamaCpp) Find(ctx context.Context, img image.Image) (image.Point, error) {
	subject, err := l.Locate(ctx, img)
	if err != nil {
		return image.Point{}, err
	}
	return subject.Box.Center(img.Bounds().Dx(), img.Bounds().Dy()), nil
}

// Locate sends img to the server and returns the normalized subject
func (l *LlamaCpp) Locate(ctx context.Context, img image.Image) (Subject, error) {
	upload, err := encodeUpload(img)
	if err != nil {
		return Subject{}, err
	}

	req := chatCompletionRequest{
		Model: l.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: l.prompt},
					{Type: "image_url", ImageURL: &imageURL{
						URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(upload),
					}},
				},
			},
		},
		Temperature: 0.1,
		MaxTokens:   512,
	}

	body, err := l.send(ctx, "/v1/chat/completions", req)
	if err != nil {
		return Subject{}, err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Subject{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Subject{}, errors.New("no choices in response")
	}

	text := messageText(resp.Choices[0].Message.Content)
	if text == "" {
		return Subject{}, errors.New("empty response from llama.cpp server")
	}

	subject := parseSubject(text)
	subject.Box = normalizeBox(subject.Box)

	zerolog.Ctx(ctx).Debug().
		Str("model", l.model).
		Str("label", subject.Label).
		Float64("confidence", subject.Confidence).
		Msg("llama.cpp focus")

	return subject, nil
}

func (l *LlamaCpp) send(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// messageText extracts the reply from string or content-part messages
func messageText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		for _, item := range c {
			if part, ok := item.(map[string]any); ok {
				if text, ok := part["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}
