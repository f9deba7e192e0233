package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the external component compiler service. Lesson authors
// upload component source; the service returns browser-ready JS that is then
// stored next to the source.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

var ErrNotConfigured = errors.New("compiler service not configured")

// CompileError carries the compiler's diagnostic for a 4xx response so the
// upload handler can surface it to the author.
type CompileError struct {
	Message string
}

func (e *CompileError) Error() string {
	return "compile error: " + e.Message
}

type compileRequest struct {
	Filename string `json:"filename"`
	Source   string `json:"source"`
}

type compileResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (c *Client) Compile(ctx context.Context, filename, source string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(compileRequest{Filename: filename, Source: source})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/compile", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed compileResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("compiler response: %w", err)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		message := parsed.Error
		if message == "" {
			message = "failed to compile component"
		}
		return nil, &CompileError{Message: message}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("compiler status %d", resp.StatusCode)
	}
	if parsed.Code == "" {
		return nil, &CompileError{Message: "compiler returned no output"}
	}
	return []byte(parsed.Code), nil
}
