// Package api is the JSON-over-HTTP client for the remote storefront service.
//
// Responses are accepted either bare or wrapped in a {"data": ...} envelope;
// error bodies are expected to carry a "message".
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"storefront/internal/apperr"
)

// Doer issues a request. *http.Client and the session guard both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	baseURL string
	doer    Doer
}

func NewClient(baseURL string, doer Doer) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		doer:    doer,
	}
}

// With returns a copy of the client that sends requests through doer.
func (c *Client) With(doer Doer) *Client {
	return &Client{
		baseURL: c.baseURL,
		doer:    doer,
	}
}

func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		if errors.Is(err, apperr.ErrSessionExpired) {
			return err
		}
		return apperr.Unavailable(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Unavailable("read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperr.RemoteError{
			Status:  resp.StatusCode,
			Message: errorMessage(data),
		}
	}

	if out == nil {
		return nil
	}

	if err := DecodeData(data, out); err != nil {
		return apperr.Unavailable("decode response", err)
	}
	return nil
}

// DecodeData unmarshals the "data" member of an envelope into out, or the
// whole document when there is no envelope.
func DecodeData(data []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}

	payload := data
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		payload = envelope.Data
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode body: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
