package conversync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/consultline/conversync/wire"
)

// APIClient talks to the platform REST API. It works independently of
// the live gateway connection — history and takeover reads need no
// socket.
type APIClient struct {
	base       string
	token      string
	httpClient *http.Client
}

// NewAPIClient creates a REST client for the configured base URL.
func NewAPIClient(cfg Config) *APIClient {
	return &APIClient{
		base:       cfg.APIEndpoint,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// History fetches the persisted message history for a conversation.
func (c *APIClient) History(ctx context.Context, conversationID string) ([]wire.MessagePayload, error) {
	body, err := c.request(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil)
	if err != nil {
		return nil, err
	}
	var resp wire.HistoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return resp.Messages, nil
}

// PostMessage persists an outbound message. The response echoes the
// submitted localId alongside the server-assigned id and timestamp.
func (c *APIClient) PostMessage(ctx context.Context, req wire.PostMessageRequest) (wire.PostMessageResponse, error) {
	body, err := c.request(ctx, http.MethodPost, "/messages", req)
	if err != nil {
		return wire.PostMessageResponse{}, err
	}
	var resp wire.PostMessageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return wire.PostMessageResponse{}, fmt.Errorf("decode message response: %w", err)
	}
	return resp, nil
}

// GetTakeover reads the server-held takeover assignment.
func (c *APIClient) GetTakeover(ctx context.Context, conversationID string) (TakeoverStatus, error) {
	body, err := c.request(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/takeover", nil)
	if err != nil {
		return "", err
	}
	var resp wire.TakeoverResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode takeover response: %w", err)
	}
	return TakeoverStatus(resp.Status), nil
}

// SetTakeover requests a takeover transition. The server confirms or
// rejects; the caller must not flip local state until this returns nil.
func (c *APIClient) SetTakeover(ctx context.Context, conversationID string, status TakeoverStatus) error {
	_, err := c.request(ctx, http.MethodPost,
		"/conversations/"+url.PathEscape(conversationID)+"/takeover",
		wire.TakeoverRequest{Status: string(status)})
	return err
}

// MarkImportant toggles the important flag on a persisted message.
func (c *APIClient) MarkImportant(ctx context.Context, messageID string, important bool) error {
	_, err := c.request(ctx, http.MethodPost,
		"/messages/"+url.PathEscape(messageID)+"/important",
		wire.ImportantRequest{Important: important})
	return err
}

func (c *APIClient) request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api %s %s: %d %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
