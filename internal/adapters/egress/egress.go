// Package egress is the HTTP client for the external recording service:
// start returns an egress id, stop closes the segment.
package egress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"liveclass/internal/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type startRequest struct {
	SessionID domain.SessionID `json:"sessionId"`
	RoomName  domain.RoomName  `json:"roomName"`
}

type startResponse struct {
	EgressID string `json:"egressId"`
}

type stopRequest struct {
	EgressID  string           `json:"egressId"`
	SessionID domain.SessionID `json:"sessionId"`
}

func (c *Client) StartEgress(ctx context.Context, sessionID domain.SessionID, room domain.RoomName) (string, error) {
	var resp startResponse
	if err := c.post(ctx, "/egress/start", startRequest{SessionID: sessionID, RoomName: room}, &resp); err != nil {
		return "", fmt.Errorf("start egress: %w", err)
	}
	if resp.EgressID == "" {
		return "", fmt.Errorf("start egress: empty egress id")
	}
	return resp.EgressID, nil
}

func (c *Client) StopEgress(ctx context.Context, egressID string, sessionID domain.SessionID) error {
	if err := c.post(ctx, "/egress/stop", stopRequest{EgressID: egressID, SessionID: sessionID}, nil); err != nil {
		return fmt.Errorf("stop egress: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
