package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"arena-service/internal/service/match"
	appErr "arena-service/pkg/errors"
)

// HTTPBackend drives a peer queue node through its internal cluster
// endpoints (see internal/api). The per-call context carries the
// deadline; the client timeout is just a backstop.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

func (b *HTTPBackend) Enqueue(ctx context.Context, playerID string) (match.QueueResult, error) {
	var result match.QueueResult
	err := b.call(ctx, http.MethodPost, "/internal/queue/join",
		map[string]string{"playerId": playerID}, &result)
	return result, err
}

func (b *HTTPBackend) Rehome(ctx context.Context, playerID string) (match.QueueResult, error) {
	var result match.QueueResult
	err := b.call(ctx, http.MethodPost, "/internal/queue/rehome",
		map[string]string{"playerId": playerID}, &result)
	return result, err
}

func (b *HTTPBackend) Withdraw(ctx context.Context, playerID string) error {
	return b.call(ctx, http.MethodPost, "/internal/queue/leave",
		map[string]string{"playerId": playerID}, nil)
}

func (b *HTTPBackend) Players(ctx context.Context) ([]string, error) {
	var payload struct {
		Players []string `json:"players"`
	}
	if err := b.call(ctx, http.MethodGet, "/internal/queue/players", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Players, nil
}

func (b *HTTPBackend) Ping(ctx context.Context) error {
	return b.call(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (b *HTTPBackend) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrNodeUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: bad response", appErr.ErrNodeUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		return remoteError(resp.StatusCode, env.Msg)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// remoteError maps peer HTTP statuses back onto the sentinels the
// router branches on.
func remoteError(status int, msg string) error {
	switch status {
	case http.StatusConflict:
		return appErr.ErrAlreadyInQueue
	case http.StatusNotFound:
		return appErr.ErrPlayerNotFound
	case http.StatusBadRequest:
		return appErr.ErrRegionUnavailable
	default:
		return fmt.Errorf("%w: %s", appErr.ErrNodeUnavailable, msg)
	}
}
