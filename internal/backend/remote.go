package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"TradeAi/internal/session"
)

// frame is one websocket message of the streaming endpoint
type frame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

const (
	frameContent     = "content"
	frameThought     = "thought"
	frameObservation = "observation"
	frameEnd         = "end"
	frameError       = "error"
)

// Remote talks to the TradeAi API: REST for threads and messages, a websocket for the
// streaming answer
type Remote struct {
	baseURL    string
	streamURL  string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// NewRemote creates a client for the API at baseURL streaming from streamURL
func NewRemote(baseURL, streamURL string, logger *slog.Logger) (*Remote, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("api url cannot be empty")
	}
	if streamURL == "" {
		return nil, fmt.Errorf("stream url cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		baseURL:   strings.TrimRight(baseURL, "/"),
		streamURL: streamURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}, nil
}

// ListThreads returns the user's threads, newest first as the API orders them
func (r *Remote) ListThreads(ctx context.Context, userKey string) ([]session.Thread, error) {
	path := "/threads?user_key=" + url.QueryEscape(userKey)
	threads, err := call[[]session.Thread](ctx, r, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// DeleteThreads removes threads in one batch
func (r *Remote) DeleteThreads(ctx context.Context, threadIDs []string) error {
	body := map[string][]string{"thread_ids": threadIDs}
	if _, err := call[json.RawMessage](ctx, r, http.MethodPost, "/threads/delete", body); err != nil {
		return fmt.Errorf("failed to delete threads: %w", err)
	}
	r.logger.Info("deleted threads", "count", len(threadIDs))
	return nil
}

// GetMessages returns a thread's transcript in order
func (r *Remote) GetMessages(ctx context.Context, threadID string) ([]session.Message, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	msgs, err := call[[]session.Message](ctx, r, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return msgs, nil
}

// RateMessage sends a good or bad verdict with an optional note
func (r *Remote) RateMessage(ctx context.Context, messageID string, verdict session.Feedback, note string) error {
	path := "/messages/" + url.PathEscape(messageID) + "/feedback"
	body := map[string]string{"feedback": string(verdict), "note": note}
	if _, err := call[json.RawMessage](ctx, r, http.MethodPost, path, body); err != nil {
		return fmt.Errorf("failed to rate message: %w", err)
	}
	return nil
}

// DeleteMessage removes one message
func (r *Remote) DeleteMessage(ctx context.Context, messageID string) error {
	path := "/messages/" + url.PathEscape(messageID)
	if _, err := call[json.RawMessage](ctx, r, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// SendMessage streams the answer over the websocket endpoint
func (r *Remote) SendMessage(ctx context.Context, req SendRequest) (<-chan StreamEvent, error) {
	return r.Stream(ctx, req)
}

// Stream dials the streaming endpoint, sends req and relays frames until end, error or
// cancellation. Cancelling ctx closes the connection.
func (r *Remote) Stream(ctx context.Context, req SendRequest) (<-chan StreamEvent, error) {
	conn, _, err := r.dialer.DialContext(ctx, r.streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer conn.Close()
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				if ctx.Err() != nil {
					return
				}
				send(ctx, events, Failure(fmt.Errorf("failed to read frame: %w", err)))
				return
			}

			var ev StreamEvent
			switch f.Type {
			case frameContent:
				ev = Delta(session.DeltaContent, f.Text)
			case frameThought:
				ev = Delta(session.DeltaThought, f.Text)
			case frameObservation:
				ev = Delta(session.DeltaObservation, f.Text)
			case frameEnd:
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				send(ctx, events, End())
				return
			case frameError:
				send(ctx, events, Failure(fmt.Errorf("%w: %s", ErrRejected, f.Text)))
				return
			default:
				r.logger.Warn("ignoring unknown stream frame", "type", f.Type)
				continue
			}
			if !send(ctx, events, ev) {
				return
			}
		}
	}()
	return events, nil
}

// call performs one REST request and opens the answer envelope
func call[T any](ctx context.Context, r *Remote, method, path string, body any) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return zero, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return zero, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return zero, fmt.Errorf("failed to read response: %w", err)
	}

	var env Envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return zero, fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(data))
		}
		return zero, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	result, err := env.Result()
	if err != nil {
		return zero, err
	}
	if httpResp.StatusCode != http.StatusOK {
		return zero, errors.Join(ErrRejected, fmt.Errorf("HTTP error %d", httpResp.StatusCode))
	}
	return result, nil
}
