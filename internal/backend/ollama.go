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
	"strings"

	"TradeAi/internal/session"
)

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
	Think    bool                `json:"think,omitempty"`
}

// OllamaResponse is one NDJSON line of a streaming /api/chat answer
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role     string `json:"role"`
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Ollama streams answers from a local Ollama server. Thinking output becomes thought
// deltas, the answer becomes content deltas.
type Ollama struct {
	url        string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllama creates a streamer for the server at url
func NewOllama(url, model string, logger *slog.Logger) *Ollama {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{
		url:        strings.TrimRight(url, "/"),
		model:      model,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Stream posts the transcript to /api/chat and relays the NDJSON lines
func (o *Ollama) Stream(ctx context.Context, req SendRequest) (<-chan StreamEvent, error) {
	reqBody := OllamaRequest{
		Model:    o.model,
		Messages: historyMessages(req),
		Stream:   true,
		Think:    true,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama API: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		dec := json.NewDecoder(resp.Body)
		for {
			var line OllamaResponse
			if err := dec.Decode(&line); err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				send(ctx, events, Failure(fmt.Errorf("failed to decode Ollama stream: %w", err)))
				return
			}
			if line.Error != "" {
				send(ctx, events, Failure(fmt.Errorf("%w: %s", ErrRejected, line.Error)))
				return
			}
			if line.Message.Thinking != "" && !send(ctx, events, Delta(session.DeltaThought, line.Message.Thinking)) {
				return
			}
			if line.Message.Content != "" && !send(ctx, events, Delta(session.DeltaContent, line.Message.Content)) {
				return
			}
			if line.Done {
				send(ctx, events, End())
				return
			}
		}
	}()

	o.logger.Debug("started Ollama stream", "model", o.model, "thread_id", req.ThreadID)
	return events, nil
}

// historyMessages flattens the transcript into chat messages ending with the new turn
func historyMessages(req SendRequest) []map[string]string {
	msgs := make([]map[string]string, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.Content == "" {
			continue
		}
		msgs = append(msgs, map[string]string{"role": string(m.Role), "content": m.Content})
	}
	return append(msgs, map[string]string{"role": string(session.RoleUser), "content": req.Text})
}
