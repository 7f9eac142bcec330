package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"TradeAi/internal/session"
)

// Anthropic streams answers from the Messages API with extended thinking enabled.
// Thinking deltas become thought deltas; text deltas become content.
type Anthropic struct {
	client         anthropic.Client
	model          string
	maxTokens      int64
	thinkingBudget int64
	logger         *slog.Logger
}

// NewAnthropic creates a streamer. Extra options are passed to the SDK client.
func NewAnthropic(apiKey, model string, maxTokens, thinkingBudget int64, logger *slog.Logger, opts ...option.RequestOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Anthropic{
		client:         anthropic.NewClient(opts...),
		model:          model,
		maxTokens:      maxTokens,
		thinkingBudget: thinkingBudget,
		logger:         logger,
	}, nil
}

// Stream opens a streaming Messages request and relays its deltas
func (a *Anthropic) Stream(ctx context.Context, req SendRequest) (<-chan StreamEvent, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  a.buildMessages(req),
	}
	if a.thinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(a.thinkingBudget)
	}

	stream := a.client.Messages.NewStreaming(ctx, params)

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}

			var ev StreamEvent
			switch d := delta.Delta.AsAny().(type) {
			case anthropic.ThinkingDelta:
				ev = Delta(session.DeltaThought, d.Thinking)
			case anthropic.TextDelta:
				ev = Delta(session.DeltaContent, d.Text)
			default:
				continue
			}
			if !send(ctx, events, ev) {
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		if err := stream.Err(); err != nil {
			send(ctx, events, Failure(fmt.Errorf("anthropic stream failed: %w", err)))
			return
		}
		send(ctx, events, End())
	}()

	a.logger.Debug("started Anthropic stream", "model", a.model, "thread_id", req.ThreadID)
	return events, nil
}

func (a *Anthropic) buildMessages(req SendRequest) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.Content == "" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == session.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	return append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Text)))
}
