package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"TradeAi/internal/backend"
	"TradeAi/internal/cache"
	"TradeAi/internal/config"
	"TradeAi/internal/frame"
	"TradeAi/internal/session"
	"TradeAi/internal/store"
	"TradeAi/internal/telemetry"
	"TradeAi/internal/thought"
)

// shortID is how many characters of a message or thread ID the REPL prints
const shortID = 8

// ChatBot is the terminal front end of a Conversation. Answers are printed as they
// stream, while the input loop keeps reading so /cancel works mid-answer.
type ChatBot struct {
	config config.Config
	logger *slog.Logger
	svc    backend.Service
	conv   *Conversation
	in     io.Reader
	out    io.Writer

	closers   []func()
	closeOnce sync.Once

	// idle is signalled when an answer stops streaming
	idle chan struct{}

	mu         sync.Mutex
	lastState  State
	inFlightID string
	printed    int
	lastLabel  string
	lastStep   string
	errShown   bool
}

// NewChatBot creates a new chat bot instance
func NewChatBot(cfg config.Config) (*ChatBot, error) {
	logger, logCloser, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	closers := []func(){func() { logCloser.Close() }}
	fail := func(err error) (*ChatBot, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	ctx := context.Background()
	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Settings{
		LogDir:            cfg.LogDir,
		Enabled:           cfg.Telemetry.Enabled,
		MetricInterval:    cfg.MetricInterval(),
		TraceBatchTimeout: cfg.TraceBatchTimeout(),
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize telemetry: %w", err))
	}
	closers = append(closers, shutdown)

	segments, err := cache.NewSegments(cfg.CacheMaxItems)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize segment cache: %w", err))
	}
	closers = append(closers, segments.Close)

	svc, closeSvc, err := buildService(cfg, logger)
	if err != nil {
		return fail(err)
	}
	if closeSvc != nil {
		closers = append(closers, closeSvc)
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	conv := NewConversation(svc, frame.NewSystem(cfg.FrameInterval()), cfg,
		WithSegments(segments),
		WithTracer(tracer),
		WithInstruments(telemetry.NewInstruments(meter, logger)),
		WithLogger(logger),
	)
	if cfg.ThreadID != "" {
		if err := conv.SwitchThread(ctx, cfg.ThreadID); err != nil {
			logger.Warn("failed to load thread, starting a new one", "thread_id", cfg.ThreadID, "error", err)
		} else {
			logger.Info("loaded existing thread", "thread_id", cfg.ThreadID)
		}
	}

	cb := newChatBot(cfg, svc, conv, os.Stdin, os.Stdout, logger)
	cb.closers = closers
	return cb, nil
}

// newChatBot wires a REPL around an existing conversation
func newChatBot(cfg config.Config, svc backend.Service, conv *Conversation, in io.Reader, out io.Writer, logger *slog.Logger) *ChatBot {
	if logger == nil {
		logger = slog.Default()
	}
	cb := &ChatBot{
		config: cfg,
		logger: logger,
		svc:    svc,
		conv:   conv,
		in:     in,
		out:    out,
		idle:   make(chan struct{}, 1),
	}
	conv.OnChange(cb.render)
	return cb
}

// buildService picks the backend. Local backends persist into SQLite; the returned
// func closes the database.
func buildService(cfg config.Config, logger *slog.Logger) (backend.Service, func(), error) {
	if cfg.Backend == config.BackendRemote {
		remote, err := backend.NewRemote(cfg.APIURL, cfg.StreamURL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize remote backend: %w", err)
		}
		return remote, nil, nil
	}

	var streamer backend.Streamer
	switch cfg.Backend {
	case config.BackendOllama:
		streamer = backend.NewOllama(cfg.OllamaURL, cfg.OllamaModel, logger)
	case config.BackendAnthropic:
		a, err := backend.NewAnthropic(cfg.AnthropicKey, cfg.AnthropicModel, cfg.MaxOutputTokens, cfg.ThinkingBudget, logger)
		if err != nil {
			return nil, nil, err
		}
		streamer = a
	default:
		return nil, nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	local, err := backend.NewLocal(db, streamer, cfg.UserKey, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return local, func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}, nil
}

// Close stops the conversation and releases what NewChatBot opened
func (cb *ChatBot) Close() {
	cb.closeOnce.Do(func() {
		cb.conv.Close()
		for i := len(cb.closers) - 1; i >= 0; i-- {
			cb.closers[i]()
		}
	})
}

func (cb *ChatBot) printf(format string, args ...any) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	fmt.Fprintf(cb.out, format, args...)
}

// render prints what changed since the previous snapshot
func (cb *ChatBot) render(s Snapshot) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if s.InFlight != nil {
		if s.InFlight.ID != cb.inFlightID {
			cb.inFlightID = s.InFlight.ID
			cb.printed = 0
			cb.lastLabel = ""
			cb.lastStep = ""
			fmt.Fprint(cb.out, "\nTradeAi: ")
		}
		if s.ActiveAgentsLabel != "" && s.ActiveAgentsLabel != cb.lastLabel {
			cb.lastLabel = s.ActiveAgentsLabel
			fmt.Fprintf(cb.out, "[%s...]\n", s.ActiveAgentsLabel)
		}
		if step, ok := s.CurrentStep(); ok {
			line := fmt.Sprintf("[%s] %s", s.StepLabel(), describeStep(step))
			if line != cb.lastStep && s.InFlight.Content == "" {
				cb.lastStep = line
				fmt.Fprintln(cb.out, line)
			}
		}
		cb.printContentLocked(s.InFlight.Content)
	}

	if cb.lastState == StateStreaming && s.State != StateStreaming {
		if n := len(s.Messages); n > 0 && s.Messages[n-1].ID == cb.inFlightID {
			cb.printContentLocked(s.Messages[n-1].Content)
		}
		if s.State == StateCancelled {
			fmt.Fprint(cb.out, " [cancelled]")
		}
		fmt.Fprintln(cb.out)
		cb.inFlightID = ""
		select {
		case cb.idle <- struct{}{}:
		default:
		}
	}
	cb.lastState = s.State

	// a send can fail before any streaming snapshot is delivered
	if s.Err == nil {
		cb.errShown = false
	} else if !cb.errShown {
		cb.errShown = true
		fmt.Fprintf(cb.out, "Error: %v\n", s.Err)
	}
}

func (cb *ChatBot) printContentLocked(content string) {
	if len(content) > cb.printed {
		fmt.Fprint(cb.out, content[cb.printed:])
		cb.printed = len(content)
	}
}

// describeStep flattens a step to one line
func describeStep(step thought.Segment) string {
	if step.Kind != thought.KindStructured {
		return strings.TrimSpace(step.Text)
	}
	parts := make([]string, 0, len(step.Entries))
	for _, e := range step.Entries {
		parts = append(parts, e.Key+": "+e.Value)
	}
	return strings.Join(parts, "; ")
}

func short(id string) string {
	if len(id) > shortID {
		return id[:shortID]
	}
	return id
}

// resolveMessage finds the transcript message whose ID starts with prefix
func (cb *ChatBot) resolveMessage(prefix string) (session.Message, error) {
	var found []session.Message
	for _, m := range cb.conv.Snapshot().Messages {
		if strings.HasPrefix(m.ID, prefix) {
			found = append(found, m)
		}
	}
	switch len(found) {
	case 0:
		return session.Message{}, fmt.Errorf("%w: %s", session.ErrNotFound, prefix)
	case 1:
		return found[0], nil
	default:
		return session.Message{}, fmt.Errorf("message ID %q is ambiguous", prefix)
	}
}

// resolveThreads expands ID prefixes against the user's threads
func (cb *ChatBot) resolveThreads(ctx context.Context, prefixes []string) ([]string, error) {
	threads, err := cb.conv.Threads(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		var match string
		for _, t := range threads {
			if !strings.HasPrefix(t.ID, p) {
				continue
			}
			if match != "" {
				return nil, fmt.Errorf("thread ID %q is ambiguous", p)
			}
			match = t.ID
		}
		if match == "" {
			// the current thread may not be saved yet
			match = p
		}
		ids = append(ids, match)
	}
	return ids, nil
}

type threadSummary struct {
	session.Thread
	Messages int
}

// listThreads fetches the thread list and then every thread's transcript concurrently
func (cb *ChatBot) listThreads(ctx context.Context) ([]threadSummary, error) {
	threads, err := cb.conv.Threads(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]threadSummary, len(threads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, t := range threads {
		out[i].Thread = t
		g.Go(func() error {
			msgs, err := cb.svc.GetMessages(gctx, t.ID)
			if err != nil {
				return fmt.Errorf("thread %s: %w", short(t.ID), err)
			}
			out[i].Messages = len(msgs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// unreported drops an error the renderer already printed as the answer's failure
func (cb *ChatBot) unreported(err error) error {
	if err == nil {
		return nil
	}
	if last := cb.conv.Snapshot().Err; last != nil && errors.Is(last, err) {
		cb.logger.Error("failed to send message", "error", err)
		return nil
	}
	return err
}

func (cb *ChatBot) printHistory() {
	s := cb.conv.Snapshot()
	if len(s.Messages) == 0 {
		cb.printf("No messages in thread %s.\n", short(s.ThreadID))
		return
	}
	cb.printf("\nThread %s:\n", s.ThreadID)
	for _, m := range s.Messages {
		mark := ""
		switch m.Feedback {
		case session.FeedbackGood:
			mark = " (+)"
		case session.FeedbackBad:
			mark = " (-)"
		}
		cb.printf("  %s %-9s %s%s\n", short(m.ID), m.Role+":", m.Content, mark)
	}
}

func (cb *ChatBot) printStep() {
	s := cb.conv.Snapshot()
	step, ok := s.CurrentStep()
	if !ok {
		cb.printf("No steps for the latest answer.\n")
		return
	}
	cb.printf("[%s] %s\n", s.StepLabel(), describeStep(step))
}

// handleCommand processes special commands
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		id := cb.conv.NewThread()
		cb.printf("Started new thread: %s\n", id)
		return false, nil

	case "/threads":
		threads, err := cb.listThreads(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list threads: %w", err)
		}
		if len(threads) == 0 {
			cb.printf("No saved threads.\n")
			return false, nil
		}
		current := cb.conv.ThreadID()
		cb.printf("\nThreads:\n")
		for i, t := range threads {
			marker := ""
			if t.ID == current {
				marker = " (current)"
			}
			cb.printf("%d. %s %s - %d messages%s\n", i+1, short(t.ID), t.Title, t.Messages, marker)
		}
		return false, nil

	case "/switch":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /switch <thread-id>")
		}
		ids, err := cb.resolveThreads(ctx, parts[1:2])
		if err != nil {
			return false, err
		}
		if err := cb.conv.SwitchThread(ctx, ids[0]); err != nil {
			return false, fmt.Errorf("failed to switch thread: %w", err)
		}
		cb.printf("Switched to thread %s\n", ids[0])
		cb.printHistory()
		return false, nil

	case "/delete":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /delete <thread-id>...")
		}
		ids, err := cb.resolveThreads(ctx, parts[1:])
		if err != nil {
			return false, err
		}
		if err := cb.conv.DeleteThreads(ctx, ids); err != nil {
			return false, fmt.Errorf("failed to delete threads: %w", err)
		}
		cb.printf("Deleted %d thread(s)\n", len(ids))
		return false, nil

	case "/history":
		cb.printHistory()
		return false, nil

	case "/cancel":
		if cb.conv.State() != StateStreaming {
			cb.printf("Nothing to cancel.\n")
			return false, nil
		}
		cb.conv.Cancel()
		return false, nil

	case "/retry":
		return false, cb.unreported(cb.conv.Retry(ctx))

	case "/edit":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /edit <message-id> <new text>")
		}
		msg, err := cb.resolveMessage(parts[1])
		if err != nil {
			return false, err
		}
		return false, cb.unreported(cb.conv.Edit(ctx, msg.ID, strings.Join(parts[2:], " ")))

	case "/regenerate":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /regenerate <message-id>")
		}
		msg, err := cb.resolveMessage(parts[1])
		if err != nil {
			return false, err
		}
		return false, cb.unreported(cb.conv.Regenerate(ctx, msg.ID))

	case "/good", "/bad":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: %s <message-id> [note]", parts[0])
		}
		msg, err := cb.resolveMessage(parts[1])
		if err != nil {
			return false, err
		}
		verdict := session.FeedbackGood
		if parts[0] == "/bad" {
			verdict = session.FeedbackBad
		}
		if err := cb.conv.Rate(ctx, msg.ID, verdict, strings.Join(parts[2:], " ")); err != nil {
			return false, fmt.Errorf("failed to rate message: %w", err)
		}
		cb.printf("Marked %s as %s\n", short(msg.ID), verdict)
		return false, nil

	case "/rm":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /rm <message-id>")
		}
		msg, err := cb.resolveMessage(parts[1])
		if err != nil {
			return false, err
		}
		if err := cb.conv.Delete(ctx, msg.ID); err != nil {
			return false, fmt.Errorf("failed to delete message: %w", err)
		}
		cb.printf("Deleted message %s\n", short(msg.ID))
		return false, nil

	case "/step":
		if len(parts) > 1 {
			switch parts[1] {
			case "next":
				cb.conv.StepNext()
			case "prev":
				cb.conv.StepPrev()
			default:
				return false, fmt.Errorf("usage: /step [next|prev]")
			}
		}
		cb.printStep()
		return false, nil

	case "/help":
		cb.printf("Available commands:\n")
		cb.printf("  /quit, /exit              - Exit the chatbot\n")
		cb.printf("  /new                      - Start a new thread\n")
		cb.printf("  /threads                  - List saved threads\n")
		cb.printf("  /switch <thread>          - Load a saved thread\n")
		cb.printf("  /delete <thread>...       - Delete threads\n")
		cb.printf("  /history                  - Show the current transcript\n")
		cb.printf("  /cancel                   - Stop the answer in progress\n")
		cb.printf("  /retry                    - Ask the last question again\n")
		cb.printf("  /edit <msg> <text>        - Rewrite a question and answer it again\n")
		cb.printf("  /regenerate <msg>         - Replace an answer with a new one\n")
		cb.printf("  /good <msg>, /bad <msg> [note] - Rate an answer\n")
		cb.printf("  /rm <msg>                 - Delete a message\n")
		cb.printf("  /step [next|prev]         - Walk the reasoning steps of the latest answer\n")
		cb.printf("  /help                     - Show this help message\n")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

// Run starts the chat bot and returns when input ends or /quit is entered
func (cb *ChatBot) Run(ctx context.Context) error {
	defer cb.Close()

	cb.printf("=== TradeAi ===\n")
	cb.printf("Thread: %s\n", cb.conv.ThreadID())
	cb.printf("Backend: %s\n", cb.config.Backend)
	cb.printf("Type /help for commands, /quit to exit\n\n")

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cb.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			cb.logger.Error("failed to read input", "error", err)
		}
	}()

	for {
		if cb.conv.State() != StateStreaming {
			cb.printf("You: ")
		}

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			cb.printf("\nGoodbye!\n")
			return ctx.Err()
		case <-cb.idle:
			continue
		case line, ok = <-lines:
		}
		if !ok {
			// finish the answer in progress before closing
			cb.conv.Wait()
			break
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				cb.printf("Error: %v\n", err)
				cb.logger.Error("command error", "command", input, "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if cb.conv.State() == StateStreaming {
			cb.printf("(answer in progress, /cancel to stop it)\n")
			continue
		}
		if err := cb.unreported(cb.conv.Submit(ctx, input)); err != nil {
			cb.printf("Error: %v\n", err)
		}
	}

	cb.printf("Goodbye!\n")
	return nil
}
