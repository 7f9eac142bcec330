package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"TradeAi/internal/backend"
	"TradeAi/internal/cache"
	"TradeAi/internal/config"
	"TradeAi/internal/frame"
	"TradeAi/internal/progress"
	"TradeAi/internal/scroll"
	"TradeAi/internal/session"
	"TradeAi/internal/steps"
	"TradeAi/internal/telemetry"
	"TradeAi/internal/thought"
)

var (
	ErrNotAssistant = errors.New("only assistant messages can be rated or regenerated")
	ErrNotUser      = errors.New("only user messages can be edited")
	// ErrIncomplete is reported when a stream closes without an end event
	ErrIncomplete = errors.New("stream closed before the answer was complete")
)

const saveTimeout = 10 * time.Second

// State of a conversation's streaming lifecycle
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// Conversation owns one thread's transcript, its single in-flight answer and the
// progress and scroll state of the answer being streamed. Chunks from a stream that was
// cancelled or detached are dropped by comparing the stream's epoch.
type Conversation struct {
	mu       sync.Mutex
	svc      backend.Service
	recorder backend.Recorder
	clock    frame.Clock
	cfg      config.Config
	logger   *slog.Logger
	tracer   trace.Tracer
	inst     *telemetry.Instruments
	segments *cache.Segments

	agentKeys  []string
	agentNames map[string]string

	store    *session.Store
	nav      *steps.Navigator
	loop     *progress.Loop
	loading  *progress.LoadingBar
	follower *scroll.Follower

	threadID  string
	state     State
	epoch     uint64
	stepCount int
	stepTrace string
	lastErr   error

	// the stream currently shown
	cancel  context.CancelFunc
	span    trace.Span
	started time.Time

	// every stream still running, including detached ones
	live map[uint64]context.CancelFunc

	// notifyMu keeps snapshots reaching subscribers in the order they were taken
	notifyMu    sync.Mutex
	subscribers []func(Snapshot)
	wg          sync.WaitGroup
	closed      bool

	jobs      []func(context.Context)
	jobSignal chan struct{}
	stopJobs  chan struct{}
	jobsDone  chan struct{}
}

// Option configures a Conversation
type Option func(*Conversation)

// WithViewport attaches the transcript viewport the follower scrolls
func WithViewport(v scroll.Viewport) Option {
	return func(c *Conversation) { c.follower = c.newFollower(v) }
}

// WithSegments memoizes trace segmentation
func WithSegments(s *cache.Segments) Option {
	return func(c *Conversation) { c.segments = s }
}

// WithTracer traces each streamed answer
func WithTracer(t trace.Tracer) Option {
	return func(c *Conversation) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithInstruments records stream metrics
func WithInstruments(i *telemetry.Instruments) Option {
	return func(c *Conversation) {
		if i != nil {
			c.inst = i
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithThread starts on an existing thread id instead of a fresh one. Its messages are
// not loaded; call SwitchThread for that.
func WithThread(threadID string) Option {
	return func(c *Conversation) {
		if threadID != "" {
			c.threadID = threadID
		}
	}
}

type nopViewport struct{}

func (nopViewport) ScrollMetrics() scroll.Metrics { return scroll.Metrics{} }
func (nopViewport) ScrollToBottom()               {}

// NewConversation creates a conversation on a new empty thread. Close must be called
// to stop its background work.
func NewConversation(svc backend.Service, clock frame.Clock, cfg config.Config, opts ...Option) *Conversation {
	c := &Conversation{
		svc:        svc,
		clock:      clock,
		cfg:        cfg,
		logger:     slog.Default(),
		tracer:     noop.NewTracerProvider().Tracer(""),
		agentKeys:  cfg.AgentKeys(),
		agentNames: cfg.AgentNames(),
		store:      session.NewStore(),
		nav:        steps.NewNavigator(),
		loading:    progress.NewLoadingBar(cfg.Progress.LoadingTarget, cfg.Progress.LoadingStep),
		threadID:   session.NewID(),
		live:       map[uint64]context.CancelFunc{},
		jobSignal:  make(chan struct{}, 1),
		stopJobs:   make(chan struct{}),
		jobsDone:   make(chan struct{}),
	}
	if r, ok := svc.(backend.Recorder); ok {
		c.recorder = r
	}
	anim := progress.NewAnimator(cfg.ProgressDuration(), cfg.Progress.BumpFraction)
	c.loop = progress.NewLoop(clock, anim, func(float64) { c.notify() })
	c.follower = c.newFollower(nopViewport{})

	for _, opt := range opts {
		opt(c)
	}
	if c.inst == nil {
		c.inst = telemetry.NewInstruments(nil, c.logger)
	}

	go c.runJobs()
	return c
}

func (c *Conversation) newFollower(v scroll.Viewport) *scroll.Follower {
	if c.follower != nil {
		c.follower.Close()
	}
	return scroll.NewFollower(v, c.clock,
		scroll.WithTolerance(c.cfg.Scroll.TolerancePx),
		scroll.WithUserScrollWindow(c.cfg.UserScrollWindow()),
		scroll.WithOnChange(func(bool) { c.notify() }),
	)
}

// ThreadID is the current thread
func (c *Conversation) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// State is the current lifecycle state
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnChange registers fn to receive a snapshot after every change. fn runs on the
// goroutine that caused the change; it must not block or call methods that change the
// conversation.
func (c *Conversation) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Submit sends text as a new user turn and starts streaming the answer. Blank text and
// submits while an answer is streaming are ignored. Cancelling ctx aborts the stream.
func (c *Conversation) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed || c.state == StateStreaming {
		c.mu.Unlock()
		return nil
	}
	err := c.startLocked(ctx, text)
	c.mu.Unlock()

	c.notify()
	return err
}

// Edit replaces a user message: it and everything after it are removed, then newText
// is submitted with the remaining transcript as context.
func (c *Conversation) Edit(ctx context.Context, messageID, newText string) error {
	newText = strings.TrimSpace(newText)
	if newText == "" || messageID == "" {
		return nil
	}

	c.mu.Lock()
	if c.closed || c.state == StateStreaming {
		c.mu.Unlock()
		return nil
	}
	target, ok := c.store.Get(messageID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("edit %s: %w", messageID, session.ErrNotFound)
	}
	if target.Role != session.RoleUser {
		c.mu.Unlock()
		return fmt.Errorf("edit %s: %w", messageID, ErrNotUser)
	}
	removed, err := c.store.TruncateFrom(messageID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.forgetLocked(removed...)
	err = c.startLocked(ctx, newText)
	c.mu.Unlock()

	c.notify()
	return err
}

// Regenerate drops an assistant answer together with the user message that prompted
// it and submits that prompt again.
func (c *Conversation) Regenerate(ctx context.Context, messageID string) error {
	c.mu.Lock()
	if c.closed || c.state == StateStreaming {
		c.mu.Unlock()
		return nil
	}
	answer, ok := c.store.Get(messageID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("regenerate %s: %w", messageID, session.ErrNotFound)
	}
	if answer.Role != session.RoleAssistant {
		c.mu.Unlock()
		return fmt.Errorf("regenerate %s: %w", messageID, ErrNotAssistant)
	}
	prompt, ok := c.promptBeforeLocked(messageID)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("no prompt before %s: %w", messageID, session.ErrNotFound)
	}

	c.store.Delete(answer.ID)
	c.store.Delete(prompt.ID)
	c.forgetLocked(prompt, answer)
	err := c.startLocked(ctx, prompt.Content)
	c.mu.Unlock()

	c.notify()
	return err
}

// Retry resubmits the last user message, replacing it and whatever partial answer
// followed it. It does nothing while streaming or when there is no user message.
func (c *Conversation) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.state == StateStreaming {
		c.mu.Unlock()
		return nil
	}
	msgs := c.store.Messages()
	var last *session.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleUser {
			last = &msgs[i]
			break
		}
	}
	if last == nil {
		c.mu.Unlock()
		return nil
	}
	removed, err := c.store.TruncateFrom(last.ID)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.forgetLocked(removed...)
	err = c.startLocked(ctx, last.Content)
	c.mu.Unlock()

	c.notify()
	return err
}

// Cancel aborts the streaming answer and keeps whatever arrived so far as final.
// Chunks still in transit are dropped.
func (c *Conversation) Cancel() {
	c.mu.Lock()
	if c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	c.epoch++
	c.state = StateCancelled
	c.finishLocked(telemetry.OutcomeCancelled, nil)
	c.mu.Unlock()
	c.notify()

	c.mu.Lock()
	if c.state == StateCancelled {
		c.state = StateIdle
	}
	c.mu.Unlock()
	c.notify()
}

// Rate records a verdict on an assistant message once the collaborator accepts it
func (c *Conversation) Rate(ctx context.Context, messageID string, verdict session.Feedback, note string) error {
	if verdict != session.FeedbackGood && verdict != session.FeedbackBad {
		return fmt.Errorf("unknown feedback %q", verdict)
	}
	msg, ok := c.store.Get(messageID)
	if !ok {
		return fmt.Errorf("rate %s: %w", messageID, session.ErrNotFound)
	}
	if msg.Role != session.RoleAssistant {
		return fmt.Errorf("rate %s: %w", messageID, ErrNotAssistant)
	}
	c.flushSaves()
	if err := c.svc.RateMessage(ctx, messageID, verdict, note); err != nil {
		return fmt.Errorf("failed to rate message: %w", err)
	}
	if err := c.store.SetFeedback(messageID, verdict); err != nil {
		return err
	}
	c.logger.Info("message rated", "message_id", messageID, "feedback", verdict)
	c.notify()
	return nil
}

// Delete removes one message from the transcript and the collaborator. An empty id
// is ignored.
func (c *Conversation) Delete(ctx context.Context, messageID string) error {
	if messageID == "" {
		return nil
	}
	if _, ok := c.store.Get(messageID); !ok {
		return fmt.Errorf("delete %s: %w", messageID, session.ErrNotFound)
	}
	c.flushSaves()
	if err := c.svc.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	c.store.Delete(messageID)

	c.mu.Lock()
	c.refreshStepsLocked()
	c.mu.Unlock()
	c.notify()
	return nil
}

// NewThread leaves the current thread for a fresh empty one. A streaming answer is
// detached, not cancelled. The thread is persisted with its first message.
func (c *Conversation) NewThread() string {
	c.mu.Lock()
	if c.state == StateStreaming {
		c.detachLocked()
	}
	c.threadID = session.NewID()
	c.store.Reset(nil)
	c.resetViewLocked()
	id := c.threadID
	c.mu.Unlock()

	c.logger.Info("created new thread", "thread_id", id)
	c.notify()
	return id
}

// SwitchThread loads another thread's transcript and makes it current. A streaming
// answer keeps running detached but is no longer shown.
func (c *Conversation) SwitchThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return nil
	}
	msgs, err := c.svc.GetMessages(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to load thread: %w", err)
	}

	c.mu.Lock()
	if c.state == StateStreaming {
		c.detachLocked()
	}
	c.threadID = threadID
	c.store.Reset(msgs)
	c.resetViewLocked()
	c.mu.Unlock()

	c.logger.Info("switched thread", "thread_id", threadID, "message_count", len(msgs))
	c.notify()
	return nil
}

// Threads lists the configured user's threads
func (c *Conversation) Threads(ctx context.Context) ([]session.Thread, error) {
	threads, err := c.svc.ListThreads(ctx, c.cfg.UserKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// DeleteThreads removes threads in one batch. Deleting the current thread moves the
// conversation to a fresh one first, so no later save can recreate it. Queued saves
// are written before the delete. An empty selection is ignored.
func (c *Conversation) DeleteThreads(ctx context.Context, threadIDs []string) error {
	if len(threadIDs) == 0 {
		return nil
	}
	current := c.ThreadID()
	for _, id := range threadIDs {
		if id == current {
			c.NewThread()
			break
		}
	}
	c.flushSaves()
	if err := c.svc.DeleteThreads(ctx, threadIDs); err != nil {
		return fmt.Errorf("failed to delete threads: %w", err)
	}
	return nil
}

// StepNext moves the step cursor forward
func (c *Conversation) StepNext() {
	c.nav.Next()
	c.notify()
}

// StepPrev moves the step cursor back
func (c *Conversation) StepPrev() {
	c.nav.Prev()
	c.notify()
}

// OnScroll forwards a viewport scroll event
func (c *Conversation) OnScroll(scrollTop, scrollHeight, clientHeight float64) bool {
	return c.follower.OnScroll(scrollTop, scrollHeight, clientHeight)
}

// OnResize forwards a viewport size change
func (c *Conversation) OnResize() {
	c.follower.OnResize()
}

// Wait blocks until every stream has closed. Use Flush for queued saves.
func (c *Conversation) Wait() {
	c.wg.Wait()
}

// Close cancels the streaming answer and any detached streams, stops timers and waits
// for background work to finish.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.state == StateStreaming {
		c.epoch++
		c.finishLocked(telemetry.OutcomeCancelled, nil)
		c.state = StateIdle
	}
	for _, cancel := range c.live {
		cancel()
	}
	c.mu.Unlock()

	c.loop.Stop()
	c.loading.Stop()
	c.follower.Close()
	c.wg.Wait()
	close(c.stopJobs)
	<-c.jobsDone
}

// startLocked appends the user turn and the empty answer and opens the stream
func (c *Conversation) startLocked(ctx context.Context, text string) error {
	history := c.store.Messages()
	now := c.clock.Now()

	user := session.Message{ID: session.NewID(), Role: session.RoleUser, Content: text, Timestamp: now}
	if err := c.store.Append(user); err != nil {
		return err
	}
	answer := session.Message{ID: session.NewID(), Role: session.RoleAssistant, Timestamp: now}
	if err := c.store.Begin(answer); err != nil {
		return err
	}
	c.saveLocked(user)

	c.epoch++
	epoch := c.epoch
	c.state = StateStreaming
	c.lastErr = nil
	c.started = now
	c.stepCount = 0
	c.stepTrace = ""
	c.nav.Reset()
	c.loop.Reset()
	c.loop.Start(0)
	c.loading.Reset()
	c.loading.Run(c.clock, c.cfg.LoadingInterval(), func(float64) { c.notify() })
	c.follower.Follow()

	streamCtx, cancel := context.WithCancel(ctx)
	streamCtx, span := c.tracer.Start(streamCtx, "conversation.stream",
		trace.WithAttributes(
			attribute.String("thread_id", c.threadID),
			attribute.String("message_id", answer.ID),
		))
	c.cancel = cancel
	c.span = span

	events, err := c.svc.SendMessage(streamCtx, backend.SendRequest{
		ThreadID: c.threadID,
		Text:     text,
		History:  history,
	})
	if err != nil {
		err = fmt.Errorf("failed to send message: %w", err)
		c.finishLocked(telemetry.OutcomeFailed, err)
		return err
	}

	c.live[epoch] = cancel
	c.wg.Add(1)
	go c.pump(streamCtx, epoch, events)

	c.logger.Info("stream started", "thread_id", c.threadID, "message_id", answer.ID, "epoch", epoch)
	return nil
}

// pump applies events in arrival order until the stream closes
func (c *Conversation) pump(ctx context.Context, epoch uint64, events <-chan backend.StreamEvent) {
	defer c.wg.Done()
	for ev := range events {
		c.apply(ctx, epoch, ev)
	}

	c.mu.Lock()
	if cancel, ok := c.live[epoch]; ok {
		cancel()
		delete(c.live, epoch)
	}
	current := epoch == c.epoch && c.state == StateStreaming
	cancelled := current && ctx.Err() != nil
	if cancelled {
		c.epoch++
		c.state = StateCancelled
		c.finishLocked(telemetry.OutcomeCancelled, nil)
	} else if current {
		c.finishLocked(telemetry.OutcomeFailed, ErrIncomplete)
	}
	c.mu.Unlock()

	if current {
		c.notify()
	}
	if cancelled {
		c.mu.Lock()
		if c.state == StateCancelled {
			c.state = StateIdle
		}
		c.mu.Unlock()
		c.notify()
	}
}

func (c *Conversation) apply(ctx context.Context, epoch uint64, ev backend.StreamEvent) {
	c.mu.Lock()
	if epoch != c.epoch || c.state != StateStreaming {
		c.mu.Unlock()
		if ev.Type == backend.EventDelta {
			c.inst.StaleChunk(ctx)
			c.logger.Debug("dropped stale chunk", "epoch", epoch, "kind", ev.Kind)
		}
		return
	}

	switch ev.Type {
	case backend.EventDelta:
		if ev.Text == "" {
			c.mu.Unlock()
			return
		}
		if err := c.store.AppendDelta(ev.Kind, ev.Text); err != nil {
			c.logger.Warn("failed to apply chunk", "error", err, "epoch", epoch)
			c.mu.Unlock()
			return
		}
		c.inst.Chunk(ctx)
		c.loading.Stop()
		c.refreshStepsLocked()
		c.follower.OnContentGrew()
	case backend.EventEnd:
		c.finishLocked(telemetry.OutcomeCompleted, nil)
	case backend.EventError:
		err := ev.Err
		if err == nil {
			err = ErrIncomplete
		}
		c.finishLocked(telemetry.OutcomeFailed, err)
	}
	c.mu.Unlock()

	c.notify()
}

// finishLocked ends the shown stream: the in-flight answer is frozen into the history
// as it is now, progress settles and the outcome is recorded. It sets StateIdle unless
// the caller already moved to StateCancelled.
func (c *Conversation) finishLocked(outcome string, err error) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if msg, ok := c.store.InFlight(); ok {
		if hasContent(msg) {
			promoted, perr := c.store.Promote()
			if perr == nil {
				c.saveLocked(promoted)
			}
		} else {
			c.store.Discard()
		}
	}

	c.lastErr = err
	if c.state != StateCancelled {
		c.state = StateIdle
	}
	c.refreshStepsLocked()

	c.loading.Stop()
	if outcome == telemetry.OutcomeCompleted {
		c.loop.Bump(100)
	} else {
		c.loop.Stop()
	}
	c.endSpanLocked(outcome, err)

	if err != nil {
		c.logger.Error("stream failed", "thread_id", c.threadID, "error", err)
	} else {
		c.logger.Info("stream finished", "thread_id", c.threadID, "outcome", outcome)
	}
}

// detachLocked stops showing the streaming answer without cancelling its transport
func (c *Conversation) detachLocked() {
	c.epoch++
	c.cancel = nil
	c.store.Discard()
	c.state = StateIdle
	c.endSpanLocked(telemetry.OutcomeDetached, nil)
	c.logger.Info("stream detached", "thread_id", c.threadID, "epoch", c.epoch)
}

func (c *Conversation) endSpanLocked(outcome string, err error) {
	elapsed := c.clock.Now().Sub(c.started)
	ctx := context.Background()
	if c.span != nil {
		ctx = trace.ContextWithSpan(ctx, c.span)
		c.span.SetAttributes(attribute.String("outcome", outcome))
		if err != nil {
			c.span.RecordError(err)
			c.span.SetStatus(codes.Error, err.Error())
		}
		c.span.End()
		c.span = nil
	}
	c.inst.Outcome(ctx, outcome, float64(elapsed.Milliseconds()))
}

// resetViewLocked discards per-stream display state after the transcript changed
func (c *Conversation) resetViewLocked() {
	c.lastErr = nil
	c.loop.Reset()
	c.loading.Reset()
	c.nav.Reset()
	c.stepCount = 0
	c.stepTrace = ""
	c.refreshStepsLocked()
	c.follower.Follow()
}

// refreshStepsLocked re-segments the focused trace. Every change of the trace jumps the
// cursor to the newest step; new steps while streaming push progress forward.
func (c *Conversation) refreshStepsLocked() {
	focus, _ := c.focusLocked()
	trace := focus.Trace()
	if trace == c.stepTrace {
		return
	}
	n := len(c.segments.Split(trace))
	if c.state == StateStreaming {
		for i := c.stepCount; i < n; i++ {
			c.loop.Step()
		}
	}
	c.stepTrace = trace
	c.stepCount = n
	c.nav.SetStepCount(n)
}

// flushSaves waits for queued saves when the service persists client side, so a
// collaborator call never acts on a message that is not written yet
func (c *Conversation) flushSaves() {
	if c.recorder != nil {
		c.Flush()
	}
}

// focusLocked is the message whose steps are shown: the in-flight answer, or else the
// latest assistant message
func (c *Conversation) focusLocked() (session.Message, bool) {
	if msg, ok := c.store.InFlight(); ok {
		return msg, true
	}
	msgs := c.store.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleAssistant {
			return msgs[i], true
		}
	}
	return session.Message{}, false
}

func (c *Conversation) promptBeforeLocked(messageID string) (session.Message, bool) {
	msgs := c.store.Messages()
	for i := c.store.Index(messageID) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleUser {
			return msgs[i], true
		}
	}
	return session.Message{}, false
}

func hasContent(m session.Message) bool {
	return m.Content != "" || m.ThoughtContent != "" || m.ObservationContent != ""
}

// saveLocked queues msg for the recorder, if the service persists client side
func (c *Conversation) saveLocked(msg session.Message) {
	if c.recorder == nil {
		return
	}
	threadID := c.threadID
	c.enqueueLocked(func(ctx context.Context) {
		if err := c.recorder.SaveMessage(ctx, threadID, msg); err != nil {
			c.logger.Warn("failed to save message", "error", err, "thread_id", threadID, "message_id", msg.ID)
		}
	})
}

// forgetLocked queues removal of messages that were dropped from the transcript. It
// shares the save queue so a removal never overtakes the save of the same message.
func (c *Conversation) forgetLocked(msgs ...session.Message) {
	for _, m := range msgs {
		id := m.ID
		c.enqueueLocked(func(ctx context.Context) {
			err := c.svc.DeleteMessage(ctx, id)
			if err != nil && !errors.Is(err, session.ErrNotFound) {
				c.logger.Warn("failed to delete message", "error", err, "message_id", id)
			}
		})
	}
}

func (c *Conversation) enqueueLocked(job func(context.Context)) {
	c.jobs = append(c.jobs, job)
	select {
	case c.jobSignal <- struct{}{}:
	default:
	}
}

// runJobs writes queued saves and removals in order, one at a time
func (c *Conversation) runJobs() {
	defer close(c.jobsDone)
	for {
		stopping := false
		select {
		case <-c.jobSignal:
		case <-c.stopJobs:
			stopping = true
		}

		c.mu.Lock()
		jobs := c.jobs
		c.jobs = nil
		c.mu.Unlock()

		for _, job := range jobs {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			job(ctx)
			cancel()
		}
		if stopping {
			return
		}
	}
}

// Flush blocks until every save and removal queued so far has run
func (c *Conversation) Flush() {
	done := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.enqueueLocked(func(context.Context) { close(done) })
	c.mu.Unlock()
	<-done
}

// Snapshot returns the current renderable state
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conversation) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	subs := make([]func(Snapshot), len(c.subscribers))
	copy(subs, c.subscribers)
	var snap Snapshot
	if len(subs) > 0 {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Conversation) snapshotLocked() Snapshot {
	snap := Snapshot{
		ThreadID:         c.threadID,
		State:            c.state,
		Messages:         c.store.Messages(),
		ProgressPercent:  c.loop.Value(),
		LoadingPercent:   c.loading.Value(),
		ShouldAutoScroll: c.follower.ShouldAutoScroll(),
		Err:              c.lastErr,
	}
	if msg, ok := c.store.InFlight(); ok {
		snap.InFlight = &msg
		if msg.Content == "" {
			snap.ActiveAgentsLabel = thought.ActiveLabel(thought.DetectActive(msg.Trace(), c.agentKeys), c.agentNames)
		}
	}
	if focus, ok := c.focusLocked(); ok {
		snap.Steps = c.segments.Split(focus.Trace())
	}
	snap.StepCursor, snap.StepCount = c.nav.Current()
	return snap
}
