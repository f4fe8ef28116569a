package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/HandCoach/internal/flow"
	"github.com/BTreeMap/HandCoach/internal/genai"
	"github.com/BTreeMap/HandCoach/internal/models"
)

// Dispatcher defaults
const (
	// DefaultCompletionTimeout bounds one completion-service call
	DefaultCompletionTimeout = 30 * time.Second
	// DefaultMaxWorkers bounds the number of users processed concurrently
	DefaultMaxWorkers = 64
)

// User-facing texts
const (
	MsgAnswerRecorded   = "✅ Answer recorded! Moving to next question..."
	MsgQuizComplete     = "✅ Quiz complete! You scored %d out of %d."
	MsgFinalMediaLabel  = "📽️ Here's the expert explanation for this hand."
	MsgMediaCaption     = "%s — Watch this first."
	MsgMenu             = "Try again 👇"
	MsgSubmitting       = "✅ Got it! I'm sending this to AI for analysis..."
	MsgCompletionFailed = "⚠️ The coach couldn't analyze your hand right now. Please try again later."
)

// Menu labels double as restart and guided-flow keywords.
const (
	KeywordTryAgain   = "Try again"
	KeywordAIAnalysis = "AI Analysis"
	KeywordAskAlex    = "Ask Alex"
)

// AuditRecorder receives best-effort records of finished quizzes and coaching requests.
type AuditRecorder interface {
	AddQuizResult(r models.QuizResult) error
	AddCoachingRecord(r models.CoachingRecord) error
}

type dispatcherConfig struct {
	restartKeywords   map[string]bool
	guidedKeywords    map[string]bool
	restartCommands   map[string]bool
	guidedCommands    map[string]bool
	menuKeyboard      [][]string
	completionTimeout time.Duration
	maxWorkers        int
	audit             AuditRecorder
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

func keywordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[normalizeKeyword(w)] = true
	}
	return set
}

func normalizeKeyword(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// WithRestartKeywords replaces the texts that (re)start the quiz.
func WithRestartKeywords(words ...string) DispatcherOption {
	return func(c *dispatcherConfig) { c.restartKeywords = keywordSet(words) }
}

// WithGuidedKeywords replaces the texts that start the guided-input flow.
func WithGuidedKeywords(words ...string) DispatcherOption {
	return func(c *dispatcherConfig) { c.guidedKeywords = keywordSet(words) }
}

// WithMenuKeyboard replaces the reply keyboard shown after a quiz.
func WithMenuKeyboard(rows [][]string) DispatcherOption {
	return func(c *dispatcherConfig) { c.menuKeyboard = rows }
}

// WithCompletionTimeout bounds each completion-service call.
func WithCompletionTimeout(d time.Duration) DispatcherOption {
	return func(c *dispatcherConfig) {
		if d > 0 {
			c.completionTimeout = d
		}
	}
}

// WithMaxWorkers bounds how many users are processed at once.
func WithMaxWorkers(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithAuditRecorder records quiz results and coaching requests.
func WithAuditRecorder(a AuditRecorder) DispatcherOption {
	return func(c *dispatcherConfig) { c.audit = a }
}

// Dispatcher routes inbound events to the flow owning each user's session.
// Events of one user are handled strictly in arrival order by a single
// worker; different users are handled in parallel.
type Dispatcher struct {
	msgService Service
	sessions   flow.SessionStore
	quiz       *flow.QuizEngine
	guided     *flow.GuidedFlow
	completer  genai.Completer
	cfg        dispatcherConfig

	mu       sync.Mutex
	queues   map[string][]models.Event
	sem      chan struct{}
	wg       sync.WaitGroup
	loopDone chan struct{}
}

// NewDispatcher wires the flows for script to a transport, a session store and a completion service.
func NewDispatcher(msgService Service, sessions flow.SessionStore, script *flow.Script, completer genai.Completer, opts ...DispatcherOption) *Dispatcher {
	cfg := dispatcherConfig{
		restartKeywords:   keywordSet([]string{KeywordTryAgain, KeywordAIAnalysis}),
		guidedKeywords:    keywordSet([]string{KeywordAskAlex}),
		restartCommands:   keywordSet([]string{"start", "quiz"}),
		guidedCommands:    keywordSet([]string{"coach"}),
		menuKeyboard:      [][]string{{KeywordTryAgain, KeywordAIAnalysis}, {KeywordAskAlex}},
		completionTimeout: DefaultCompletionTimeout,
		maxWorkers:        DefaultMaxWorkers,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Dispatcher created", "questions", len(script.Questions), "guidedFields", len(script.GuidedFields), "maxWorkers", cfg.maxWorkers, "completionTimeout", cfg.completionTimeout)

	return &Dispatcher{
		msgService: msgService,
		sessions:   sessions,
		quiz:       flow.NewQuizEngine(script),
		guided:     flow.NewGuidedFlow(script),
		completer:  completer,
		cfg:        cfg,
		queues:     make(map[string][]models.Event),
		sem:        make(chan struct{}, cfg.maxWorkers),
		loopDone:   make(chan struct{}),
	}
}

// Start consumes the transport's events until ctx is cancelled or the channel
// closes. Done is closed once the consuming goroutine has returned.
func (d *Dispatcher) Start(ctx context.Context) {
	slog.Info("Dispatcher starting event processing")

	go func() {
		defer close(d.loopDone)
		defer slog.Info("Dispatcher stopped event processing")
		for {
			select {
			case evt, ok := <-d.msgService.Events():
				if !ok {
					slog.Debug("Dispatcher events channel closed")
					return
				}
				d.Dispatch(ctx, evt)
			case <-ctx.Done():
				slog.Debug("Dispatcher stopping due to context cancellation")
				return
			}
		}
	}()
}

// Dispatch queues evt behind any pending events of the same user.
func (d *Dispatcher) Dispatch(ctx context.Context, evt models.Event) {
	if evt.UserID == "" {
		slog.Warn("Dispatcher dropping event without user", "kind", evt.Kind)
		return
	}

	d.mu.Lock()
	_, running := d.queues[evt.UserID]
	d.queues[evt.UserID] = append(d.queues[evt.UserID], evt)
	if !running {
		d.wg.Add(1)
	}
	d.mu.Unlock()

	if !running {
		// in-flight events finish even if ctx is cancelled during shutdown
		go d.drain(context.WithoutCancel(ctx), evt.UserID)
	}
}

// Done is closed when the loop begun by Start has exited. Wait only after it
// is closed, so that no Dispatch from the loop overlaps Wait.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.loopDone
}

// Wait blocks until every queued event and pending completion has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// drain processes userID's queue until it is empty.
func (d *Dispatcher) drain(ctx context.Context, userID string) {
	defer d.wg.Done()
	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	for {
		d.mu.Lock()
		queue := d.queues[userID]
		if len(queue) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		evt := queue[0]
		d.queues[userID] = queue[1:]
		d.mu.Unlock()

		if err := d.HandleEvent(ctx, evt); err != nil {
			slog.Error("Dispatcher failed to handle event", "error", err, "userID", userID, "kind", evt.Kind)
		}
	}
}

// HandleEvent routes a single event. Callers must not invoke it concurrently
// for the same user; Dispatch takes care of that. A finished guided record is
// sent to the completion service in the background; Wait covers it.
func (d *Dispatcher) HandleEvent(ctx context.Context, evt models.Event) error {
	slog.Debug("Dispatcher routing event", "userID", evt.UserID, "kind", evt.Kind)

	switch evt.Kind {
	case models.EventCommand:
		name := normalizeKeyword(evt.Text)
		switch {
		case d.cfg.restartCommands[name]:
			return d.beginQuiz(ctx, evt.UserID)
		case d.cfg.guidedCommands[name]:
			return d.beginGuided(ctx, evt.UserID)
		}
		slog.Debug("Dispatcher ignoring unknown command", "userID", evt.UserID, "command", evt.Text)
		return nil

	case models.EventButton:
		return d.handleChoice(ctx, evt)

	case models.EventText:
		keyword := normalizeKeyword(evt.Text)
		switch {
		case d.cfg.restartKeywords[keyword]:
			return d.beginQuiz(ctx, evt.UserID)
		case d.cfg.guidedKeywords[keyword]:
			return d.beginGuided(ctx, evt.UserID)
		}
		return d.handleText(ctx, evt)
	}

	slog.Warn("Dispatcher ignoring event of unknown kind", "userID", evt.UserID, "kind", evt.Kind)
	return nil
}

func (d *Dispatcher) beginQuiz(ctx context.Context, userID string) error {
	var step flow.QuizStep
	err := d.sessions.Update(ctx, userID, func(s *models.Session) error {
		step = d.quiz.Begin(s)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to begin quiz: %w", err)
	}
	slog.Info("Dispatcher quiz started", "userID", userID)
	d.emitQuizStep(ctx, userID, step)
	return nil
}

func (d *Dispatcher) handleChoice(ctx context.Context, evt models.Event) error {
	idx, key, err := flow.ParseChoiceCode(evt.Text)
	if err != nil {
		slog.Warn("Dispatcher ignoring unexpected choice payload", "userID", evt.UserID, "payload", evt.Text, "error", err)
		return nil
	}

	var step flow.QuizStep
	err = d.sessions.Update(ctx, evt.UserID, func(s *models.Session) error {
		var aerr error
		step, aerr = d.quiz.Answer(s, idx, key)
		return aerr
	})
	switch {
	case errors.Is(err, flow.ErrNotInQuiz), errors.Is(err, flow.ErrStaleQuestion):
		slog.Debug("Dispatcher ignoring stale choice", "userID", evt.UserID, "payload", evt.Text, "reason", err)
		return nil
	case errors.Is(err, flow.ErrUnknownOption):
		slog.Warn("Dispatcher ignoring unrecognized option", "userID", evt.UserID, "payload", evt.Text, "error", err)
		return nil
	case err != nil:
		return fmt.Errorf("failed to record answer: %w", err)
	}

	if ack, ok := d.msgService.(ChoiceAcknowledger); ok {
		if err := ack.AcknowledgeChoice(ctx, evt, MsgAnswerRecorded); err != nil {
			slog.Warn("Dispatcher failed to acknowledge choice", "userID", evt.UserID, "error", err)
		}
	}
	d.emitQuizStep(ctx, evt.UserID, step)
	return nil
}

func (d *Dispatcher) emitQuizStep(ctx context.Context, userID string, step flow.QuizStep) {
	if q := step.Question; q != nil {
		SendMediaBestEffort(ctx, d.msgService, userID, q.Media, fmt.Sprintf(MsgMediaCaption, q.Stage))
		d.sendText(ctx, userID, q.Stage+"\n\n"+q.Prompt, &models.SendOptions{Choices: step.Choices()})
		return
	}
	if step.Summary == nil {
		return
	}

	sum := step.Summary
	d.sendText(ctx, userID, fmt.Sprintf(MsgQuizComplete, sum.Score, sum.MaxScore), nil)
	SendMediaBestEffort(ctx, d.msgService, userID, sum.FinalMedia, MsgFinalMediaLabel)
	d.recordQuizResult(userID, sum)
	d.sendText(ctx, userID, MsgMenu, &models.SendOptions{ReplyKeyboard: d.cfg.menuKeyboard})
}

func (d *Dispatcher) beginGuided(ctx context.Context, userID string) error {
	var step flow.GuidedStep
	err := d.sessions.Update(ctx, userID, func(s *models.Session) error {
		step = d.guided.Begin(s)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to begin guided input: %w", err)
	}
	slog.Info("Dispatcher guided input started", "userID", userID)
	d.sendText(ctx, userID, step.Field.Prompt, nil)
	return nil
}

func (d *Dispatcher) handleText(ctx context.Context, evt models.Event) error {
	var step flow.GuidedStep
	err := d.sessions.Update(ctx, evt.UserID, func(s *models.Session) error {
		var serr error
		step, serr = d.guided.SubmitText(s, evt.Text)
		return serr
	})
	if errors.Is(err, flow.ErrNotInGuidedInput) {
		slog.Debug("Dispatcher ignoring free text outside guided input", "userID", evt.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store guided answer: %w", err)
	}

	if step.Field != nil {
		d.sendText(ctx, evt.UserID, step.Field.Prompt, nil)
		return nil
	}
	if step.Submission != nil {
		d.sendText(ctx, evt.UserID, MsgSubmitting, nil)
		// the session is already Idle, so later events of this user need not wait
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.submit(context.WithoutCancel(ctx), evt.UserID, step.Submission)
		}()
	}
	return nil
}

// submit forwards a finished guided record to the completion service and
// delivers the reply or a failure notice.
func (d *Dispatcher) submit(ctx context.Context, userID string, sub *flow.Submission) {

	cctx, cancel := context.WithTimeout(ctx, d.cfg.completionTimeout)
	defer cancel()
	reply, err := d.completer.Complete(cctx, sub.SystemPrompt, sub.Text)

	rec := models.CoachingRecord{UserID: userID, Request: sub.Text, Reply: reply, CreatedAt: time.Now()}
	if err != nil {
		slog.Error("Dispatcher completion request failed", "error", err, "userID", userID)
		rec.Reply = ""
		rec.Error = err.Error()
		d.recordCoaching(rec)
		d.sendText(ctx, userID, MsgCompletionFailed, nil)
		return
	}
	d.recordCoaching(rec)
	d.sendText(ctx, userID, reply, nil)
	slog.Info("Dispatcher coaching reply delivered", "userID", userID, "reply_length", len(reply))
}

// sendText logs send failures; state has already been committed.
func (d *Dispatcher) sendText(ctx context.Context, userID, text string, opts *models.SendOptions) {
	if err := d.msgService.SendText(ctx, userID, text, opts); err != nil {
		slog.Error("Dispatcher failed to send text", "error", err, "userID", userID)
	}
}

func (d *Dispatcher) recordQuizResult(userID string, sum *flow.QuizSummary) {
	if d.cfg.audit == nil {
		return
	}
	r := models.QuizResult{UserID: userID, Score: sum.Score, MaxScore: sum.MaxScore, CompletedAt: time.Now()}
	if err := d.cfg.audit.AddQuizResult(r); err != nil {
		slog.Warn("Dispatcher failed to record quiz result", "error", err, "userID", userID)
	}
}

func (d *Dispatcher) recordCoaching(r models.CoachingRecord) {
	if d.cfg.audit == nil {
		return
	}
	if err := d.cfg.audit.AddCoachingRecord(r); err != nil {
		slog.Warn("Dispatcher failed to record coaching request", "error", err, "userID", r.UserID)
	}
}
