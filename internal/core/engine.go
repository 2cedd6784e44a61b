package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SenderFilter decides which senders are allowed to produce lifecycle events
type SenderFilter interface {
	IsWhitelisted(from string) bool
}

// EngineOptions tunes the scan engine
type EngineOptions struct {
	Workers            int
	CallTimeout        time.Duration
	MaxAttempts        int
	BackoffInitial     time.Duration
	BackoffMax         time.Duration
	Mailboxes          []string
	IncrementalOverlap time.Duration
	AdvisorVocabulary  []string
}

// DefaultEngineOptions returns the defaults used when a field is left zero
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Workers:            8,
		CallTimeout:        15 * time.Second,
		MaxAttempts:        3,
		BackoffInitial:     500 * time.Millisecond,
		BackoffMax:         5 * time.Second,
		Mailboxes:          []string{"INBOX"},
		IncrementalOverlap: 24 * time.Hour,
	}
}

// EngineOption sets an optional collaborator
type EngineOption func(*Engine)

// WithEventRepository persists classified events across restarts
func WithEventRepository(repo EventRepository) EngineOption {
	return func(e *Engine) { e.events = repo }
}

// WithRiskAdvisor adds qualitative risk factors from an advisor
func WithRiskAdvisor(advisor RiskAdvisor) EngineOption {
	return func(e *Engine) { e.advisor = advisor }
}

// WithSenderFilter drops messages from untrusted senders before classification
func WithSenderFilter(filter SenderFilter) EngineOption {
	return func(e *Engine) { e.senders = filter }
}

// WithClock overrides the engine's notion of now
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// Engine runs scan cycles: source -> classifier -> dedup -> inference,
// drift, risk and aggregates
type Engine struct {
	source     MailboxSource
	accounts   AccountStore
	events     EventRepository
	classifier *Classifier
	scorer     *RiskScorer
	advisor    RiskAdvisor
	senders    SenderFilter
	logger     *zap.Logger
	opts       EngineOptions
	now        func() time.Time
}

// NewEngine creates a new scan engine
func NewEngine(
	source MailboxSource,
	accounts AccountStore,
	classifier *Classifier,
	scorer *RiskScorer,
	logger *zap.Logger,
	opts EngineOptions,
	options ...EngineOption,
) *Engine {
	defaults := DefaultEngineOptions()
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaults.CallTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = defaults.BackoffInitial
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaults.BackoffMax
	}
	if len(opts.Mailboxes) == 0 {
		opts.Mailboxes = defaults.Mailboxes
	}
	if opts.IncrementalOverlap < 0 {
		opts.IncrementalOverlap = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		source:     source,
		accounts:   accounts,
		classifier: classifier,
		scorer:     scorer,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

type accountOutcome struct {
	view      AccountLifecycleView
	risk      *RiskScoreEntry
	first     FirstEvents
	messages  int
	newEvents int
	err       error
}

// Scan runs one cycle over every account. Per-account failures are recorded
// in the result and never abort the scan; an error is returned only when the
// account universe cannot be listed or when no account could be scanned.
func (e *Engine) Scan(ctx context.Context, mode ScanMode, prev *Snapshot) (*Snapshot, error) {
	started := e.now()
	result := ScanResult{
		ScanID:    uuid.NewString(),
		Mode:      mode,
		StartedAt: started,
	}

	accounts, err := e.listAccounts(ctx)
	if err != nil {
		return nil, StoreUnavailable("", fmt.Errorf("failed to list accounts: %w", err))
	}

	e.logger.Info("Starting lifecycle scan",
		zap.String("scan_id", result.ScanID),
		zap.String("mode", string(mode)),
		zap.Int("accounts", len(accounts)))

	outcomes := make([]accountOutcome, len(accounts))

	// Plain group: one account failing must not cancel the others
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for i, email := range accounts {
		i, email := i, email
		g.Go(func() error {
			outcomes[i] = e.scanAccount(ctx, mode, email, prev)
			return nil
		})
	}
	_ = g.Wait()

	snapshot := &Snapshot{
		Views: make([]AccountLifecycleView, 0, len(outcomes)),
		Risks: make([]RiskScoreEntry, 0, len(outcomes)),
	}
	scanned := make(map[string]FirstEvents, len(outcomes))
	for _, o := range outcomes {
		snapshot.Views = append(snapshot.Views, o.view)
		if o.err != nil {
			result.Errors++
			result.FailedAccounts = append(result.FailedAccounts, AccountFailure{
				AccountEmail: o.view.AccountEmail,
				Kind:         KindOf(o.err),
				Message:      o.err.Error(),
			})
			continue
		}
		result.AccountsScanned++
		result.MessagesScanned += o.messages
		result.NewEventsFound += o.newEvents
		scanned[o.view.AccountEmail] = o.first
		if o.risk != nil {
			snapshot.Risks = append(snapshot.Risks, *o.risk)
		}
	}

	if len(accounts) > 0 && result.AccountsScanned == 0 {
		result.FinishedAt = e.now()
		return nil, &ScanError{
			Kind:   KindScanPartialFailure,
			Err:    fmt.Errorf("all %d accounts failed to scan", len(accounts)),
			Result: &result,
		}
	}

	sort.Slice(snapshot.Views, func(i, j int) bool {
		return snapshot.Views[i].AccountEmail < snapshot.Views[j].AccountEmail
	})
	sort.Slice(snapshot.Risks, func(i, j int) bool {
		return snapshot.Risks[i].AccountEmail < snapshot.Risks[j].AccountEmail
	})

	finished := e.now()
	snapshot.Stats = ComputeStats(scanned, finished)
	result.FinishedAt = finished
	snapshot.Result = result

	if result.Errors > 0 {
		e.logger.Warn("Lifecycle scan finished with failed accounts",
			zap.String("scan_id", result.ScanID),
			zap.Int("failed", result.Errors),
			zap.Int("scanned", result.AccountsScanned))
	} else {
		e.logger.Info("Lifecycle scan finished",
			zap.String("scan_id", result.ScanID),
			zap.Int("scanned", result.AccountsScanned),
			zap.Int("messages", result.MessagesScanned),
			zap.Int("new_events", result.NewEventsFound),
			zap.Duration("elapsed", finished.Sub(started)))
	}

	return snapshot, nil
}

func (e *Engine) scanAccount(ctx context.Context, mode ScanMode, email string, prev *Snapshot) accountOutcome {
	prevView, hadPrev := prev.View(email)
	since := e.sinceFor(mode, prevView, hadPrev)

	var msgs []RawMessage
	for _, mailbox := range e.opts.Mailboxes {
		batch, err := e.fetch(ctx, email, mailbox, since)
		if err != nil {
			e.logger.Warn("Skipping account for this cycle",
				zap.String("account", email),
				zap.String("mailbox", mailbox),
				zap.Error(err))
			return e.failed(email, prevView, hadPrev, SourceUnavailable(email, err))
		}
		msgs = append(msgs, batch...)
	}
	total := len(msgs)
	msgs = e.filterSenders(msgs)
	classified := e.classifier.Events(email, msgs)

	// Events are superseded, never lost: start from everything already known
	baseline := FirstEvents{}
	if hadPrev {
		baseline = prevView.FirstEventPerType.Clone()
	}
	if e.events != nil {
		stored, err := e.loadEvents(ctx, email)
		if err != nil {
			e.logger.Warn("Failed to load stored events", zap.String("account", email), zap.Error(err))
		} else {
			baseline, _ = baseline.Merge(Deduplicate(stored))
		}
	}
	first, added := baseline.Merge(Deduplicate(classified))

	if e.events != nil && added > 0 {
		if err := e.saveEvents(ctx, earliestEvents(classified)); err != nil {
			e.logger.Warn("Failed to persist events", zap.String("account", email), zap.Error(err))
		}
	}

	stage := InferStage(first)
	view := AccountLifecycleView{
		AccountEmail:      email,
		InferredStage:     stage,
		FirstEventPerType: first,
		LastScannedAt:     e.now(),
	}

	status, err := e.status(ctx, email)
	if err != nil {
		// Drift is skipped; the previous flag stays until the store answers again
		e.logger.Warn("Authoritative status unavailable, keeping previous drift flag",
			zap.String("account", email),
			zap.Error(err))
		if hadPrev {
			view.Mismatch = prevView.Mismatch
		}
	} else if mismatch, ok := DetectDrift(stage, status); ok {
		view.Mismatch = &mismatch
	}

	external := e.adviseRisk(ctx, email, stage, first, classified)
	entry := e.scorer.Score(RiskInput{
		AccountEmail:    email,
		First:           first,
		Drifted:         view.Mismatch != nil,
		ExternalFactors: external,
		AsOf:            view.LastScannedAt,
	})
	score := entry.Score
	view.RiskScore = &score
	view.RiskBand = RiskBand(score)

	return accountOutcome{
		view:      view,
		risk:      &entry,
		first:     first,
		messages:  total,
		newEvents: added,
	}
}

func (e *Engine) failed(email string, prevView AccountLifecycleView, hadPrev bool, err error) accountOutcome {
	view := AccountLifecycleView{
		AccountEmail:      email,
		InferredStage:     StageRegistered,
		FirstEventPerType: FirstEvents{},
	}
	if hadPrev {
		view = prevView
	}
	view.ScanFailed = true
	return accountOutcome{view: view, err: err}
}

func (e *Engine) sinceFor(mode ScanMode, prevView AccountLifecycleView, hadPrev bool) *time.Time {
	if mode != ScanIncremental || !hadPrev || prevView.LastScannedAt.IsZero() {
		return nil
	}
	since := prevView.LastScannedAt.Add(-e.opts.IncrementalOverlap)
	return &since
}

func (e *Engine) filterSenders(msgs []RawMessage) []RawMessage {
	if e.senders == nil {
		return msgs
	}
	kept := msgs[:0:0]
	for _, m := range msgs {
		if e.senders.IsWhitelisted(m.Sender.Address) {
			kept = append(kept, m)
		}
	}
	return kept
}

// fetch lists one mailbox with a per-call timeout and bounded retries
func (e *Engine) fetch(ctx context.Context, email, mailbox string, since *time.Time) ([]RawMessage, error) {
	var msgs []RawMessage
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		defer cancel()

		batch, err := e.source.ListMessages(callCtx, email, mailbox, since)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		msgs = batch
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.BackoffInitial
	b.MaxInterval = e.opts.BackoffMax
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.opts.MaxAttempts-1)), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		e.logger.Debug("Retrying mailbox fetch",
			zap.String("account", email),
			zap.String("mailbox", mailbox),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	return msgs, err
}

// listAccounts returns the lower-cased, de-duplicated account universe
func (e *Engine) listAccounts(ctx context.Context) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	raw, err := e.accounts.ListAccounts(callCtx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(raw))
	accounts := make([]string, 0, len(raw))
	for _, a := range raw {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func (e *Engine) status(ctx context.Context, email string) (Status, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	status, err := e.accounts.GetAuthoritativeStatus(callCtx, email)
	if err != nil {
		return "", StoreUnavailable(email, err)
	}
	return status, nil
}

func (e *Engine) loadEvents(ctx context.Context, email string) ([]AccountEmailEvent, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return e.events.LoadEvents(callCtx, email)
}

func (e *Engine) saveEvents(ctx context.Context, events []AccountEmailEvent) error {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return e.events.SaveEvents(callCtx, events)
}

func (e *Engine) adviseRisk(ctx context.Context, email string, stage Stage, first FirstEvents, classified []AccountEmailEvent) []string {
	if e.advisor == nil || len(e.opts.AdvisorVocabulary) == 0 {
		return nil
	}

	history := earliestEvents(classified)
	if len(history) == 0 {
		history = first.Events(email)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	factors, err := e.advisor.AssessAccount(callCtx, &AdvisorInput{
		AccountEmail: email,
		Stage:        stage,
		Events:       history,
		Vocabulary:   e.opts.AdvisorVocabulary,
	})
	if err != nil {
		e.logger.Warn("Risk advisor failed, scoring without external factors",
			zap.String("account", email),
			zap.Error(err))
		return nil
	}
	return factors
}

// earliestEvents keeps the earliest event per type with its source subject
func earliestEvents(events []AccountEmailEvent) []AccountEmailEvent {
	earliest := make(map[EventType]AccountEmailEvent, len(events))
	for _, ev := range events {
		if existing, ok := earliest[ev.EventType]; !ok || ev.EventDate.Before(existing.EventDate) {
			earliest[ev.EventType] = ev
		}
	}
	out := make([]AccountEmailEvent, 0, len(earliest))
	for _, ev := range earliest {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EventDate.Before(out[j].EventDate)
	})
	return out
}
