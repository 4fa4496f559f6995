package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/choraleia/daydigest/pkg/db"
	"github.com/choraleia/daydigest/pkg/event"
	"github.com/choraleia/daydigest/pkg/summarizer"
	"github.com/choraleia/daydigest/pkg/utils"
	"github.com/robfig/cron/v3"
)

// Outcome is the result of one summarize attempt.
type Outcome string

const (
	OutcomeWritten Outcome = "written"
	OutcomeSkipped Outcome = "skipped" // no messages for the date
	OutcomeFailed  Outcome = "failed"
)

// OriginExternal marks summaries stored verbatim from an outside tool.
const OriginExternal = "external"

// AnalyzerConfig holds scheduling settings.
type AnalyzerConfig struct {
	CronSpec         string
	ReconcileOnStart bool
	// HistoryRetention prunes older run history after each scheduled run.
	// Zero keeps everything.
	HistoryRetention time.Duration
}

// AnalyzerService runs the daily summary job, fills gaps on startup and
// serves manual requests. All summarize work runs one date at a time.
type AnalyzerService struct {
	dialogues *DialogueService
	summaries *SummaryStore
	engine    *summarizer.Engine
	history   *RunHistoryService
	emitter   *event.Emitter
	config    AnalyzerConfig
	schedule  cron.Schedule
	now       func() time.Time
	logger    *slog.Logger

	runMu sync.Mutex

	cron *cron.Cron
	wg   sync.WaitGroup
}

// AnalyzerOption customizes an AnalyzerService.
type AnalyzerOption func(*AnalyzerService)

// WithAnalyzerClock overrides the clock used to compute "yesterday" and the
// next scheduled run.
func WithAnalyzerClock(now func() time.Time) AnalyzerOption {
	return func(s *AnalyzerService) { s.now = now }
}

// NewAnalyzerService validates the cron spec up front. history and emitter
// may be nil.
func NewAnalyzerService(
	dialogues *DialogueService,
	summaries *SummaryStore,
	engine *summarizer.Engine,
	history *RunHistoryService,
	emitter *event.Emitter,
	config AnalyzerConfig,
	opts ...AnalyzerOption,
) (*AnalyzerService, error) {
	spec := strings.TrimSpace(config.CronSpec)
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	s := &AnalyzerService{
		dialogues: dialogues,
		summaries: summaries,
		engine:    engine,
		history:   history,
		emitter:   emitter,
		config:    config,
		schedule:  schedule,
		now:       time.Now,
		logger:    utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the daily job and, when configured, reconciles missing
// summaries in the background. ctx bounds every job started from here.
func (s *AnalyzerService) Start(ctx context.Context) {
	s.cron = cron.New(cron.WithLocation(time.UTC))
	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.AnalyzeYesterday(ctx); err != nil {
			s.logger.Error("Scheduled analysis failed", "error", err)
		}
		s.PruneHistory(ctx)
	}))
	s.cron.Start()

	if s.config.ReconcileOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.Reconcile(ctx); err != nil {
				s.logger.Warn("Reconcile stopped early", "error", err)
			}
		}()
	}

	s.logger.Info("Daily analyzer started", "cron", s.config.CronSpec, "next_run", s.NextRun())
}

// Stop halts the scheduler and waits for running jobs.
func (s *AnalyzerService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
}

// NextRun is the next time the daily job fires.
func (s *AnalyzerService) NextRun() time.Time {
	return s.schedule.Next(s.now().UTC())
}

// PruneHistory drops run history older than the retention window.
func (s *AnalyzerService) PruneHistory(ctx context.Context) {
	if s.config.HistoryRetention <= 0 || s.history == nil {
		return
	}
	cutoff := s.now().UTC().Add(-s.config.HistoryRetention)
	n, err := s.history.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Warn("Failed to prune run history", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Pruned run history", "removed", n, "before", cutoff)
	}
}

// AnalyzeYesterday summarizes the UTC calendar day before now.
func (s *AnalyzerService) AnalyzeYesterday(ctx context.Context) (Outcome, error) {
	date := s.now().UTC().AddDate(0, 0, -1).Format(DateLayout)
	return s.SummarizeDate(ctx, date, db.TriggerSchedule)
}

// Reconcile summarizes every date that has messages but no summary, oldest
// first. Existing summaries are never touched. It returns the dates it
// attempted. The run lock is taken per date so manual requests can
// interleave with a long pass.
func (s *AnalyzerService) Reconcile(ctx context.Context) ([]string, error) {
	var missing []string
	for date := range s.dialogues.Stats().ByDate {
		if !s.summaries.Exists(date) {
			missing = append(missing, date)
		}
	}
	sort.Strings(missing)
	if len(missing) == 0 {
		return []string{}, nil
	}

	s.logger.Info("Filling missing summaries", "count", len(missing), "dates", strings.Join(missing, ","))
	attempted := make([]string, 0, len(missing))
	for _, date := range missing {
		if err := ctx.Err(); err != nil {
			return attempted, err
		}
		if s.reconcileDate(ctx, date) {
			attempted = append(attempted, date)
		}
	}
	return attempted, nil
}

// reconcileDate summarizes date unless a summary appeared since the pass
// started. Failures are already logged and recorded.
func (s *AnalyzerService) reconcileDate(ctx context.Context, date string) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.summaries.Exists(date) {
		return false
	}
	_, _ = s.summarizeLocked(ctx, date, db.TriggerReconcile)
	return true
}

// SummarizeDate produces and stores the summary for date, overwriting any
// existing one. A date without messages is a no-op.
func (s *AnalyzerService) SummarizeDate(ctx context.Context, date, trigger string) (Outcome, error) {
	if !ValidDate(date) {
		return OutcomeFailed, ErrInvalidDate
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.summarizeLocked(ctx, date, trigger)
}

func (s *AnalyzerService) summarizeLocked(ctx context.Context, date, trigger string) (Outcome, error) {
	start := time.Now()
	msgs := s.dialogues.ListByDate(date)
	run := &db.AnalysisRun{Date: date, Trigger: trigger, MessageCount: len(msgs)}
	defer func() {
		run.DurationMs = time.Since(start).Milliseconds()
		s.history.Record(run)
	}()

	if len(msgs) == 0 {
		run.Status = db.RunStatusSkipped
		s.logger.Info("No dialogues for date, skipping", "date", date, "trigger", trigger)
		return OutcomeSkipped, nil
	}

	s.logger.Info("Analyzing dialogues", "date", date, "trigger", trigger, "messages", len(msgs))
	report, err := s.engine.Summarize(ctx, msgs, date)
	if err != nil {
		return s.fail(run, fmt.Errorf("summarize %s: %w", date, err))
	}
	run.Origin = string(report.Origin)

	if err := s.summaries.Save(date, report.Markdown); err != nil {
		return s.fail(run, fmt.Errorf("save summary %s: %w", date, err))
	}

	run.Status = db.RunStatusSucceeded
	s.logger.Info("Summary written", "date", date, "origin", report.Origin, "duration", time.Since(start))
	s.emitter.Emit(event.SummaryWrittenEvent{Date: date, Origin: string(report.Origin), Trigger: trigger})
	return OutcomeWritten, nil
}

func (s *AnalyzerService) fail(run *db.AnalysisRun, err error) (Outcome, error) {
	run.Status = db.RunStatusFailed
	run.Error = err.Error()
	s.logger.Error("Analysis failed", "date", run.Date, "trigger", run.Trigger, "error", err)
	return OutcomeFailed, err
}

// StoreExternal saves a summary produced outside the engine, verbatim.
func (s *AnalyzerService) StoreExternal(date, markdown string) error {
	if !ValidDate(date) {
		return ErrInvalidDate
	}
	if strings.TrimSpace(markdown) == "" {
		return ErrEmptySummary
	}
	run := &db.AnalysisRun{Date: date, Trigger: db.TriggerExternal, Origin: OriginExternal}
	defer s.history.Record(run)

	if err := s.summaries.Save(date, markdown); err != nil {
		run.Status = db.RunStatusFailed
		run.Error = err.Error()
		return fmt.Errorf("save summary %s: %w", date, err)
	}
	run.Status = db.RunStatusSucceeded
	s.logger.Info("External summary stored", "date", date)
	s.emitter.Emit(event.SummaryWrittenEvent{Date: date, Origin: OriginExternal, Trigger: db.TriggerExternal})
	return nil
}

// IsValidationError reports whether err came from bad caller input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidDate) || errors.Is(err, ErrEmptySummary)
}
