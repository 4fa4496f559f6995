package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/choraleia/daydigest/pkg/db"
	"github.com/choraleia/daydigest/pkg/event"
	"github.com/choraleia/daydigest/pkg/summarizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type analyzerFixture struct {
	dir       string
	dialogues *DialogueService
	summaries *SummaryStore
	history   *RunHistoryService
	emitter   *event.Emitter
	analyzer  *AnalyzerService
	written   []event.SummaryWrittenEvent
}

func newAnalyzerFixture(t *testing.T, appendTimes []string, now string, reconcileOnStart bool) *analyzerFixture {
	t.Helper()
	f := &analyzerFixture{dir: t.TempDir(), emitter: event.NewEmitter()}
	f.emitter.On(event.SummaryWritten, func(ev event.Event) {
		f.written = append(f.written, ev.(event.SummaryWrittenEvent))
	})

	if len(appendTimes) > 0 {
		clock := newStepClock(appendTimes...)
		f.dialogues = NewDialogueService(f.dir, f.emitter, WithDialogueClock(clock.Now))
		for i := range appendTimes {
			if i%2 == 0 {
				f.dialogues.Append(userRequest("如何实现分页查询？", "c1", "repo"))
			} else {
				f.dialogues.Append(userRequest("怎么优化缓存命中率？", "c1", "repo"))
			}
		}
	} else {
		f.dialogues = NewDialogueService(f.dir, f.emitter)
	}

	f.summaries = NewSummaryStore(f.dir)
	history, err := OpenRunHistory(f.dir)
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })
	f.history = history

	nowTime, err := time.Parse(time.RFC3339, now)
	require.NoError(t, err)
	engine := summarizer.New(summarizer.Unconfigured(), summarizer.Options{MinReportLength: 100})
	f.analyzer, err = NewAnalyzerService(f.dialogues, f.summaries, engine, f.history, f.emitter,
		AnalyzerConfig{CronSpec: "0 8 * * *", ReconcileOnStart: reconcileOnStart},
		WithAnalyzerClock(func() time.Time { return nowTime }))
	require.NoError(t, err)
	return f
}

func TestSummarizeDateWithoutMessagesIsNoop(t *testing.T) {
	f := newAnalyzerFixture(t, []string{"2024-01-05T08:00:00Z"}, "2024-01-06T08:00:00Z", false)

	outcome, err := f.analyzer.SummarizeDate(context.Background(), "2024-02-01", db.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.False(t, f.summaries.Exists("2024-02-01"))
	assert.Empty(t, f.written)

	runs, err := f.history.List("2024-02-01", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.RunStatusSkipped, runs[0].Status)
}

func TestSummarizeDateWritesHeuristicReport(t *testing.T) {
	f := newAnalyzerFixture(t, []string{"2024-01-05T08:00:00Z", "2024-01-05T09:00:00Z"}, "2024-01-06T08:00:00Z", false)

	outcome, err := f.analyzer.SummarizeDate(context.Background(), "2024-01-05", db.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, outcome)

	content, ok := f.summaries.Get("2024-01-05")
	require.True(t, ok)
	assert.Contains(t, content, "# 2024-01-05 Dialogue Summary")
	assert.Contains(t, content, "如何实现分页查询")

	require.Len(t, f.written, 1)
	assert.Equal(t, event.SummaryWrittenEvent{Date: "2024-01-05", Origin: "heuristic", Trigger: db.TriggerManual}, f.written[0])

	runs, err := f.history.List("", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, "heuristic", runs[0].Origin)
	assert.Equal(t, 2, runs[0].MessageCount)
}

func TestSummarizeDateRejectsBadDate(t *testing.T) {
	f := newAnalyzerFixture(t, nil, "2024-01-06T08:00:00Z", false)
	outcome, err := f.analyzer.SummarizeDate(context.Background(), "../etc", db.TriggerManual)
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, IsValidationError(err))
}

func TestAnalyzeYesterday(t *testing.T) {
	f := newAnalyzerFixture(t, []string{"2024-01-05T23:30:00Z"}, "2024-01-06T08:00:00Z", false)

	outcome, err := f.analyzer.AnalyzeYesterday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, outcome)
	assert.True(t, f.summaries.Exists("2024-01-05"))
	require.Len(t, f.written, 1)
	assert.Equal(t, db.TriggerSchedule, f.written[0].Trigger)
}

func TestReconcileFillsOnlyMissingDates(t *testing.T) {
	f := newAnalyzerFixture(t, []string{
		"2024-01-05T10:00:00Z",
		"2024-01-06T10:00:00Z",
		"2024-01-07T10:00:00Z",
	}, "2024-01-08T09:00:00Z", false)
	require.NoError(t, f.summaries.Save("2024-01-06", "existing"))

	attempted, err := f.analyzer.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-05", "2024-01-07"}, attempted)

	assert.True(t, f.summaries.Exists("2024-01-05"))
	assert.True(t, f.summaries.Exists("2024-01-07"))
	content, ok := f.summaries.Get("2024-01-06")
	require.True(t, ok)
	assert.Equal(t, "existing", content)

	runs, err := f.history.List("", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, db.TriggerReconcile, r.Trigger)
	}

	// A second pass has nothing left to do.
	attempted, err = f.analyzer.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, attempted)
}

func TestReconcileStopsOnCancelledContext(t *testing.T) {
	f := newAnalyzerFixture(t, []string{"2024-01-05T10:00:00Z", "2024-01-06T10:00:00Z"}, "2024-01-08T09:00:00Z", false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempted, err := f.analyzer.Reconcile(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, attempted)
	assert.Empty(t, f.summaries.List())
}

// blockSummary puts a non-empty directory where the summary file for date
// would go, so saving it fails.
func blockSummary(t *testing.T, f *analyzerFixture, date string) {
	t.Helper()
	target := filepath.Join(f.dir, "summaries", date+".md")
	require.NoError(t, os.MkdirAll(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "keep"), []byte("x"), 0o644))
}

func TestSummarizeDateSaveFailure(t *testing.T) {
	f := newAnalyzerFixture(t, []string{"2024-01-05T08:00:00Z"}, "2024-01-06T08:00:00Z", false)
	blockSummary(t, f, "2024-01-05")

	outcome, err := f.analyzer.SummarizeDate(context.Background(), "2024-01-05", db.TriggerManual)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.False(t, IsValidationError(err))
	assert.False(t, f.summaries.Exists("2024-01-05"))
	assert.Empty(t, f.written)

	leftovers, err := filepath.Glob(filepath.Join(f.dir, "summaries", ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	runs, err := f.history.List("2024-01-05", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "save summary 2024-01-05")
	assert.Equal(t, "heuristic", runs[0].Origin)
}

func TestReconcileContinuesAfterFailure(t *testing.T) {
	f := newAnalyzerFixture(t, []string{"2024-01-05T10:00:00Z", "2024-01-06T10:00:00Z"}, "2024-01-08T09:00:00Z", false)
	blockSummary(t, f, "2024-01-05")

	attempted, err := f.analyzer.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-05", "2024-01-06"}, attempted)

	assert.False(t, f.summaries.Exists("2024-01-05"))
	assert.True(t, f.summaries.Exists("2024-01-06"))
	require.Len(t, f.written, 1)
	assert.Equal(t, "2024-01-06", f.written[0].Date)

	failed, err := f.history.List("2024-01-05", 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, db.RunStatusFailed, failed[0].Status)
}

func TestReconcileDateSkipsSummaryWrittenMeanwhile(t *testing.T) {
	f := newAnalyzerFixture(t, []string{"2024-01-05T10:00:00Z"}, "2024-01-08T09:00:00Z", false)
	require.NoError(t, f.summaries.Save("2024-01-05", "manual"))

	assert.False(t, f.analyzer.reconcileDate(context.Background(), "2024-01-05"))
	content, ok := f.summaries.Get("2024-01-05")
	require.True(t, ok)
	assert.Equal(t, "manual", content)

	runs, err := f.history.List("", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStoreExternal(t *testing.T) {
	f := newAnalyzerFixture(t, nil, "2024-01-06T08:00:00Z", false)

	require.NoError(t, f.analyzer.StoreExternal("2024-01-05", "# test"))
	content, ok := f.summaries.Get("2024-01-05")
	require.True(t, ok)
	assert.Equal(t, "# test", content)
	require.Len(t, f.written, 1)
	assert.Equal(t, OriginExternal, f.written[0].Origin)

	assert.ErrorIs(t, f.analyzer.StoreExternal("2024-01-05", "  "), ErrEmptySummary)
	assert.ErrorIs(t, f.analyzer.StoreExternal("20240105", "# x"), ErrInvalidDate)
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		now  string
		want string
	}{
		{now: "2024-01-05T07:00:00Z", want: "2024-01-05T08:00:00Z"},
		{now: "2024-01-05T08:30:00Z", want: "2024-01-06T08:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.now, func(t *testing.T) {
			f := newAnalyzerFixture(t, nil, tt.now, false)
			assert.Equal(t, tt.want, f.analyzer.NextRun().Format(time.RFC3339))
		})
	}
}

func TestNewAnalyzerServiceRejectsBadCron(t *testing.T) {
	_, err := NewAnalyzerService(nil, nil, nil, nil, nil, AnalyzerConfig{CronSpec: "every morning"})
	assert.Error(t, err)
}

func TestStartReconcilesInBackground(t *testing.T) {
	f := newAnalyzerFixture(t, []string{"2024-01-05T10:00:00Z"}, "2024-01-06T07:00:00Z", true)

	f.analyzer.Start(context.Background())
	f.analyzer.Stop()

	assert.True(t, f.summaries.Exists("2024-01-05"))
}

func TestSummaryStoreListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewSummaryStore(dir)
	require.NoError(t, store.Save("2024-01-05", "a"))
	require.NoError(t, store.Save("2024-01-07", "b"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summaries", "notes.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summaries", "2024-01-06.txt"), []byte("x"), 0o644))

	assert.Equal(t, []string{"2024-01-07", "2024-01-05"}, store.List())

	_, ok := store.Get("2024-01-06")
	assert.False(t, ok)
	assert.ErrorIs(t, store.Save("2024-13-01", "x"), ErrInvalidDate)
}

func TestSummaryStoreOverwrite(t *testing.T) {
	store := NewSummaryStore(t.TempDir())
	require.NoError(t, store.Save("2024-01-05", "first"))
	require.NoError(t, store.Save("2024-01-05", "second"))
	content, ok := store.Get("2024-01-05")
	require.True(t, ok)
	assert.Equal(t, "second", content)
}
