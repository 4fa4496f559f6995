package service

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/choraleia/daydigest/pkg/event"
	"github.com/choraleia/daydigest/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock returns the queued times in order, repeating the last one.
type stepClock struct {
	mu    sync.Mutex
	times []time.Time
}

func newStepClock(times ...string) *stepClock {
	c := &stepClock{}
	for _, s := range times {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			panic(err)
		}
		c.times = append(c.times, ts)
	}
	return c
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return t
}

func userRequest(content, conversation, repository string) models.CreateDialogueRequest {
	return models.CreateDialogueRequest{
		Role:           models.RoleUser,
		Content:        content,
		ConversationID: conversation,
		Repository:     repository,
		Workspace:      "/work/" + repository,
	}
}

func TestDialogueAppendReadBack(t *testing.T) {
	dir := t.TempDir()
	clock := newStepClock("2024-01-05T08:30:00Z")
	svc := NewDialogueService(dir, nil, WithDialogueClock(clock.Now))

	msg := svc.Append(userRequest("如何优化性能？", "c1", "repo-a"))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "2024-01-05T08:30:00.000Z", msg.Timestamp)

	byDate := svc.ListByDate("2024-01-05")
	require.Len(t, byDate, 1)
	assert.Equal(t, msg, byDate[0])

	// A fresh instance sees what the first one persisted.
	reloaded := NewDialogueService(dir, nil)
	require.Len(t, reloaded.ListAll(), 1)
	assert.Equal(t, msg, reloaded.ListAll()[0])
}

func TestDialogueUniqueIDs(t *testing.T) {
	svc := NewDialogueService(t.TempDir(), nil)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		m := svc.Append(userRequest("hello", "", ""))
		require.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
}

func TestDialogueMalformedFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dialogues"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dialogues", "current.json"), []byte("{not json"), 0o644))

	svc := NewDialogueService(dir, nil)
	assert.Empty(t, svc.ListAll())

	svc.Append(userRequest("first after recovery", "", ""))
	reloaded := NewDialogueService(dir, nil)
	assert.Len(t, reloaded.ListAll(), 1)
}

func TestDialogueProjections(t *testing.T) {
	clock := newStepClock(
		"2024-01-05T08:00:00Z",
		"2024-01-05T09:00:00Z",
		"2024-01-06T10:00:00Z",
		"2024-01-06T11:00:00Z",
	)
	svc := NewDialogueService(t.TempDir(), nil, WithDialogueClock(clock.Now))
	svc.Append(userRequest("one", "c1", "repo-a"))
	svc.Append(userRequest("two", "c2", "repo-b"))
	svc.Append(userRequest("three", "c2", "repo-b"))
	svc.Append(userRequest("four", "", ""))

	conversations := svc.Conversations()
	require.Len(t, conversations, 2)
	assert.Equal(t, models.ConversationInfo{
		ID:          "c2",
		Repository:  "repo-b",
		Workspace:   "/work/repo-b",
		Count:       2,
		LastMessage: "2024-01-06T10:00:00.000Z",
	}, conversations[0])
	assert.Equal(t, "c1", conversations[1].ID)

	repos := svc.Repositories()
	assert.Equal(t, []models.RepositoryInfo{{Name: "repo-b", Count: 2}, {Name: "repo-a", Count: 1}}, repos)

	stats := svc.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, map[string]int{"2024-01-05": 2, "2024-01-06": 2}, stats.ByDate)

	assert.Len(t, svc.ListByConversation("c2"), 2)
	assert.Len(t, svc.ListByRepository("repo-a"), 1)
	assert.Empty(t, svc.ListByDate("2024-01-07"))
}

func TestDialogueStatsSkipsUnparseableTimestamps(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dialogues"), 0o755))
	data := `[
  {"id":"a","timestamp":"2024-01-05T08:00:00.000Z","role":"user","content":"x"},
  {"id":"b","timestamp":"yesterday","role":"assistant","content":"y"}
]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dialogues", "current.json"), []byte(data), 0o644))

	stats := NewDialogueService(dir, nil).Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, map[string]int{"2024-01-05": 1}, stats.ByDate)
}

func TestDialogueAppendEmitsEvent(t *testing.T) {
	emitter := event.NewEmitter()
	var got []event.DialogueRecordedEvent
	emitter.On(event.DialogueRecorded, func(ev event.Event) {
		got = append(got, ev.(event.DialogueRecordedEvent))
	})

	clock := newStepClock("2024-01-05T23:59:59Z")
	svc := NewDialogueService(t.TempDir(), emitter, WithDialogueClock(clock.Now))
	msg := svc.Append(userRequest("hi", "c9", "repo"))

	require.Len(t, got, 1)
	assert.Equal(t, msg.ID, got[0].MessageID)
	assert.Equal(t, "2024-01-05", got[0].Date)
	assert.Equal(t, "c9", got[0].ConversationID)
}
