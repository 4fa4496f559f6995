package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/choraleia/daydigest/pkg/event"
	"github.com/choraleia/daydigest/pkg/models"
	"github.com/choraleia/daydigest/pkg/utils"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

// TimestampLayout is the persisted message timestamp format (always UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// DateLayout is the calendar-day key used for projections and summaries.
const DateLayout = "2006-01-02"

// DialogueService is the append-only message log. It keeps every message in
// memory and rewrites the whole JSON file on each append.
type DialogueService struct {
	mu        sync.RWMutex
	dialogues []models.Message
	dataFile  string
	emitter   *event.Emitter
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// DialogueOption customizes a DialogueService.
type DialogueOption func(*DialogueService)

// WithDialogueClock overrides the wall clock used for timestamps.
func WithDialogueClock(now func() time.Time) DialogueOption {
	return func(s *DialogueService) { s.now = now }
}

// NewDialogueService loads <dataDir>/dialogues/current.json. Missing or
// malformed data never fails construction; the store just starts empty.
func NewDialogueService(dataDir string, emitter *event.Emitter, opts ...DialogueOption) *DialogueService {
	logDir := filepath.Join(dataDir, "dialogues")
	s := &DialogueService{
		dataFile: filepath.Join(logDir, "current.json"),
		emitter:  emitter,
		now:      time.Now,
		newID:    newMessageID,
		logger:   utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		s.logger.Error("Failed to create dialogue directory", "dir", logDir, "error", err)
	}
	if err := s.load(); err != nil {
		s.logger.Error("Failed to load existing dialogues, starting empty", "file", s.dataFile, "error", err)
		s.dialogues = nil
	}
	return s
}

// newMessageID returns a UUIDv7: a millisecond timestamp prefix plus random bits.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// load reads messages from the JSON file if it exists.
func (s *DialogueService) load() error {
	data, err := os.ReadFile(s.dataFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return pkgerrors.Wrap(err, "read dialogue file")
	}
	var list []models.Message
	if err := json.Unmarshal(data, &list); err != nil {
		return pkgerrors.Wrap(err, "decode dialogue file")
	}
	s.dialogues = list
	return nil
}

// save persists the full collection. Callers must hold s.mu.
func (s *DialogueService) save() error {
	data, err := json.MarshalIndent(s.dialogues, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "encode dialogues")
	}
	return writeFileAtomic(s.dataFile, data, 0o644)
}

// Append records a new message. The id and timestamp are assigned here.
// A failed write is logged; the message stays visible in memory for the rest
// of the process.
func (s *DialogueService) Append(req models.CreateDialogueRequest) models.Message {
	msg := models.Message{
		ID:             s.newID(),
		Timestamp:      s.now().UTC().Format(TimestampLayout),
		Role:           req.Role,
		Content:        req.Content,
		Workspace:      req.Workspace,
		Repository:     req.Repository,
		ConversationID: req.ConversationID,
		GenerationID:   req.GenerationID,
	}

	s.mu.Lock()
	s.dialogues = append(s.dialogues, msg)
	if err := s.save(); err != nil {
		s.logger.Error("Failed to persist dialogues", "file", s.dataFile, "error", err)
	}
	s.mu.Unlock()

	s.emitter.Emit(event.DialogueRecordedEvent{
		MessageID:      msg.ID,
		Role:           string(msg.Role),
		Date:           messageDate(msg),
		Repository:     msg.Repository,
		ConversationID: msg.ConversationID,
	})
	s.logger.Info("Recorded dialogue", "id", msg.ID, "role", msg.Role, "preview", preview(msg.Content, 50))
	return msg
}

// ListAll returns every message in arrival order.
func (s *DialogueService) ListAll() []models.Message {
	return s.filter(func(models.Message) bool { return true })
}

// ListByDate returns messages whose timestamp falls on date (UTC calendar day).
func (s *DialogueService) ListByDate(date string) []models.Message {
	return s.filter(func(m models.Message) bool { return messageDate(m) == date })
}

// ListByConversation returns messages of one conversation.
func (s *DialogueService) ListByConversation(conversationID string) []models.Message {
	return s.filter(func(m models.Message) bool { return m.ConversationID == conversationID })
}

// ListByRepository returns messages recorded for one repository.
func (s *DialogueService) ListByRepository(repository string) []models.Message {
	return s.filter(func(m models.Message) bool { return m.Repository == repository })
}

func (s *DialogueService) filter(keep func(models.Message) bool) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]models.Message, 0)
	for _, m := range s.dialogues {
		if keep(m) {
			res = append(res, m)
		}
	}
	return res
}

// Conversations groups messages by conversation_id, newest activity first.
// Messages without a conversation_id are not part of any group.
func (s *DialogueService) Conversations() []models.ConversationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int)
	var res []models.ConversationInfo
	for _, m := range s.dialogues {
		if m.ConversationID == "" {
			continue
		}
		i, ok := index[m.ConversationID]
		if !ok {
			i = len(res)
			index[m.ConversationID] = i
			res = append(res, models.ConversationInfo{
				ID:         m.ConversationID,
				Repository: m.Repository,
				Workspace:  m.Workspace,
			})
		}
		res[i].Count++
		res[i].LastMessage = m.Timestamp
	}
	sort.SliceStable(res, func(a, b int) bool { return res[a].LastMessage > res[b].LastMessage })
	if res == nil {
		res = []models.ConversationInfo{}
	}
	return res
}

// Repositories counts messages per repository, busiest first.
func (s *DialogueService) Repositories() []models.RepositoryInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int)
	res := make([]models.RepositoryInfo, 0)
	for _, m := range s.dialogues {
		if m.Repository == "" {
			continue
		}
		i, ok := index[m.Repository]
		if !ok {
			i = len(res)
			index[m.Repository] = i
			res = append(res, models.RepositoryInfo{Name: m.Repository})
		}
		res[i].Count++
	}
	sort.SliceStable(res, func(a, b int) bool { return res[a].Count > res[b].Count })
	return res
}

// Stats returns the total message count and per-date counts.
func (s *DialogueService) Stats() models.DialogueStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDate := make(map[string]int)
	for _, m := range s.dialogues {
		if d := messageDate(m); d != "" {
			byDate[d]++
		}
	}
	return models.DialogueStats{Total: len(s.dialogues), ByDate: byDate}
}

// messageDate truncates a message timestamp to its UTC calendar day, or ""
// when the timestamp cannot be parsed.
func messageDate(m models.Message) string {
	ts, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return ""
	}
	return ts.UTC().Format(DateLayout)
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// writeFileAtomic writes to a sibling temp file and renames it over path, so
// a crash leaves either the previous or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return pkgerrors.Wrapf(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return pkgerrors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return pkgerrors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return pkgerrors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return pkgerrors.Wrapf(err, "rename to %s", path)
	}
	return nil
}
