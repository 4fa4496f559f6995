package service

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/choraleia/daydigest/pkg/utils"
)

var (
	ErrInvalidDate  = errors.New("date must be formatted as YYYY-MM-DD")
	ErrEmptySummary = errors.New("summary content is empty")
)

var summaryFilePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.md$`)

// ValidDate reports whether date is a real calendar day in YYYY-MM-DD form.
func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

// SummaryStore keeps one markdown document per date under a directory.
type SummaryStore struct {
	dir    string
	logger *slog.Logger
}

// NewSummaryStore uses <dataDir>/summaries.
func NewSummaryStore(dataDir string) *SummaryStore {
	s := &SummaryStore{
		dir:    filepath.Join(dataDir, "summaries"),
		logger: utils.GetLogger(),
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Error("Failed to create summaries directory", "dir", s.dir, "error", err)
	}
	return s
}

func (s *SummaryStore) path(date string) string {
	return filepath.Join(s.dir, date+".md")
}

// Save creates or overwrites the summary for date.
func (s *SummaryStore) Save(date, markdown string) error {
	if !ValidDate(date) {
		return ErrInvalidDate
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeFileAtomic(s.path(date), []byte(markdown), 0o644)
}

// Get returns the summary for date. ok is false when no summary exists or it
// cannot be read.
func (s *SummaryStore) Get(date string) (content string, ok bool) {
	if !ValidDate(date) {
		return "", false
	}
	b, err := os.ReadFile(s.path(date))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("Failed to read summary", "date", date, "error", err)
		}
		return "", false
	}
	return string(b), true
}

// Exists reports whether a summary file is present for date.
func (s *SummaryStore) Exists(date string) bool {
	if !ValidDate(date) {
		return false
	}
	fi, err := os.Stat(s.path(date))
	return err == nil && fi.Mode().IsRegular()
}

// List returns the dates that have a summary, newest first. Files that do not
// match YYYY-MM-DD.md are ignored.
func (s *SummaryStore) List() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("Failed to list summaries", "dir", s.dir, "error", err)
		}
		return []string{}
	}
	dates := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !summaryFilePattern.MatchString(e.Name()) {
			continue
		}
		dates = append(dates, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}
