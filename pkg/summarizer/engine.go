// Package summarizer turns one day's messages into a markdown report, with a
// remote chat model when one is configured and a deterministic rule-based
// analyzer otherwise.
package summarizer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/choraleia/daydigest/pkg/models"
	"github.com/choraleia/daydigest/pkg/utils"
	einoModel "github.com/cloudwego/eino/components/model"
)

// ErrNoMessages is returned by Summarize for an empty day.
var ErrNoMessages = errors.New("no messages to summarize")

// Origin records which strategy produced a report.
type Origin string

const (
	OriginRemote    Origin = "remote"
	OriginHeuristic Origin = "heuristic"
	OriginFallback  Origin = "heuristic-fallback"
)

// Report is a finished summary document.
type Report struct {
	Markdown string
	Origin   Origin
}

// Backend is either unconfigured or a remote chat model. The zero value is
// unconfigured.
type Backend struct {
	chat  einoModel.BaseChatModel
	label string
	// knowledgeOpts request structured JSON output from providers that
	// support it.
	knowledgeOpts []einoModel.Option
}

// Unconfigured selects heuristic-only summaries.
func Unconfigured() Backend { return Backend{} }

// Remote selects a chat model; label names it in logs and report footers.
func Remote(chat einoModel.BaseChatModel, label string) Backend {
	return Backend{chat: chat, label: label}
}

// WithKnowledgeOptions returns a copy of b whose knowledge extraction calls
// also carry opts.
func (b Backend) WithKnowledgeOptions(opts ...einoModel.Option) Backend {
	b.knowledgeOpts = append(append([]einoModel.Option(nil), b.knowledgeOpts...), opts...)
	return b
}

// Configured reports whether the backend has a remote model.
func (b Backend) Configured() bool { return b.chat != nil }

// Mode is "remote" or "heuristic".
func (b Backend) Mode() string {
	if b.Configured() {
		return string(OriginRemote)
	}
	return string(OriginHeuristic)
}

func (b Backend) Label() string { return b.label }

// KnowledgeOptions are the extra options sent with knowledge extraction.
func (b Backend) KnowledgeOptions() []einoModel.Option { return b.knowledgeOpts }

type Options struct {
	// MinReportLength is the minimum rune count of an acceptable remote
	// report. Zero disables the check.
	MinReportLength int
}

// Engine is safe for concurrent use.
type Engine struct {
	backend Backend
	remote  *remoteStrategy
	logger  *slog.Logger
}

func New(backend Backend, opts Options) *Engine {
	e := &Engine{backend: backend, logger: utils.GetLogger()}
	if backend.Configured() {
		e.remote = &remoteStrategy{
			chat:          backend.chat,
			label:         backend.label,
			knowledgeOpts: backend.knowledgeOpts,
			minLen:        opts.MinReportLength,
			logger:        e.logger,
		}
	}
	return e
}

func (e *Engine) Backend() Backend { return e.backend }

// Summarize produces the report for date. The only error is ErrNoMessages;
// remote failures are absorbed by falling back to the heuristic analyzer.
func (e *Engine) Summarize(ctx context.Context, msgs []models.Message, date string) (Report, error) {
	if len(msgs) == 0 {
		return Report{}, ErrNoMessages
	}
	if e.remote == nil {
		return Heuristic(msgs, date, OriginHeuristic), nil
	}

	text, err := e.remote.summarize(ctx, msgs, date)
	if err != nil {
		e.logger.Warn("Remote summary unavailable, using heuristic analyzer",
			"date", date, "model", e.backend.label, "error", err)
		return Heuristic(msgs, date, OriginFallback), nil
	}
	return Report{Markdown: text + remoteFooter(e.backend.label), Origin: OriginRemote}, nil
}

// Heuristic runs the rule-based analyzer and renders its report.
func Heuristic(msgs []models.Message, date string, origin Origin) Report {
	return Report{Markdown: RenderHeuristic(date, Analyze(msgs), origin), Origin: origin}
}
