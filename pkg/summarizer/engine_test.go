package summarizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/choraleia/daydigest/pkg/models"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReply struct {
	content string
	err     error
}

type fakeOptions struct {
	jsonMode bool
}

func withFakeJSONMode() einoModel.Option {
	return einoModel.WrapImplSpecificOptFn(func(o *fakeOptions) { o.jsonMode = true })
}

// fakeChatModel replays canned replies and records every request.
type fakeChatModel struct {
	mu           sync.Mutex
	replies      []fakeReply
	prompts      [][]*schema.Message
	temperatures []float32
	jsonMode     []bool
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, input)
	if o := einoModel.GetCommonOptions(nil, opts...); o.Temperature != nil {
		f.temperatures = append(f.temperatures, *o.Temperature)
	}
	f.jsonMode = append(f.jsonMode, einoModel.GetImplSpecificOptions(&fakeOptions{}, opts...).jsonMode)
	if len(f.replies) == 0 {
		return nil, errors.New("no reply queued")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return schema.AssistantMessage(r.content, nil), nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func dayMessages() []models.Message {
	return []models.Message{
		userMsg("如何优化性能？"),
		assistantMsg("可以使用缓存减少数据库访问。"),
	}
}

var longReport = "# 2024-01-05 Dialogue Summary\n\n" + strings.Repeat("Caching reduces database load and latency. ", 5)

func TestSummarizeEmpty(t *testing.T) {
	e := New(Unconfigured(), Options{})
	_, err := e.Summarize(context.Background(), nil, "2024-01-05")
	require.ErrorIs(t, err, ErrNoMessages)
}

func TestSummarizeUnconfigured(t *testing.T) {
	e := New(Unconfigured(), Options{MinReportLength: 100})
	rep, err := e.Summarize(context.Background(), dayMessages(), "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, OriginHeuristic, rep.Origin)
	assert.True(t, strings.HasPrefix(rep.Markdown, "# 2024-01-05 Dialogue Summary"))
	assert.Contains(t, rep.Markdown, footerHeuristic)
	assert.Equal(t, "heuristic", e.Backend().Mode())
}

func TestSummarizeRemote(t *testing.T) {
	fake := &fakeChatModel{replies: []fakeReply{
		{content: "```json\n{\"knowledgePoints\":[{\"title\":\"Query caching\",\"content\":\"Cache hot rows.\"}]}\n```"},
		{content: longReport},
	}}
	backend := Remote(fake, "openai/gpt-4").WithKnowledgeOptions(withFakeJSONMode())
	e := New(backend, Options{MinReportLength: 100})

	rep, err := e.Summarize(context.Background(), dayMessages(), "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, OriginRemote, rep.Origin)
	assert.True(t, strings.HasPrefix(rep.Markdown, strings.TrimSpace(longReport)))
	// JSON mode applies to knowledge extraction only.
	assert.Equal(t, []bool{true, false}, fake.jsonMode)
	assert.Contains(t, rep.Markdown, "*Generated by remote model openai/gpt-4.*")

	require.Len(t, fake.prompts, 2)
	assert.Equal(t, []float32{knowledgeTemperature, reportTemperature}, fake.temperatures)
	reportPrompt := fake.prompts[1][1].Content
	assert.Contains(t, reportPrompt, "### Query caching\nCache hot rows.")
	assert.Contains(t, reportPrompt, "Do not include any timestamps")
	assert.Contains(t, reportPrompt, "- User questions: 1")
}

func TestSummarizeRemoteKnowledgeFailureStillReports(t *testing.T) {
	fake := &fakeChatModel{replies: []fakeReply{
		{content: "not json at all"},
		{content: longReport},
	}}
	e := New(Remote(fake, "m"), Options{MinReportLength: 100})

	rep, err := e.Summarize(context.Background(), dayMessages(), "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, OriginRemote, rep.Origin)
	assert.Contains(t, fake.prompts[1][1].Content, "Summarize the knowledge points discussed today")
}

func TestSummarizeRemoteFallback(t *testing.T) {
	tests := []struct {
		name    string
		minLen  int
		replies []fakeReply
	}{
		{
			name:   "report too short",
			minLen: 100,
			replies: []fakeReply{
				{content: `{"knowledgePoints":[]}`},
				{content: "too short"},
			},
		},
		{
			name:   "blank report with length check disabled",
			minLen: 0,
			replies: []fakeReply{
				{content: `{"knowledgePoints":[]}`},
				{content: "   "},
			},
		},
		{
			name:   "report call fails after knowledge succeeded",
			minLen: 100,
			replies: []fakeReply{
				{content: `{"knowledgePoints":[{"title":"Remote only point","content":"x"}]}`},
				{err: errors.New("connection reset")},
			},
		},
		{
			name:   "both calls fail",
			minLen: 100,
			replies: []fakeReply{
				{err: errors.New("401")},
				{err: errors.New("401")},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeChatModel{replies: tt.replies}
			e := New(Remote(fake, "m"), Options{MinReportLength: tt.minLen})

			rep, err := e.Summarize(context.Background(), dayMessages(), "2024-01-05")
			require.NoError(t, err)
			assert.Equal(t, OriginFallback, rep.Origin)
			assert.Contains(t, rep.Markdown, footerFallback)
			assert.NotContains(t, rep.Markdown, "Remote only point")
			assert.Equal(t, Heuristic(dayMessages(), "2024-01-05", OriginFallback), rep)
		})
	}
}

func TestSummarizeRemoteSkipsKnowledgeWithoutReplies(t *testing.T) {
	fake := &fakeChatModel{replies: []fakeReply{{content: longReport}}}
	e := New(Remote(fake, "m"), Options{MinReportLength: 100})

	rep, err := e.Summarize(context.Background(), []models.Message{userMsg("只有一个问题，没有回复")}, "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, OriginRemote, rep.Origin)
	assert.Len(t, fake.prompts, 1)
}

func TestParseKnowledgePoints(t *testing.T) {
	points, err := parseKnowledgePoints("Here you go:\n{\"knowledgePoints\":[{\"title\":\" A \",\"content\":\"b\"},{\"title\":\"\",\"content\":\"dropped\"}]}\nDone.")
	require.NoError(t, err)
	assert.Equal(t, []KnowledgePoint{{Title: "A", Content: "b"}}, points)

	_, err = parseKnowledgePoints("no braces")
	assert.Error(t, err)
}
