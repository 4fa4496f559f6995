package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/choraleia/daydigest/pkg/models"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	knowledgeTemperature float32 = 0.5
	reportTemperature    float32 = 0.7
)

var errReportTooShort = errors.New("remote report below minimum length")

const knowledgeSystemPrompt = "You extract and organize knowledge points from technical conversations. Always reply with valid JSON."

const reportSystemPrompt = "You are a conversation analyst who distills key information, knowledge points and insights from developer conversations."

// remoteStrategy produces reports with a chat model.
type remoteStrategy struct {
	chat          einoModel.BaseChatModel
	label         string
	knowledgeOpts []einoModel.Option
	minLen        int
	logger        *slog.Logger
}

// summarize returns the model-written markdown without footer. Any error means
// the caller should fall back to the heuristic strategy.
func (r *remoteStrategy) summarize(ctx context.Context, msgs []models.Message, date string) (string, error) {
	points := r.extractKnowledge(ctx, msgs)

	resp, err := r.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(reportSystemPrompt),
		schema.UserMessage(buildReportPrompt(msgs, date, points)),
	}, einoModel.WithTemperature(reportTemperature))
	if err != nil {
		return "", fmt.Errorf("report generation failed: %w", err)
	}
	if resp == nil {
		return "", errors.New("report generation returned no message")
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty reply", errReportTooShort)
	}
	if utf8.RuneCountInString(text) < r.minLen {
		return "", fmt.Errorf("%w: %d < %d", errReportTooShort, utf8.RuneCountInString(text), r.minLen)
	}
	return text, nil
}

// extractKnowledge asks the model for knowledge points as JSON. Every failure
// yields an empty list.
func (r *remoteStrategy) extractKnowledge(ctx context.Context, msgs []models.Message) []KnowledgePoint {
	var replies []string
	for _, m := range msgs {
		if m.Role == models.RoleAssistant {
			replies = append(replies, m.Content)
		}
	}
	if len(replies) == 0 {
		return nil
	}

	opts := append([]einoModel.Option{einoModel.WithTemperature(knowledgeTemperature)}, r.knowledgeOpts...)
	resp, err := r.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(knowledgeSystemPrompt),
		schema.UserMessage(buildKnowledgePrompt(strings.Join(replies, "\n\n"))),
	}, opts...)
	if err != nil {
		r.logger.Warn("Knowledge extraction failed", "model", r.label, "error", err)
		return nil
	}
	if resp == nil {
		return nil
	}
	points, err := parseKnowledgePoints(resp.Content)
	if err != nil {
		r.logger.Warn("Failed to parse knowledge points JSON", "model", r.label, "error", err)
		return nil
	}
	return points
}

// parseKnowledgePoints accepts the model reply with or without surrounding
// prose or code fences, since not every provider honors JSON mode.
func parseKnowledgePoints(content string) ([]KnowledgePoint, error) {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "{"); idx >= 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, "}"); idx >= 0 {
		content = content[:idx+1]
	}

	var result struct {
		KnowledgePoints []KnowledgePoint `json:"knowledgePoints"`
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, err
	}
	points := make([]KnowledgePoint, 0, len(result.KnowledgePoints))
	for _, p := range result.KnowledgePoints {
		p.Title = strings.TrimSpace(p.Title)
		p.Content = strings.TrimSpace(p.Content)
		if p.Title == "" || p.Content == "" {
			continue
		}
		points = append(points, p)
	}
	return points, nil
}

func buildKnowledgePrompt(replies string) string {
	return `Extract the important knowledge points from the assistant replies below. Each knowledge point needs:
1. a short, clear title
2. detailed content (definition, usage, examples)

Assistant replies:
` + replies + `

Reply with a JSON object containing a knowledgePoints array, in this exact shape:
{
  "knowledgePoints": [
    {"title": "knowledge point title", "content": "details..."}
  ]
}
Output JSON only, no other text.`
}

func buildReportPrompt(msgs []models.Message, date string, points []KnowledgePoint) string {
	user, assistant := splitByRole(msgs)

	contents := make([]string, 0, len(msgs))
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}

	var kp strings.Builder
	for i, p := range points {
		if i > 0 {
			kp.WriteString("\n\n")
		}
		fmt.Fprintf(&kp, "### %s\n%s", p.Title, p.Content)
	}
	knowledge := kp.String()
	if knowledge == "" {
		knowledge = "Summarize the knowledge points discussed today, one ### subsection each."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following conversations from %s and write a summary report.\n\n", date)
	b.WriteString("Conversation content:\n")
	b.WriteString(strings.Join(contents, "\n\n"))
	b.WriteString("\n\nWrite the summary as Markdown in this format:\n\n")
	fmt.Fprintf(&b, "# %s Dialogue Summary\n\n", date)
	b.WriteString("## 📊 Overview\n")
	fmt.Fprintf(&b, "- Total messages: %d\n- User questions: %d\n- Assistant replies: %d\n\n", len(msgs), len(user), len(assistant))
	b.WriteString("## 🎯 Main Topics\nList the main topics and questions discussed today (topic content only).\n\n")
	b.WriteString("## 💡 Knowledge Points\n")
	b.WriteString(knowledge)
	b.WriteString("\n\n## 🔍 Key Insights\nSummarize the key insights and recommendations from today's conversations.\n\n")
	b.WriteString("**Rules:**\n")
	b.WriteString("- Do not include any timestamps or time-of-day information\n")
	b.WriteString("- Do not include role labels such as \"user\", \"assistant\" or \"AI\"\n")
	b.WriteString("- Focus on the content itself and present it as knowledge\n")
	b.WriteString("- Write in the same language as the conversations and keep the format easy to read\n")
	return b.String()
}
