package summarizer

import (
	"fmt"
	"strings"
)

const (
	footerHeuristic = "*Generated by the built-in heuristic analyzer. Configure a remote model to get AI-written summaries.*"
	footerFallback  = "*Generated by the built-in heuristic analyzer because the remote model was unavailable.*"
)

// RenderHeuristic assembles the fixed-section markdown report for a heuristic
// analysis.
func RenderHeuristic(date string, a Analysis, origin Origin) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Dialogue Summary\n\n", date)

	b.WriteString("## 📊 Overview\n\n")
	fmt.Fprintf(&b, "- Total messages: %d\n", a.Total)
	fmt.Fprintf(&b, "- User questions: %d\n", a.UserCount)
	fmt.Fprintf(&b, "- Assistant replies: %d\n\n", a.AssistantCount)

	b.WriteString("## 🎯 Main Topics\n\n")
	if len(a.Topics) == 0 {
		b.WriteString("No distinct topics were detected.\n")
	}
	for i, t := range a.Topics {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	b.WriteString("\n")

	b.WriteString("## 💡 Knowledge Points\n\n")
	if len(a.KnowledgePoints) == 0 {
		b.WriteString("No knowledge points were extracted.\n\n")
	}
	for i, p := range a.KnowledgePoints {
		fmt.Fprintf(&b, "### %d. %s\n\n%s\n\n", i+1, p.Title, p.Content)
	}

	b.WriteString("## 🔍 Key Insights\n\n")
	for i, s := range a.Insights {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString("\n---\n\n")

	if origin == OriginFallback {
		b.WriteString(footerFallback)
	} else {
		b.WriteString(footerHeuristic)
	}
	b.WriteString("\n")
	return b.String()
}

func remoteFooter(label string) string {
	return fmt.Sprintf("\n\n---\n\n*Generated by remote model %s.*\n", label)
}
