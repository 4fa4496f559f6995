package summarizer

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/choraleia/daydigest/pkg/models"
)

// KnowledgePoint is one titled nugget worth remembering from the day.
type KnowledgePoint struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Analysis is the output of the rule-based analyzer for one day.
type Analysis struct {
	Total           int
	UserCount       int
	AssistantCount  int
	Topics          []string
	KnowledgePoints []KnowledgePoint
	Insights        []string
}

// Analyze runs every heuristic over msgs. It is a pure function of its input.
func Analyze(msgs []models.Message) Analysis {
	user, assistant := splitByRole(msgs)
	return Analysis{
		Total:           len(msgs),
		UserCount:       len(user),
		AssistantCount:  len(assistant),
		Topics:          ExtractTopics(user),
		KnowledgePoints: ExtractKnowledgePoints(assistant),
		Insights:        GenerateInsights(msgs),
	}
}

func splitByRole(msgs []models.Message) (user, assistant []models.Message) {
	for _, m := range msgs {
		switch m.Role {
		case models.RoleUser:
			user = append(user, m)
		case models.RoleAssistant:
			assistant = append(assistant, m)
		}
	}
	return user, assistant
}

// ExtractTopics collects questions and keyword-bearing clauses from user
// messages, in order of appearance, without duplicates.
func ExtractTopics(msgs []models.Message) []string {
	topics := make([]string, 0, maxTopics)
	seen := make(map[string]struct{})
	add := func(t string) bool {
		if utf8.RuneCountInString(t) <= minTopicRunes {
			return false
		}
		if _, ok := seen[t]; ok {
			return false
		}
		seen[t] = struct{}{}
		topics = append(topics, t)
		return len(topics) >= maxTopics
	}

	for _, m := range msgs {
		if m.Role != models.RoleUser {
			continue
		}
		for _, q := range questionPattern.FindAllString(m.Content, -1) {
			q = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(q), "？?"))
			if add(q) {
				return topics
			}
		}
		for _, clause := range clauseSplitPattern.Split(m.Content, -1) {
			clause = strings.TrimSpace(clause)
			if !topicMatcher.Match(clause) {
				continue
			}
			if add(truncateRunes(clause, maxClauseRunes)) {
				return topics
			}
		}
	}
	return topics
}

// ExtractKnowledgePoints scans assistant messages for code blocks, list runs
// and headings, in that order per message. When none of those yields anything
// it falls back to capitalized terms.
func ExtractKnowledgePoints(msgs []models.Message) []KnowledgePoint {
	x := &knowledgeExtractor{seen: make(map[string]struct{})}
	for _, m := range msgs {
		if m.Role != models.RoleAssistant {
			continue
		}
		if x.full() {
			break
		}
		x.scan(m.Content)
	}
	if len(x.points) == 0 {
		x.capitalizedTerms(msgs)
	}
	if x.points == nil {
		return []KnowledgePoint{}
	}
	return x.points
}

type knowledgeExtractor struct {
	points    []KnowledgePoint
	seen      map[string]struct{}
	codeCount int
	listCount int
}

func (x *knowledgeExtractor) full() bool { return len(x.points) >= maxKnowledgePoints }

func (x *knowledgeExtractor) add(title, content string) {
	if x.full() {
		return
	}
	if _, ok := x.seen[title]; ok {
		return
	}
	x.seen[title] = struct{}{}
	x.points = append(x.points, KnowledgePoint{Title: title, Content: content})
}

func (x *knowledgeExtractor) scan(content string) {
	x.codeBlocks(content)
	prose := codeBlockPattern.ReplaceAllString(content, "\n")
	x.lists(prose)
	x.headings(prose)
}

func (x *knowledgeExtractor) codeBlocks(content string) {
	prev := 0
	for _, loc := range codeBlockPattern.FindAllStringSubmatchIndex(content, -1) {
		before := content[prev:loc[0]]
		prev = loc[1]

		lang := content[loc[2]:loc[3]]
		code := strings.TrimSpace(content[loc[4]:loc[5]])
		if utf8.RuneCountInString(code) < minCodeBlockRunes {
			continue
		}
		if lang == "" {
			lang = "code"
		}
		x.codeCount++
		title := fmt.Sprintf("%s example %d", lang, x.codeCount)

		body := precedingProse(before, maxCodeContextLines)
		if body == "" {
			body = "```" + content[loc[2]:loc[3]] + "\n" + code + "\n```"
		}
		x.add(title, body)
	}
}

// precedingProse returns up to n non-empty lines from the end of text.
func precedingProse(text string, n int) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		l := strings.TrimSpace(lines[i])
		if l == "" || strings.HasPrefix(l, "```") {
			continue
		}
		kept = append(kept, l)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}

func (x *knowledgeExtractor) lists(prose string) {
	var run []string
	flush := func() {
		if len(run) >= minListRun {
			x.listCount++
			items := run
			if len(items) > maxListItems {
				items = items[:maxListItems]
			}
			var b strings.Builder
			for i, it := range items {
				if i > 0 {
					b.WriteByte('\n')
				}
				b.WriteString("- ")
				b.WriteString(it)
			}
			x.add(fmt.Sprintf("Key points %d", x.listCount), b.String())
		}
		run = run[:0]
	}
	for _, line := range strings.Split(prose, "\n") {
		if m := listItemPattern.FindStringSubmatch(line); m != nil {
			run = append(run, strings.TrimSpace(m[1]))
			continue
		}
		flush()
	}
	flush()
}

func (x *knowledgeExtractor) headings(prose string) {
	lines := strings.Split(prose, "\n")
	for i, line := range lines {
		m := headingPattern.FindStringSubmatch(strings.TrimRight(line, " \t\r"))
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[2])
		if title == "" || utf8.RuneCountInString(title) > maxHeadingTitleRunes {
			continue
		}
		var body []string
		for _, next := range lines[i+1:] {
			if anyHeadingPattern.MatchString(next) {
				break
			}
			body = append(body, next)
		}
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if utf8.RuneCountInString(text) < minHeadingContentRunes {
			continue
		}
		x.add(title, truncateRunes(text, maxHeadingContentRunes))
	}
}

func (x *knowledgeExtractor) capitalizedTerms(msgs []models.Message) {
	for _, m := range msgs {
		if m.Role != models.RoleAssistant {
			continue
		}
		for _, term := range capitalizedPattern.FindAllString(m.Content, -1) {
			if _, stop := capitalizedStopWords[term]; stop || len(term) < 3 {
				continue
			}
			x.add(term, fmt.Sprintf("%s came up in today's discussion.", term))
			if x.full() {
				return
			}
		}
	}
}

// domainHits returns the keywords found in corpus, in table order. Longer
// keywords claim their text first, so a keyword that only occurs inside a
// longer one ("测试" in "单元测试") is not counted again.
func domainHits(corpus string, keywords []string) []string {
	byLength := make([]string, len(keywords))
	copy(byLength, keywords)
	sort.SliceStable(byLength, func(i, j int) bool { return len(byLength[i]) > len(byLength[j]) })

	found := make(map[string]bool, len(keywords))
	for _, kw := range byLength {
		lower := strings.ToLower(kw)
		if strings.Contains(corpus, lower) {
			found[kw] = true
			corpus = strings.ReplaceAll(corpus, lower, "\x00")
		}
	}

	hits := make([]string, 0, len(found))
	for _, kw := range keywords {
		if found[kw] {
			hits = append(hits, kw)
		}
	}
	return hits
}

// GenerateInsights derives observations about the whole day.
func GenerateInsights(msgs []models.Message) []string {
	user, assistant := splitByRole(msgs)
	var insights []string

	all := make([]string, 0, len(msgs))
	for _, m := range msgs {
		all = append(all, m.Content)
	}
	corpus := strings.ToLower(strings.Join(all, "\n"))

	for _, rule := range domainRules {
		hits := domainHits(corpus, rule.Keywords)
		if len(hits) >= minDomainKeywordHits {
			if len(hits) > 3 {
				hits = hits[:3]
			}
			insights = append(insights, fmt.Sprintf("Today's discussion touched on %s (%s).", rule.Name, strings.Join(hits, ", ")))
		}
	}

	if s := questionCategorySummary(user); s != "" {
		insights = append(insights, s)
	}

	if avg := meanRunes(assistant); avg > deepDiscussionRunes {
		insights = append(insights, fmt.Sprintf("Assistant replies averaged %d characters, a sign of in-depth technical discussion.", avg))
	}
	if len(user) > 0 && float64(len(user)) > activeLearnerRatio*float64(len(assistant)) {
		insights = append(insights, fmt.Sprintf("%d questions against %d replies shows an active, iterative learning pattern.", len(user), len(assistant)))
	}

	if themes := recurringThemes(msgs); len(themes) > 0 {
		insights = append(insights, "Recurring themes: "+strings.Join(themes, ", ")+".")
	}

	if len(insights) == 0 {
		insights = append(insights, "A general development discussion without a dominant theme; see the topics and knowledge points above.")
	}
	return insights
}

func questionCategorySummary(user []models.Message) string {
	var parts []string
	for _, cat := range questionCategories {
		n := 0
		for _, m := range user {
			lower := strings.ToLower(m.Content)
			for _, kw := range cat.Keywords {
				if strings.Contains(lower, kw) {
					n++
					break
				}
			}
		}
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%s (%d)", cat.Label, n))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Questions centered on " + strings.Join(parts, ", ") + "."
}

// meanRunes is 0 for an empty slice.
func meanRunes(msgs []models.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	total := 0
	for _, m := range msgs {
		total += utf8.RuneCountInString(m.Content)
	}
	return total / len(msgs)
}

// recurringThemes returns up to maxThemes Han-script tokens that appear at
// least minThemeCount times, most frequent first, ties by first appearance.
func recurringThemes(msgs []models.Message) []string {
	type theme struct {
		word  string
		count int
		first int
	}
	index := make(map[string]int)
	var themes []theme
	for _, m := range msgs {
		for _, tok := range hanTokenPattern.FindAllString(m.Content, -1) {
			if _, stop := themeStopWords[tok]; stop {
				continue
			}
			i, ok := index[tok]
			if !ok {
				i = len(themes)
				index[tok] = i
				themes = append(themes, theme{word: tok, first: i})
			}
			themes[i].count++
		}
	}
	sort.SliceStable(themes, func(a, b int) bool {
		if themes[a].count != themes[b].count {
			return themes[a].count > themes[b].count
		}
		return themes[a].first < themes[b].first
	})
	var res []string
	for _, t := range themes {
		if t.count < minThemeCount || len(res) >= maxThemes {
			break
		}
		res = append(res, fmt.Sprintf("%s (%d)", t.word, t.count))
	}
	return res
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
