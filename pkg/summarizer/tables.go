package summarizer

import (
	"regexp"
	"strings"
	"unicode"
)

// Heuristic tables. Everything the rule-based analyzer matches against lives
// here as data so the rules can be tuned without touching control flow.

// topicKeywords marks a user clause as a topic candidate.
var topicKeywords = []string{
	"实现", "如何", "怎么", "为什么", "优化", "修复", "创建", "添加", "修改", "设计",
	"implement", "how", "why", "optimize", "optimise", "fix", "create", "add", "modify", "design",
}

// domainRule counts as matched when at least minDomainKeywordHits distinct
// keywords occur anywhere in the day's messages.
type domainRule struct {
	Name     string
	Keywords []string
}

var domainRules = []domainRule{
	{Name: "frontend development", Keywords: []string{"react", "vue", "css", "html", "javascript", "typescript", "组件", "前端", "页面", "样式"}},
	{Name: "backend services and APIs", Keywords: []string{"api", "接口", "后端", "server", "服务端", "http", "rest", "grpc", "路由", "middleware"}},
	{Name: "databases and storage", Keywords: []string{"数据库", "database", "sql", "mysql", "postgres", "redis", "索引", "query", "查询", "事务"}},
	{Name: "performance tuning", Keywords: []string{"性能", "优化", "performance", "latency", "延迟", "内存", "memory", "benchmark", "并发", "cache", "缓存"}},
	{Name: "deployment and operations", Keywords: []string{"docker", "kubernetes", "k8s", "部署", "deploy", "pipeline", "容器", "nginx", "监控", "日志"}},
	{Name: "testing and quality", Keywords: []string{"测试", "test", "单元测试", "mock", "coverage", "覆盖率", "断言", "assert", "lint"}},
	{Name: "version control", Keywords: []string{"git", "commit", "branch", "merge", "rebase", "分支", "提交", "pull request"}},
	{Name: "AI and language models", Keywords: []string{"模型", "llm", "prompt", "embedding", "向量", "token", "agent", "训练", "推理"}},
	{Name: "programming fundamentals", Keywords: []string{"函数", "function", "变量", "variable", "闭包", "closure", "类型", "泛型", "generic", "指针", "pointer"}},
}

const minDomainKeywordHits = 2

// questionCategory classifies user messages by intent.
type questionCategory struct {
	Key      string
	Label    string
	Keywords []string
}

var questionCategories = []questionCategory{
	{Key: "method", Label: "how-to and methods", Keywords: []string{"如何", "怎么", "怎样", "how to", "how do", "how can", "方法"}},
	{Key: "why", Label: "reasons and rationale", Keywords: []string{"为什么", "为何", "why", "原因"}},
	{Key: "troubleshooting", Label: "troubleshooting", Keywords: []string{"报错", "错误", "失败", "异常", "bug", "error", "fail", "exception", "crash"}},
	{Key: "optimization", Label: "optimization", Keywords: []string{"优化", "性能", "提升", "加速", "optimize", "optimise", "performance", "faster", "improve"}},
	{Key: "feature-request", Label: "feature requests", Keywords: []string{"实现", "添加", "新增", "支持", "implement", "add ", "create", "feature", "功能"}},
}

// themeStopWords are frequent Han tokens that say nothing about the topic.
var themeStopWords = toSet([]string{
	"这个", "那个", "什么", "如何", "怎么", "可以", "我们", "你们", "他们", "一个", "没有", "就是",
	"因为", "所以", "但是", "如果", "还是", "已经", "需要", "进行", "使用", "通过", "这样", "那么",
	"然后", "或者", "以及", "其中", "这些", "那些", "自己", "现在", "时候", "问题", "可能", "应该",
	"一下", "一些", "不是", "还有", "这里", "这种", "比如", "例如", "的话", "是否", "为了", "其他",
})

// capitalizedStopWords are sentence starters that the capitalized-term
// fallback would otherwise report as concepts.
var capitalizedStopWords = toSet([]string{
	"The", "This", "That", "These", "Those", "It", "If", "You", "We", "In", "For", "To", "And",
	"But", "Here", "There", "When", "What", "How", "Why", "Yes", "No", "Note", "Then", "So",
	"Also", "First", "Next", "Finally", "Use", "Make", "Let", "With", "On", "Of", "As", "Or",
})

// Numeric limits of the heuristic strategy.
const (
	maxTopics              = 10
	minTopicRunes          = 5 // a topic must be longer than this
	maxClauseRunes         = 50
	maxKnowledgePoints     = 8
	minCodeBlockRunes      = 20
	maxCodeContextLines    = 3
	maxListItems           = 10
	minListRun             = 3 // more than two consecutive items
	maxHeadingTitleRunes   = 50
	minHeadingContentRunes = 10
	maxHeadingContentRunes = 300
	maxThemes              = 5
	minThemeCount          = 2
	deepDiscussionRunes    = 500
	activeLearnerRatio     = 0.8
)

var (
	questionPattern    = regexp.MustCompile(`(?:[^。！？!?.\n]|\.[^\s。！？!?.])*[？?]`)
	clauseSplitPattern = regexp.MustCompile(`[。！？!?，,；;\n]|\.(?:\s|$)`)
	codeBlockPattern   = regexp.MustCompile("(?s)```([\\w+#.-]*)[^\\n]*\\n(.*?)```")
	listItemPattern    = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)、])\s+(.+)$`)
	headingPattern     = regexp.MustCompile(`^(#{1,3})\s+(.+?)\s*#*\s*$`)
	anyHeadingPattern  = regexp.MustCompile(`^#{1,6}\s+`)
	capitalizedPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	hanTokenPattern    = regexp.MustCompile(`\p{Han}{2,4}`)
)

// keywordMatcher matches Han keywords as substrings and Latin keywords at a
// word start, so "how" matches "However" but not "show".
type keywordMatcher struct {
	substrings []string
	latin      *regexp.Regexp
}

func newKeywordMatcher(words []string) keywordMatcher {
	var m keywordMatcher
	var latin []string
	for _, w := range words {
		if isASCII(w) {
			latin = append(latin, regexp.QuoteMeta(strings.ToLower(w)))
		} else {
			m.substrings = append(m.substrings, w)
		}
	}
	if len(latin) > 0 {
		m.latin = regexp.MustCompile(`(?i)\b(?:` + strings.Join(latin, "|") + `)`)
	}
	return m
}

func (m keywordMatcher) Match(s string) bool {
	for _, w := range m.substrings {
		if strings.Contains(s, w) {
			return true
		}
	}
	return m.latin != nil && m.latin.MatchString(s)
}

var topicMatcher = newKeywordMatcher(topicKeywords)

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
