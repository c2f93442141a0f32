package usecase

import (
	"regexp"
	"strings"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

// intentRule is one ordered pattern family. Families are tested in priority
// order and the first family with a hit wins.
type intentRule struct {
	intent   domain.QueryIntent
	keywords []string
}

var intentRules = []intentRule{
	{domain.IntentTableLookup, []string{
		"table", "matrix", "spreadsheet", "column", "row",
		"cost of", "price", "pricing", "tier", "rate for", "how much",
		"list of", "value of", "lookup",
	}},
	{domain.IntentCompareValues, []string{
		"compare", "comparison", "versus", "vs", "difference between",
		"better than", "cheaper", "faster than", "higher than", "lower than",
	}},
	{domain.IntentFigureUnderstanding, []string{
		"figure", "diagram", "chart", "graph", "image", "illustration", "screenshot",
	}},
	{domain.IntentProcedureHowTo, []string{
		"how to", "how do i", "how can i", "steps", "procedure", "walkthrough",
		"configure", "install", "set up", "setup", "enable", "deploy",
	}},
	{domain.IntentDefinition, []string{
		"what is", "what are", "what does", "define", "definition", "meaning of",
		"stands for", "terminology",
	}},
}

// intentOverrides maps each intent to its retrieval-config adjustments on top
// of the base default. Adding an intent is an edit here plus a rule above.
var intentOverrides = map[domain.QueryIntent]func(*domain.RetrievalConfig){
	domain.IntentTableLookup: func(c *domain.RetrievalConfig) {
		// Lexical recall matters more for structured lookups.
		c.VectorWeight = 0.5
		c.BM25Weight = 0.5
		c.TableBoost = 2.0
	},
	domain.IntentCompareValues: func(c *domain.RetrievalConfig) {
		// Comparisons need more supporting evidence in context.
		c.FinalTopK = 12
		c.MaxChunksToRerank = 32
		c.TableBoost = 1.5
	},
	domain.IntentFigureUnderstanding: func(c *domain.RetrievalConfig) {
		c.FigureBoost = 2.0
	},
	domain.IntentProcedureHowTo: func(c *domain.RetrievalConfig) {
		c.FinalTopK = 10
	},
	domain.IntentDefinition: func(c *domain.RetrievalConfig) {
		c.FinalTopK = 6
		c.BM25Weight = 0.4
	},
	domain.IntentTextExplain: func(*domain.RetrievalConfig) {},
}

// intentPatterns holds the rules compiled to word-boundary matchers, so a
// keyword never fires inside a longer word ("figure" must not hit "configure").
var intentPatterns = compileIntentPatterns()

type intentPattern struct {
	intent   domain.QueryIntent
	patterns []*regexp.Regexp
}

func compileIntentPatterns() []intentPattern {
	out := make([]intentPattern, 0, len(intentRules))
	for _, rule := range intentRules {
		patterns := make([]*regexp.Regexp, 0, len(rule.keywords))
		for _, keyword := range rule.keywords {
			patterns = append(patterns, keywordPattern(keyword))
		}
		out = append(out, intentPattern{intent: rule.intent, patterns: patterns})
	}
	return out
}

func keywordPattern(keyword string) *regexp.Regexp {
	expr := regexp.QuoteMeta(keyword)
	if isWordByte(keyword[0]) {
		expr = `\b` + expr
	}
	if isWordByte(keyword[len(keyword)-1]) {
		expr += `\b`
	}
	return regexp.MustCompile(expr)
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// ClassifyIntent assigns exactly one intent to a query. Classification is
// rule-based and deterministic; no network calls, safe to run inline.
func ClassifyIntent(query string) (domain.QueryIntent, float64) {
	q := strings.ToLower(strings.TrimSpace(query))

	for _, family := range intentPatterns {
		hits := 0
		for _, pattern := range family.patterns {
			if pattern.MatchString(q) {
				hits++
			}
		}
		if hits > 0 {
			confidence := 0.5 + 0.15*float64(hits)
			if confidence > 0.95 {
				confidence = 0.95
			}
			return family.intent, confidence
		}
	}
	return domain.IntentTextExplain, 0.3
}

// ConfigForIntent derives the per-request retrieval configuration from the
// base default plus the intent's overrides.
func ConfigForIntent(intent domain.QueryIntent) domain.RetrievalConfig {
	cfg := domain.DefaultRetrievalConfig()
	if override, ok := intentOverrides[intent]; ok {
		override(&cfg)
	}
	return cfg
}
