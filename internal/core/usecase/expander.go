package usecase

import (
	"regexp"
	"sort"
	"strings"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

// maxExpandedQueries bounds the reformulation set, original included.
const maxExpandedQueries = 6

// DefaultGlossary is the compiled-in abbreviation set, used when no glossary
// store is configured or the store is empty.
func DefaultGlossary() map[string]string {
	return map[string]string{
		"api":  "application programming interface",
		"auth": "authentication",
		"db":   "database",
		"k8s":  "kubernetes",
		"sla":  "service level agreement",
		"sso":  "single sign-on",
		"vm":   "virtual machine",
		"vpn":  "virtual private network",
	}
}

// ExpandQuery produces an ordered list of up to maxExpandedQueries unique
// query strings, the original always first. Expansion is deterministic for
// identical input so retrieval stays reproducible: glossary terms are applied
// in sorted order, and variants are deduplicated case-insensitively while
// preserving first-seen order.
func ExpandQuery(query string, intent domain.QueryIntent, glossary map[string]string) []string {
	query = strings.TrimSpace(query)
	variants := []string{query}

	variants = append(variants, glossaryVariants(query, glossary)...)
	variants = append(variants, intentVariants(query, intent)...)

	seen := make(map[string]struct{}, len(variants))
	out := make([]string, 0, maxExpandedQueries)
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
		if len(out) == maxExpandedQueries {
			break
		}
	}
	return out
}

func glossaryVariants(query string, glossary map[string]string) []string {
	if len(glossary) == 0 {
		return nil
	}

	terms := make([]string, 0, len(glossary))
	for term := range glossary {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	var out []string
	for _, term := range terms {
		expansion := glossary[term]
		if expansion == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		if err != nil {
			continue
		}
		if !re.MatchString(query) {
			continue
		}
		out = append(out, re.ReplaceAllString(query, expansion))
	}
	return out
}

func intentVariants(query string, intent domain.QueryIntent) []string {
	switch intent {
	case domain.IntentTableLookup:
		variants := []string{query + " table"}
		if !strings.Contains(strings.ToLower(query), "matrix") {
			variants = append(variants, query+" matrix")
		}
		return variants
	case domain.IntentCompareValues:
		return []string{query + " comparison"}
	case domain.IntentFigureUnderstanding:
		return []string{query + " diagram"}
	case domain.IntentProcedureHowTo:
		return []string{"steps to " + strings.TrimSuffix(query, "?")}
	case domain.IntentDefinition:
		return []string{"definition of " + strings.TrimSuffix(query, "?")}
	default:
		return nil
	}
}
