package usecase

import (
	"strings"
	"testing"

	"github.com/docqa-platform/retrieval/internal/core/domain"
)

func TestExpandQueryOriginalAlwaysFirst(t *testing.T) {
	queries := ExpandQuery("reset vpn access", domain.IntentTextExplain, DefaultGlossary())
	if len(queries) == 0 || queries[0] != "reset vpn access" {
		t.Fatalf("expected original query first, got %v", queries)
	}
}

func TestExpandQueryAppliesGlossary(t *testing.T) {
	glossary := map[string]string{"rpo": "recovery point objective"}
	queries := ExpandQuery("what is our RPO target", domain.IntentTextExplain, glossary)

	found := false
	for _, q := range queries {
		if q == "what is our recovery point objective target" {
			found = true
		}
	}
	if !found {
		t.Fatalf("glossary expansion missing from %v", queries)
	}
}

func TestExpandQueryGlossaryMatchesWholeWordsOnly(t *testing.T) {
	glossary := map[string]string{"db": "database"}
	queries := ExpandQuery("dashboard setup", domain.IntentTextExplain, glossary)
	for _, q := range queries {
		if strings.Contains(q, "database") {
			t.Fatalf("glossary matched inside a word: %v", queries)
		}
	}
}

func TestExpandQueryDeduplicatesCaseInsensitive(t *testing.T) {
	// Intent variant appends " table"; a query already ending in "table"
	// must not produce a duplicate.
	queries := ExpandQuery("pricing Table", domain.IntentTableLookup, nil)
	seen := make(map[string]struct{})
	for _, q := range queries {
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate variant %q in %v", q, queries)
		}
		seen[key] = struct{}{}
	}
}

func TestExpandQueryBoundedAndDeterministic(t *testing.T) {
	glossary := map[string]string{
		"api": "application programming interface",
		"db":  "database",
		"k8s": "kubernetes",
		"sso": "single sign-on",
		"vm":  "virtual machine",
		"vpn": "virtual private network",
	}
	query := "api db k8s sso vm vpn table"

	first := ExpandQuery(query, domain.IntentTableLookup, glossary)
	if len(first) > maxExpandedQueries {
		t.Fatalf("expected at most %d variants, got %d", maxExpandedQueries, len(first))
	}
	for i := 0; i < 5; i++ {
		again := ExpandQuery(query, domain.IntentTableLookup, glossary)
		if len(again) != len(first) {
			t.Fatalf("variant count drifted: %d vs %d", len(again), len(first))
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("variant order drifted at %d: %q vs %q", j, again[j], first[j])
			}
		}
	}
}

func TestExpandQueryIntentVariants(t *testing.T) {
	procedure := ExpandQuery("rotate the signing keys?", domain.IntentProcedureHowTo, nil)
	found := false
	for _, q := range procedure {
		if q == "steps to rotate the signing keys" {
			found = true
		}
	}
	if !found {
		t.Fatalf("procedure variant missing from %v", procedure)
	}

	definition := ExpandQuery("zero trust", domain.IntentDefinition, nil)
	found = false
	for _, q := range definition {
		if q == "definition of zero trust" {
			found = true
		}
	}
	if !found {
		t.Fatalf("definition variant missing from %v", definition)
	}
}
