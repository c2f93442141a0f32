package domain

// QueryIntent classifies what kind of evidence a query is after. Exactly one
// intent is assigned per query; it selects the retrieval configuration.
type QueryIntent string

const (
	IntentTableLookup         QueryIntent = "table_lookup"
	IntentCompareValues       QueryIntent = "compare_values"
	IntentFigureUnderstanding QueryIntent = "figure_understanding"
	IntentProcedureHowTo      QueryIntent = "procedure_howto"
	IntentDefinition          QueryIntent = "definition"
	IntentTextExplain         QueryIntent = "text_explain"
)

// Intents lists every intent in classification priority order.
func Intents() []QueryIntent {
	return []QueryIntent{
		IntentTableLookup,
		IntentCompareValues,
		IntentFigureUnderstanding,
		IntentProcedureHowTo,
		IntentDefinition,
		IntentTextExplain,
	}
}

// RetrievalConfig holds the fusion weights, boosts and result bounds for one
// request. The weights need not sum to 1; they scale reciprocal-rank
// contributions of each modality.
type RetrievalConfig struct {
	VectorWeight      float64 `json:"vector_weight"`
	BM25Weight        float64 `json:"bm25_weight"`
	RRFK              int     `json:"rrf_k"`
	TableBoost        float64 `json:"table_boost"`
	FigureBoost       float64 `json:"figure_boost"`
	FinalTopK         int     `json:"final_top_k"`
	MaxChunksToRerank int     `json:"max_chunks_to_rerank"`
	MinRelevanceScore float64 `json:"min_relevance_score"`
}

// DefaultRetrievalConfig is the base every intent override is applied on top of.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		VectorWeight:      0.7,
		BM25Weight:        0.3,
		RRFK:              60,
		TableBoost:        1.0,
		FigureBoost:       1.0,
		FinalTopK:         8,
		MaxChunksToRerank: 24,
		MinRelevanceScore: 0.25,
	}
}
