package domain

// RerankStrategy selects how the cross-encoder stage scores candidates.
type RerankStrategy string

const (
	RerankRelevanceOnly        RerankStrategy = "relevance_only"
	RerankRelevanceWithSupport RerankStrategy = "relevance_with_support"
	RerankFullAnalysis         RerankStrategy = "full_analysis"
)

// RelevanceScaleMax bounds the judge's relevance grade. The neutral fallback
// score on a failed judge call is the midpoint of this scale.
const RelevanceScaleMax = 3.0

// ChunkScore is the reranker's verdict for one candidate.
type ChunkScore struct {
	ChunkID             string  `json:"chunk_id"`
	RelevanceScore      float64 `json:"relevance_score"`
	SupportScore        float64 `json:"support_score,omitempty"`
	HasExplicitEvidence bool    `json:"has_explicit_evidence"`
	Evidence            string  `json:"evidence,omitempty"`
	Reasoning           string  `json:"reasoning,omitempty"`
	CombinedScore       float64 `json:"combined_score"`

	// JudgeFallback marks a neutral score substituted after a judge failure.
	// Fallback-scored chunks bypass the relevance floor.
	JudgeFallback bool `json:"judge_fallback,omitempty"`
}

// RerankConfig holds the per-request reranking knobs. UseMMR switches from
// score-sorted truncation to diversity-aware greedy selection; callers opt in
// explicitly rather than the core inferring it from intent.
type RerankConfig struct {
	Strategy           RerankStrategy `json:"strategy"`
	RelevanceWeight    float64        `json:"relevance_weight"`
	SupportWeight      float64        `json:"support_weight"`
	EvidenceBonus      float64        `json:"evidence_bonus"`
	FinalTopK          int            `json:"final_top_k"`
	MinRelevanceScore  float64        `json:"min_relevance_score"`
	BatchSize          int            `json:"batch_size"`
	TableAware         bool           `json:"table_aware"`
	UseMMR             bool           `json:"use_mmr"`
	MMRDiversityWeight float64        `json:"mmr_diversity_weight"`
}

// DefaultRerankConfig applies the documented defaults for unset fields.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		Strategy:           RerankRelevanceWithSupport,
		RelevanceWeight:    0.6,
		SupportWeight:      0.4,
		EvidenceBonus:      0.1,
		FinalTopK:          8,
		MinRelevanceScore:  0.25,
		BatchSize:          4,
		MMRDiversityWeight: 0.3,
	}
}
