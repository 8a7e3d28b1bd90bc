package model

type RelevanceTier string

const (
	RelevanceLow    RelevanceTier = "low"
	RelevanceMedium RelevanceTier = "medium"
	RelevanceHigh   RelevanceTier = "high"
)

type RetrievalResult struct {
	PaperID    string        `json:"paper_id"`
	Query      string        `json:"query"`
	Chunks     []ScoredChunk `json:"chunks"`
	Score      float32       `json:"score"`
	IsRelevant bool          `json:"is_relevant"`
	Tier       RelevanceTier `json:"tier"`
}

type ExplanationLevel string

const (
	ExplanationSimple    ExplanationLevel = "simple"
	ExplanationTechnical ExplanationLevel = "technical"
)

// NormalizeExplanationLevel maps anything other than "simple" to technical.
func NormalizeExplanationLevel(level string) ExplanationLevel {
	if ExplanationLevel(level) == ExplanationSimple {
		return ExplanationSimple
	}
	return ExplanationTechnical
}

type SourceRef struct {
	ChunkID string  `json:"chunk_id"`
	PaperID string  `json:"paper_id"`
	Index   int     `json:"index"`
	Page    int     `json:"page"`
	Section string  `json:"section"`
	Score   float32 `json:"score"`
	Preview string  `json:"preview"`
}

type Answer struct {
	Answer         string        `json:"answer"`
	Sources        []string      `json:"sources"`
	Evidence       []SourceRef   `json:"evidence"`
	RelevanceScore float32       `json:"relevance_score"`
	IsRelevant     bool          `json:"is_relevant"`
	Tier           RelevanceTier `json:"tier"`
}
