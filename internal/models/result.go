package models

import "time"

// RelevanceTier buckets a similarity score for explanations.
type RelevanceTier string

const (
	TierHigh     RelevanceTier = "highly relevant"
	TierFair     RelevanceTier = "fairly relevant"
	TierSomewhat RelevanceTier = "somewhat relevant"
	TierWeak     RelevanceTier = "weakly relevant"
)

// TierFor returns the tier for a similarity in [0,1].
func TierFor(similarity float64) RelevanceTier {
	switch {
	case similarity > 0.8:
		return TierHigh
	case similarity > 0.6:
		return TierFair
	case similarity > 0.4:
		return TierSomewhat
	default:
		return TierWeak
	}
}

// Label is the tier's display text used in explanations.
func (t RelevanceTier) Label() string {
	switch t {
	case TierHigh:
		return "高度相关"
	case TierFair:
		return "比较相关"
	case TierSomewhat:
		return "部分相关"
	default:
		return "弱相关"
	}
}

// RetrievalResult is one ranked hit for a query.
type RetrievalResult struct {
	Rank        int           `json:"rank"`
	ID          string        `json:"id"`
	Content     string        `json:"content"`
	Metadata    Metadata      `json:"metadata"`
	Similarity  float64       `json:"similarity"`
	Relevance   float64       `json:"relevance"`
	Tier        RelevanceTier `json:"tier"`
	Explanation string        `json:"explanation"`
}

// CollectionStats summarizes a sample of the stored chunks.
type CollectionStats struct {
	TotalCount  int            `json:"total_count"`
	SampleSize  int            `json:"sample_size"`
	ByType      map[string]int `json:"by_type"`
	ByCategory  map[string]int `json:"by_category"`
	Zones       []string       `json:"zones"`
	Authors     []string       `json:"authors"`
	GeneratedAt time.Time      `json:"generated_at"`
	FromCache   bool           `json:"from_cache"`
}

// CollectionInfo describes a vector collection.
type CollectionInfo struct {
	Name          string                 `json:"collection_name"`
	DocumentCount int                    `json:"document_count"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	EmbeddingDim  int                    `json:"embedding_dim"`
	Status        string                 `json:"status"`
	Error         string                 `json:"error,omitempty"`
}
