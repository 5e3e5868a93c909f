package retrieval

import (
	"fmt"
	"strings"

	"github.com/hyperjump/curator/internal/models"
)

// Explain describes why a result ranked where it did.
func Explain(rank int, similarity float64, category string, keywordMatches int) string {
	tier := models.TierFor(similarity)
	parts := []string{
		fmt.Sprintf("排名第%d", rank),
		fmt.Sprintf("%s（相似度 %.2f）", tier.Label(), similarity),
	}
	if category != "" {
		parts = append(parts, "类别："+category)
	}
	if keywordMatches > 0 {
		parts = append(parts, "内容包含查询关键词")
	}
	return strings.Join(parts, "，")
}
