package vectordb

import (
	"math"
	"sort"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
)

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rank scores docs against the query and keeps the best topK.
// Equal scores keep corpus order.
func rank(query []float32, docs []entities.IndexedDocument, topK int) []entities.SearchResult {
	if topK <= 0 {
		return []entities.SearchResult{}
	}

	results := make([]entities.SearchResult, len(docs))
	for i, d := range docs {
		results[i] = entities.SearchResult{
			Document: d.Document,
			Score:    cosineSimilarity(query, d.Embedding),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.Ordinal < results[j].Document.Ordinal
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
