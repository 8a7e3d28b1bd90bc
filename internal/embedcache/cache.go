package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xxxsen/paperqa/internal/ai"
)

// embedMisses fills the nil slots of out by embedding only the matching texts
// in one call, then hands every fresh vector to store once the whole batch
// has a consistent dimension.
func embedMisses(ctx context.Context, next ai.IEmbedder, texts []string, taskType string, out [][]float32, store func(i int, vec []float32)) error {
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	for i, v := range out {
		if v != nil {
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missIdx) == 0 {
		return nil
	}
	res, err := next.EmbedBatch(ctx, missTexts, taskType)
	if err != nil {
		return err
	}
	if len(res) != len(missIdx) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(res), len(missIdx))
	}
	// A ragged or empty batch is never cached, so a retry reaches the backend again.
	for j, vec := range res {
		if len(vec) == 0 || len(vec) != len(res[0]) {
			return fmt.Errorf("embedder returned malformed vector %d (len %d)", j, len(vec))
		}
	}
	for j, i := range missIdx {
		out[i] = res[j]
		store(i, res[j])
	}
	return nil
}

func buildCacheKey(modelName, taskType, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + taskType + ":" + contentHash, contentHash, modelName
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
