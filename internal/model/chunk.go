package model

import "strconv"

type Chunk struct {
	ID         string `json:"chunk_id"`
	PaperID    string `json:"paper_id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Page       int    `json:"page"`
	Section    string `json:"section"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

func ChunkID(paperID string, index int) string {
	return paperID + ":" + strconv.Itoa(index)
}

type ScoredChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Score float32 `json:"score"`
}
