package model

type PaperStatus string

const (
	PaperStatusUploading  PaperStatus = "uploading"
	PaperStatusExtracting PaperStatus = "extracting"
	PaperStatusChunking   PaperStatus = "chunking"
	PaperStatusEmbedding  PaperStatus = "embedding"
	PaperStatusReady      PaperStatus = "ready"
	PaperStatusFailed     PaperStatus = "failed"
)

// Terminal reports whether no ingestion stage will move the paper forward anymore.
func (s PaperStatus) Terminal() bool {
	return s == PaperStatusReady || s == PaperStatusFailed
}

type Paper struct {
	ID         string      `json:"paper_id"`
	Name       string      `json:"name"`
	Filename   string      `json:"filename"`
	RawText    string      `json:"-"`
	Status     PaperStatus `json:"status"`
	FailReason string      `json:"fail_reason,omitempty"`
	ChunkCount int         `json:"chunk_count"`
	PageCount  int         `json:"page_count"`
	Ctime      int64       `json:"ctime"`
	Mtime      int64       `json:"mtime"`
}

// PageBoundary marks the byte offset at which a page starts in the raw text.
type PageBoundary struct {
	Page   int `json:"page"`
	Offset int `json:"offset"`
}
