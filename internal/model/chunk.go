package model

type Chunk struct {
	ID          string `json:"id"`
	FileID      string `json:"file_id"`
	VersionID   string `json:"version_id"`
	Seq         int    `json:"seq"`
	StartToken  int    `json:"start_token"`
	EndToken    int    `json:"end_token"`
	Content     string `json:"content"`
	Heading     string `json:"heading"`
	ContentHash string `json:"content_hash"`
	TokenCount  int    `json:"token_count"`
}

type ChunkEmbedding struct {
	ChunkID     string    `json:"chunk_id"`
	VersionID   string    `json:"version_id"`
	Embedding   []float32 `json:"embedding"`
	ModelName   string    `json:"model_name"`
	ContentHash string    `json:"content_hash"`
	Ctime       int64     `json:"ctime"`
}
