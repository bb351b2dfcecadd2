package model

// EmbeddingCache is one persisted embedding, keyed by model, task type and
// the sha256 of the embedded text. Task type matters: providers produce
// different vectors for document and query embeddings of the same text.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	TaskType    string    `json:"task_type"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}
