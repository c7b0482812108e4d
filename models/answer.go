package models

// StreamedAnswer accumulates a bot reply while it streams in.
// Content only grows while IsStreaming is true.
type StreamedAnswer struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	IsStreaming bool   `json:"isStreaming"`
}
