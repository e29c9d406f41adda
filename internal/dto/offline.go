package dto

// WorkerMessageResponse acknowledges a client to worker message.
type WorkerMessageResponse struct {
	Type   string `json:"type"`
	Result string `json:"result"`
}
