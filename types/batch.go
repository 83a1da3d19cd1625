package types

// BatchRequest is one user-initiated bulk send.
type BatchRequest struct {
	UserID     int64
	Recipients []string
	TemplateID int64
	Subject    string
	Body       string
}

// BatchResult summarises what happened to a batch at queueing time.
type BatchResult struct {
	Total         int      `json:"total"`
	Valid         int      `json:"valid"`
	InvalidEmails []string `json:"invalidEmails"`
	Successful    int      `json:"successful"`
	Failed        int      `json:"failed"`
}

// ProgressEvent is emitted after every recipient of a batch is handled.
type ProgressEvent struct {
	Processed int   `json:"processed"`
	Total     int   `json:"total"`
	UserID    int64 `json:"userId"`
}

// StatusEvent is emitted by workers when a log reaches a terminal state.
type StatusEvent struct {
	LogID  int64  `json:"logId"`
	Status string `json:"status"`
	Email  string `json:"email"`
	Error  string `json:"error,omitempty"`
}
