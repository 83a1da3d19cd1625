package types

// DispatchJob carries everything a worker needs to deliver one message
// without reading the log back.
type DispatchJob struct {
	LogID     int64  `json:"logId"`
	Recipient string `json:"email"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	UserID    int64  `json:"userId"`
}
