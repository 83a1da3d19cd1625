package broadcast

// Broadcaster pushes best-effort events to a user's live sessions. TryEmit
// never reports failure to the caller and nothing is buffered for users who
// are offline.
type Broadcaster interface {
	TryEmit(userID int64, event string, payload any)
}

// Message is what a websocket client receives.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Noop struct{}

func (Noop) TryEmit(int64, string, any) {}
