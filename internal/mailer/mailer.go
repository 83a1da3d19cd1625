package mailer

import "context"

// Sender delivers one HTML message to one recipient. Implementations honour
// the deadline carried by ctx.
type Sender interface {
	SendMail(ctx context.Context, to, subject, html string) error
}
