package types

import (
	"time"

	"github.com/RezaEskandarii/bulkmail/internal/state"
)

// DeliveryLog is one recipient's message within one batch submission.
type DeliveryLog struct {
	ID           int64                `json:"id"`
	UserID       int64                `json:"user_id"`
	Recipient    string               `json:"email_to"`
	TemplateID   int64                `json:"template_id"`
	Status       state.DeliveryStatus `json:"status"`
	ErrorMessage *string              `json:"error_message"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}
