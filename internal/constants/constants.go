package constants

// Postgres advisory lock ids.
const (
	MigrationLock = iota + 7100
	PurgeLock
)

var Locks = []int{
	MigrationLock,
	PurgeLock,
}

const (
	// SendEmailJob is the job name every dispatch envelope carries.
	SendEmailJob = "sendEmail"

	MaxRetryAttempt = 3
)

// Broadcast event names.
const (
	EventBulkEmailProgress = "bulkEmailProgress"
	EventEmailStatusUpdate = "emailStatusUpdate"
)

// EventsChannel is the Redis pub/sub channel worker processes publish events on.
const EventsChannel = "bulkmail:events"
