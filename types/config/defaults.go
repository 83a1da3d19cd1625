package config

import "time"

const (
	DefaultStorageDriver     = Postgres
	DefaultQueueDriver       = Redis
	DefaultQueueName         = "emailQueue"
	DefaultSubmitConcurrency = 10
	DefaultWorkerConcurrency = 5
	DefaultMaxAttempts       = 3
	DefaultRetryBaseDelay    = 2 * time.Second
	DefaultSendTimeout       = 30 * time.Second
	DefaultHTTPPort          = 8080
	DefaultMaxUploadBytes    = 2 << 20
	DefaultLogRetentionCron  = "@daily"
)
