package config

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	}
	return "unknown"
}

// QueueDriver selects the broker backing the dispatch queue.
type QueueDriver int

const (
	RabbitMQ QueueDriver = iota + 1
	Redis
)

func (d QueueDriver) String() string {
	switch d {
	case RabbitMQ:
		return "rabbitmq"
	case Redis:
		return "redis"
	default:
		return "unknown"
	}
}

// ParseQueueDriver maps a driver name from the environment to a QueueDriver.
func ParseQueueDriver(name string) (QueueDriver, bool) {
	switch name {
	case "rabbitmq", "amqp":
		return RabbitMQ, true
	case "redis":
		return Redis, true
	default:
		return 0, false
	}
}
