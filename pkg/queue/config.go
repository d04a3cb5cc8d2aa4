package queue

import "time"

type Config struct {
	QueueName          string        `env:"QUEUE_NAME" envDefault:"notifications"`
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	ShutdownTimeout    time.Duration `env:"QUEUE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
	// Storage selects the task store: memory or redis.
	Storage string `env:"QUEUE_STORAGE" envDefault:"memory"`
}
