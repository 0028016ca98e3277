package notifier

import (
	"time"

	"sigrelay/internal/eventbus"
	kit "sigrelay/internal/transport"
)

// Config controls the delivery queue.
type Config struct {
	// Target is the destination chat. A zero target leaves the service unconfigured.
	Target kit.ChatTarget
	// ParseMode is passed to the sender with every message (default "HTML").
	ParseMode   string
	Workers     int
	QueueSize   int
	RatePerSec  int
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ParseMode == "" {
		c.ParseMode = "HTML"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Status is the synchronous result of Dispatch. It never reflects the
// outcome of the remote call.
type Status int

const (
	StatusNotConfigured Status = iota + 1
	StatusQueued
	StatusDropped
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusNotConfigured:
		return "not_configured"
	case StatusQueued:
		return "queued"
	case StatusDropped:
		return "dropped"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	TopicSent    eventbus.Topic = "delivery.sent"
	TopicFailed  eventbus.Topic = "delivery.failed"
	TopicDropped eventbus.Topic = "delivery.dropped"
)

// DeliveryEvent is the Data of every delivery.* bus event.
type DeliveryEvent struct {
	ChatID    string        `json:"chat_id"`
	ThreadID  int           `json:"thread_id,omitempty"`
	MessageID int           `json:"message_id,omitempty"`
	Latency   time.Duration `json:"latency,omitempty"`
	Error     string        `json:"error,omitempty"`
}
