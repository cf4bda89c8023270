package notify

import (
	"context"
	"errors"
	"log"
)

// LogChannel writes notification content to the process log. It stands in
// for delivery paths without a transport yet, such as email or SMS.
type LogChannel struct {
	name   string
	logger *log.Logger
}

// NewLogChannel constructs a log channel with a delivery label.
func NewLogChannel(name string, logger *log.Logger) (*LogChannel, error) {
	if name == "" {
		return nil, errors.New("log channel: empty name")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LogChannel{name: name, logger: logger}, nil
}

// Send logs the content.
func (c *LogChannel) Send(_ context.Context, content string) error {
	if c == nil || c.logger == nil {
		return errors.New("log channel: nil")
	}
	c.logger.Printf("notify[%s]: %s", c.name, content)
	return nil
}
