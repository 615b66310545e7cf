package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/armorline/storefront/pkg/configloader"
)

var _ configloader.Validator = (*NotifierConfig)(nil)

// NotifierConfig configures the back-office notification worker.
type NotifierConfig struct {
	Nats       NATSConfig       `koanf:"nats"`
	Log        LogConfig        `koanf:"log"`
	Subscriber SubscriberConfig `koanf:"subscriber"`
}

type SubscriberConfig struct {
	Stream   string        `koanf:"stream"`
	Subject  string        `koanf:"subject"`
	Consumer string        `koanf:"consumer"`
	Timeout  time.Duration `koanf:"timeout"`
	Interval time.Duration `koanf:"interval"`
	Workers  int           `koanf:"workers"`
}

func (c *SubscriberConfig) Validate() error {
	if c.Stream == "" {
		return fmt.Errorf("SubscriberConfig: stream is not configured")
	}
	if c.Subject == "" {
		return fmt.Errorf("SubscriberConfig: subject is not configured")
	}
	if c.Consumer == "" {
		return fmt.Errorf("SubscriberConfig: consumer is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("SubscriberConfig: timeout must be greater than zero")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("SubscriberConfig: interval must be greater than zero")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("SubscriberConfig: workers must be greater than zero")
	}
	return nil
}

func (c *NotifierConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Notifier Configuration ---\n")
	b.WriteString(fmt.Sprintf("  nats.url: %s\n", c.Nats.Url))
	b.WriteString(fmt.Sprintf("  nats.timeout: %s\n", c.Nats.Timeout))
	b.WriteString(fmt.Sprintf("  subscriber.stream: %s\n", c.Subscriber.Stream))
	b.WriteString(fmt.Sprintf("  subscriber.subject: %s\n", c.Subscriber.Subject))
	b.WriteString(fmt.Sprintf("  subscriber.consumer: %s\n", c.Subscriber.Consumer))
	b.WriteString(fmt.Sprintf("  subscriber.workers: %d\n", c.Subscriber.Workers))
	b.WriteString(fmt.Sprintf("  log.level: %s\n", c.Log.Level))
	return b.String()
}

func (c *NotifierConfig) Validate() error {
	if err := c.Nats.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.Subscriber.Validate()
}
