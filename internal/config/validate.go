package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.ConversionChannel == c.Queue.NotificationChannel {
		return errors.New("queue.conversion_channel and queue.notification_channel must differ")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if c.Transcode.TimeoutSeconds <= 0 {
		return errors.New("transcode.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	switch c.Notifications.Mode {
	case "none":
		return nil
	case "smtp":
		if c.Notifications.SMTPHost == "" {
			return errors.New("notifications.smtp_host is required when notifications.mode is \"smtp\"")
		}
		if c.Notifications.SMTPFrom == "" {
			return errors.New("notifications.smtp_from is required when notifications.mode is \"smtp\"")
		}
		return nil
	case "push":
		if c.Notifications.PushTopic == "" {
			return errors.New("notifications.push_topic is required when notifications.mode is \"push\"")
		}
		return nil
	default:
		return fmt.Errorf("notifications.mode: unsupported value %q (expected smtp, push, or none)", c.Notifications.Mode)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (expected console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
