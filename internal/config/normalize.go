package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeTranscode()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeQueue() {
	c.Queue.ConversionChannel = strings.TrimSpace(c.Queue.ConversionChannel)
	c.Queue.NotificationChannel = strings.TrimSpace(c.Queue.NotificationChannel)
	if c.Queue.ConversionChannel == "" {
		c.Queue.ConversionChannel = defaultConversionChannel
	}
	if c.Queue.NotificationChannel == "" {
		c.Queue.NotificationChannel = defaultNotificationChannel
	}
	if c.Queue.ConnectAttempts <= 0 {
		c.Queue.ConnectAttempts = defaultConnectAttempts
	}
	if c.Queue.ConnectBackoffSeconds <= 0 {
		c.Queue.ConnectBackoffSeconds = defaultConnectBackoffSeconds
	}
	if c.Queue.PublishAttempts <= 0 {
		c.Queue.PublishAttempts = defaultPublishAttempts
	}
	if c.Queue.PublishBackoffSeconds < 0 {
		c.Queue.PublishBackoffSeconds = defaultPublishBackoffSeconds
	}
	if c.Queue.MaxRedeliveries < 0 {
		c.Queue.MaxRedeliveries = defaultMaxRedeliveries
	}
	if c.Queue.PollIntervalMillis <= 0 {
		c.Queue.PollIntervalMillis = defaultPollIntervalMillis
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.FFmpegPath = strings.TrimSpace(c.Transcode.FFmpegPath)
	if c.Transcode.FFmpegPath == "" {
		c.Transcode.FFmpegPath = defaultFFmpegPath
	}
	c.Transcode.Bitrate = strings.TrimSpace(c.Transcode.Bitrate)
	if c.Transcode.Bitrate == "" {
		c.Transcode.Bitrate = defaultBitrate
	}
	if c.Transcode.TimeoutSeconds <= 0 {
		c.Transcode.TimeoutSeconds = defaultTranscodeTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.Mode = strings.ToLower(strings.TrimSpace(c.Notifications.Mode))
	if c.Notifications.Mode == "" {
		c.Notifications.Mode = defaultNotifyMode
	}
	c.Notifications.Subject = strings.TrimSpace(c.Notifications.Subject)
	if c.Notifications.Subject == "" {
		c.Notifications.Subject = defaultNotifySubject
	}
	c.Notifications.SMTPHost = strings.TrimSpace(c.Notifications.SMTPHost)
	c.Notifications.SMTPFrom = strings.TrimSpace(c.Notifications.SMTPFrom)
	c.Notifications.PushTopic = strings.TrimSpace(c.Notifications.PushTopic)
	if c.Notifications.SMTPPort <= 0 {
		c.Notifications.SMTPPort = defaultSMTPPort
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
