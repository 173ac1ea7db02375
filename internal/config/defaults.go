package config

const (
	defaultDataDir               = "~/.local/share/mixdown/data"
	defaultLogDir                = "~/.local/share/mixdown/logs"
	defaultAPIBind               = "127.0.0.1:7512"
	defaultConversionChannel     = "video"
	defaultNotificationChannel   = "mp3"
	defaultConnectAttempts       = 5
	defaultConnectBackoffSeconds = 2
	defaultPublishAttempts       = 3
	defaultPublishBackoffSeconds = 1
	defaultMaxRedeliveries       = 3
	defaultPollIntervalMillis    = 250
	defaultFFmpegPath            = "ffmpeg"
	defaultBitrate               = "192k"
	defaultTranscodeTimeout      = 600
	defaultNotifyMode            = "none"
	defaultNotifySubject         = "MP3 Download"
	defaultSMTPPort              = 587
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Queue: Queue{
			ConversionChannel:     defaultConversionChannel,
			NotificationChannel:   defaultNotificationChannel,
			ConnectAttempts:       defaultConnectAttempts,
			ConnectBackoffSeconds: defaultConnectBackoffSeconds,
			PublishAttempts:       defaultPublishAttempts,
			PublishBackoffSeconds: defaultPublishBackoffSeconds,
			MaxRedeliveries:       defaultMaxRedeliveries,
			PollIntervalMillis:    defaultPollIntervalMillis,
		},
		Transcode: Transcode{
			FFmpegPath:     defaultFFmpegPath,
			Bitrate:        defaultBitrate,
			TimeoutSeconds: defaultTranscodeTimeout,
		},
		Notifications: Notifications{
			Mode:           defaultNotifyMode,
			Subject:        defaultNotifySubject,
			SMTPPort:       defaultSMTPPort,
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
