package config

const (
	defaultConfigPath              = "~/.config/devlens/config.toml"
	defaultArtifactRoot            = "~/.local/share/devlens/artifacts"
	defaultUploadDir               = "~/.local/share/devlens/uploads"
	defaultStateDir                = "~/.local/share/devlens/state"
	defaultLogDir                  = "~/.local/share/devlens/logs"
	defaultAPIBind                 = "127.0.0.1:7489"
	defaultStaleTimeoutSeconds     = 600
	defaultSweepIntervalSeconds    = 60
	defaultSegmentSeconds          = 300
	defaultSegmentConcurrency      = 3
	defaultMaxFramesPerSegment     = 8
	defaultCalendarSource          = "mock"
	defaultCalendarPollSeconds     = 60
	defaultCalendarHorizonHours    = 24
	defaultReminderLeadMinutes     = 15
	defaultNudgeDelayMinutes       = 2
	defaultContentSource           = "mock"
	defaultDriveBaseURL            = "https://www.googleapis.com/drive/v3"
	defaultLLMBaseURL              = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                = "google/gemini-2.5-pro"
	defaultLLMRelevanceModel       = "google/gemini-2.5-flash"
	defaultLLMReferer              = "https://github.com/devlens/devlens"
	defaultLLMTitle                = "devlens"
	defaultLLMTimeoutSeconds       = 120
	defaultTranscriptionBaseURL    = "https://api.groq.com/openai/v1/audio/transcriptions"
	defaultTranscriptionModel      = "whisper-large-v3"
	defaultTranscriptionTimeoutSec = 300
	defaultNotifyRequestTimeout    = 10
	defaultPublicBaseURL           = "http://localhost:3000"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ArtifactRoot: defaultArtifactRoot,
			UploadDir:    defaultUploadDir,
			StateDir:     defaultStateDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Workflow: Workflow{
			StaleTimeoutSeconds:  defaultStaleTimeoutSeconds,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
			SegmentSeconds:       defaultSegmentSeconds,
			SegmentConcurrency:   defaultSegmentConcurrency,
			MaxFramesPerSegment:  defaultMaxFramesPerSegment,
		},
		Calendar: Calendar{
			Source:              defaultCalendarSource,
			PollIntervalSeconds: defaultCalendarPollSeconds,
			HorizonHours:        defaultCalendarHorizonHours,
			ReminderLeadMinutes: defaultReminderLeadMinutes,
			NudgeDelayMinutes:   defaultNudgeDelayMinutes,
		},
		Content: Content{
			Source:       defaultContentSource,
			DriveBaseURL: defaultDriveBaseURL,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			RelevanceModel: defaultLLMRelevanceModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Transcription: Transcription{
			Enabled:        true,
			BaseURL:        defaultTranscriptionBaseURL,
			Model:          defaultTranscriptionModel,
			TimeoutSeconds: defaultTranscriptionTimeoutSec,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			PublicBaseURL:  defaultPublicBaseURL,
			Reminders:      true,
			Nudges:         true,
			Completions:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
