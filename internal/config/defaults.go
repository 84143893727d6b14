package config

const (
	defaultDataDir                = "~/.local/share/lorekeeper"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogMaxSizeMB           = 10
	defaultOpenAIBaseURL          = "https://api.openai.com/v1"
	defaultOpenAITimeoutSeconds   = 300
	defaultTranscriptionModel     = "whisper-1"
	defaultTranscriptionLanguage  = "fr"
	defaultAnalysisModel          = "gpt-4o"
	defaultAnalysisTemperature    = 0.3
	defaultAnalysisMaxTokens      = 2000
	defaultAnalysisOutputLanguage = "French"
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultEncodeTimeoutSeconds   = 300
	defaultProbeTimeoutSeconds    = 10
	defaultMinOutputBytes         = 1024
	defaultMaxUploadMB            = 500
	defaultAPIBind                = "127.0.0.1:7410"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		OpenAI: OpenAI{
			BaseURL:        defaultOpenAIBaseURL,
			TimeoutSeconds: defaultOpenAITimeoutSeconds,
		},
		Transcription: Transcription{
			Model:    defaultTranscriptionModel,
			Language: defaultTranscriptionLanguage,
		},
		Analysis: Analysis{
			Model:          defaultAnalysisModel,
			Temperature:    defaultAnalysisTemperature,
			MaxTokens:      defaultAnalysisMaxTokens,
			OutputLanguage: defaultAnalysisOutputLanguage,
		},
		Compression: Compression{
			FFmpegBinary:        defaultFFmpegBinary,
			FFprobeBinary:       defaultFFprobeBinary,
			TimeoutSeconds:      defaultEncodeTimeoutSeconds,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
			MinOutputBytes:      defaultMinOutputBytes,
			MaxUploadMB:         defaultMaxUploadMB,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format:    defaultLogFormat,
			Level:     defaultLogLevel,
			MaxSizeMB: defaultLogMaxSizeMB,
		},
	}
}
