package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort                = 3000
	DefaultModel               = "gpt-4"
	DefaultTemperature         = 0.7
	DefaultMaxTokens           = 1000
	DefaultContextWindow       = 10
	DefaultIdentity            = "jibby-ai"
	DefaultAITimeoutSeconds    = 60
	DefaultQueueSize           = 64
	DefaultWorkers             = 8
	DefaultRequestsPerMinute   = 60
	DefaultGraphVersion        = "v19.0"
	DefaultPollIntervalSeconds = 30
	DefaultVoiceLanguage       = "en-US"
	DefaultVoiceName           = "alice"
	DefaultVoiceGreeting       = "Hello, you have reached Jibby. How can I help you today?"
	DefaultMailbox             = "INBOX"
	DefaultIMAPPort            = 993
	DefaultSMTPPort            = 587
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{
		Agent: AgentConfig{
			ID:   "jibby",
			Name: "Jibby",
		},
		Gateway: GatewayConfig{
			Port: DefaultPort,
			Bind: "loopback",
			Auth: GatewayAuth{Mode: "token"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		AI: AIConfig{
			Provider: "openai",
		},
	}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	applyAIDefaults(&cfg.AI)

	if cfg.Voice.Provider == "" {
		cfg.Voice.Provider = "twilio"
	}
	if cfg.Voice.Language == "" {
		cfg.Voice.Language = DefaultVoiceLanguage
	}
	if cfg.Voice.Voice == "" {
		cfg.Voice.Voice = DefaultVoiceName
	}
	if cfg.Voice.Greeting == "" {
		cfg.Voice.Greeting = DefaultVoiceGreeting
	}
	if cfg.Social.GraphVersion == "" {
		cfg.Social.GraphVersion = DefaultGraphVersion
	}
	if cfg.Email.IMAPPort == 0 {
		cfg.Email.IMAPPort = DefaultIMAPPort
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = DefaultSMTPPort
	}
	if cfg.Email.Mailbox == "" {
		cfg.Email.Mailbox = DefaultMailbox
	}
	if cfg.Email.PollIntervalSeconds == 0 {
		cfg.Email.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if cfg.RateLimiting.MaxRequestsPerMinute == 0 {
		cfg.RateLimiting.MaxRequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.Router.QueueSize == 0 {
		cfg.Router.QueueSize = DefaultQueueSize
	}
	if cfg.Router.Workers == 0 {
		cfg.Router.Workers = DefaultWorkers
	}
}

// applyAIDefaults fills unset responder settings.
func applyAIDefaults(ai *AIConfig) {
	if ai.Provider == "" {
		ai.Provider = "openai"
	}
	if ai.Model == "" {
		ai.Model = DefaultModel
	}
	if ai.Temperature == nil {
		t := DefaultTemperature
		ai.Temperature = &t
	}
	if ai.MaxTokens == 0 {
		ai.MaxTokens = DefaultMaxTokens
	}
	if ai.ContextWindow == 0 {
		ai.ContextWindow = DefaultContextWindow
	}
	if ai.Identity == "" {
		ai.Identity = DefaultIdentity
	}
	if ai.TimeoutSeconds == 0 {
		ai.TimeoutSeconds = DefaultAITimeoutSeconds
	}
}

// WithDefaults returns a copy of ai with unset fields defaulted.
func (ai AIConfig) WithDefaults() AIConfig {
	out := ai
	if ai.Temperature != nil {
		t := *ai.Temperature
		out.Temperature = &t
	}
	applyAIDefaults(&out)
	return out
}
