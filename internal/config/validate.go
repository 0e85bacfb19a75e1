package config

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/soyeahso/jibby/internal/logging"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// ValidationError bundles issues so they can travel as an error.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "config: " + e.Issues[0].String()
	}
	return fmt.Sprintf("config: %d issues, first: %s", len(e.Issues), e.Issues[0])
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			add(path, "must be one of %v, got %q", valid, value)
		}
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"loopback", "lan", "custom"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.Host == "" {
		add("gateway.host", "required when bind is custom")
	}
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"none", "token", "jwt"})
	if cfg.Gateway.Auth.Mode == "jwt" && cfg.Gateway.Auth.JWTSecret == "" {
		add("gateway.auth.jwtSecret", "required when auth mode is jwt")
	}

	oneOf("logging.level", cfg.Logging.Level, logging.Levels)
	oneOf("logging.format", cfg.Logging.Format, []string{"text", "json"})

	if cfg.WhatsApp.Enabled {
		requireTwilio(&issues, "whatsapp", cfg.WhatsApp.AccountSid, cfg.WhatsApp.AuthToken, cfg.WhatsApp.PhoneNumber)
		checkURL(&issues, "whatsapp.webhookUrl", cfg.WhatsApp.WebhookURL)
	}
	if cfg.SMS.Enabled {
		requireTwilio(&issues, "sms", cfg.SMS.AccountSid, cfg.SMS.AuthToken, cfg.SMS.PhoneNumber)
		checkURL(&issues, "sms.webhookUrl", cfg.SMS.WebhookURL)
	}
	if cfg.Voice.Enabled {
		oneOf("voice.provider", cfg.Voice.Provider, []string{"twilio"})
		requireTwilio(&issues, "voice", cfg.Voice.AccountSid, cfg.Voice.AuthToken, cfg.Voice.PhoneNumber)
		checkURL(&issues, "voice.webhookUrl", cfg.Voice.WebhookURL)
	}
	if cfg.Social.Enabled {
		p := cfg.Social.Platforms
		if p.Facebook == nil && p.Instagram == nil && p.Twitter == nil {
			add("social.platforms", "at least one platform is required")
		}
		if p.Facebook != nil && (p.Facebook.PageID == "" || p.Facebook.AccessToken == "") {
			add("social.platforms.facebook", "pageId and accessToken are required")
		}
		if p.Instagram != nil && (p.Instagram.AccountID == "" || p.Instagram.AccessToken == "") {
			add("social.platforms.instagram", "accountId and accessToken are required")
		}
	}
	if cfg.Email.Enabled {
		if cfg.Email.IMAPHost == "" {
			add("email.imapHost", "required when email is enabled")
		}
		if cfg.Email.SMTPHost == "" {
			add("email.smtpHost", "required when email is enabled")
		}
		if cfg.Email.Username == "" {
			add("email.username", "required when email is enabled")
		}
		if cfg.Email.PollIntervalSeconds < 0 {
			add("email.pollIntervalSeconds", "must not be negative")
		}
	}

	oneOf("ai.provider", cfg.AI.Provider, []string{"openai", "anthropic", "custom"})
	if cfg.AI.Provider == "custom" && cfg.AI.BaseURL == "" {
		add("ai.baseUrl", "required when provider is custom")
	}
	if cfg.AI.Temperature != nil && (*cfg.AI.Temperature < 0 || *cfg.AI.Temperature > 2) {
		add("ai.temperature", "must be between 0 and 2, got %v", *cfg.AI.Temperature)
	}
	if cfg.AI.MaxTokens < 0 {
		add("ai.maxTokens", "must not be negative")
	}
	if cfg.AI.ContextWindow < 0 {
		add("ai.contextWindow", "must not be negative")
	}

	checkURL(&issues, "webhook.url", cfg.Webhook.URL)
	if cfg.RateLimiting.Enabled && cfg.RateLimiting.MaxRequestsPerMinute <= 0 {
		add("rateLimiting.maxRequestsPerMinute", "must be positive when rate limiting is enabled")
	}
	if cfg.Router.QueueSize < 0 {
		add("router.queueSize", "must not be negative")
	}
	if cfg.Router.Workers < 0 {
		add("router.workers", "must not be negative")
	}

	return issues
}

func requireTwilio(issues *[]ValidationIssue, section, sid, token, phone string) {
	fields := []struct{ name, value string }{
		{"accountSid", sid},
		{"authToken", token},
		{"phoneNumber", phone},
	}
	for _, f := range fields {
		if f.value == "" {
			*issues = append(*issues, ValidationIssue{Path: section + "." + f.name, Message: "required when " + section + " is enabled"})
		}
	}
}

func checkURL(issues *[]ValidationIssue, path, raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		*issues = append(*issues, ValidationIssue{Path: path, Message: fmt.Sprintf("must be an absolute URL, got %q", raw)})
	}
}
