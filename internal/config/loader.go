package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. JIBBY_AI_API_KEY.
const EnvPrefix = "JIBBY_"

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields resolves ${ENV_VAR} references in credential fields.
func expandSensitiveFields(cfg *Config) {
	for _, p := range []*string{
		&cfg.Gateway.Auth.Token,
		&cfg.Gateway.Auth.JWTSecret,
		&cfg.WhatsApp.AccountSid,
		&cfg.WhatsApp.AuthToken,
		&cfg.WhatsApp.WebhookSecret,
		&cfg.SMS.AccountSid,
		&cfg.SMS.AuthToken,
		&cfg.Voice.AccountSid,
		&cfg.Voice.AuthToken,
		&cfg.Social.AppSecret,
		&cfg.Social.VerifyToken,
		&cfg.Email.Password,
		&cfg.AI.APIKey,
		&cfg.Webhook.Secret,
	} {
		*p = expandEnvVars(*p)
	}
	if fb := cfg.Social.Platforms.Facebook; fb != nil {
		fb.AccessToken = expandEnvVars(fb.AccessToken)
	}
	if ig := cfg.Social.Platforms.Instagram; ig != nil {
		ig.AccessToken = expandEnvVars(ig.AccessToken)
	}
	if tw := cfg.Social.Platforms.Twitter; tw != nil {
		tw.APISecret = expandEnvVars(tw.APISecret)
		tw.AccessSecret = expandEnvVars(tw.AccessSecret)
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return &ConfigError{Message: "failed to load " + path + ": " + err.Error()}
	}
	return nil
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
	}

	expandSensitiveFields(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyEnvOverrides reads JIBBY_* environment variables into cfg.
func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return &ConfigError{Message: "invalid environment override: " + err.Error()}
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	return nil
}
