package config

// Config is the root configuration for Jibby. Each channel has its own
// section; the router forwards a section to its adapter when it changes.
type Config struct {
	Agent        AgentConfig        `yaml:"agent,omitempty" json:"agent" envPrefix:"AGENT_"`
	Gateway      GatewayConfig      `yaml:"gateway,omitempty" json:"gateway" envPrefix:"GATEWAY_"`
	Logging      LoggingConfig      `yaml:"logging,omitempty" json:"logging" envPrefix:"LOG_"`
	WhatsApp     WhatsAppConfig     `yaml:"whatsapp,omitempty" json:"whatsapp" envPrefix:"WHATSAPP_"`
	SMS          SMSConfig          `yaml:"sms,omitempty" json:"sms" envPrefix:"SMS_"`
	Voice        VoiceConfig        `yaml:"voice,omitempty" json:"voice" envPrefix:"VOICE_"`
	Social       SocialConfig       `yaml:"social,omitempty" json:"social" envPrefix:"SOCIAL_"`
	Email        EmailConfig        `yaml:"email,omitempty" json:"email" envPrefix:"EMAIL_"`
	AI           AIConfig           `yaml:"ai,omitempty" json:"ai" envPrefix:"AI_"`
	Webhook      WebhookConfig      `yaml:"webhook,omitempty" json:"webhook" envPrefix:"WEBHOOK_"`
	RateLimiting RateLimitingConfig `yaml:"rateLimiting,omitempty" json:"rateLimiting" envPrefix:"RATE_LIMIT_"`
	Router       RouterConfig       `yaml:"router,omitempty" json:"router" envPrefix:"ROUTER_"`
	Store        StoreConfig        `yaml:"store,omitempty" json:"store" envPrefix:"STORE_"`
}

// AgentConfig identifies this deployment.
type AgentConfig struct {
	ID          string `yaml:"id,omitempty" json:"id" env:"ID"`
	Name        string `yaml:"name,omitempty" json:"name" env:"NAME"`
	Description string `yaml:"description,omitempty" json:"description"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port      int              `yaml:"port,omitempty" json:"port" env:"PORT"`
	Bind      string           `yaml:"bind,omitempty" json:"bind" env:"BIND"` // "loopback" | "lan" | "custom"
	Host      string           `yaml:"host,omitempty" json:"host" env:"HOST"`
	Auth      GatewayAuth      `yaml:"auth,omitempty" json:"auth" envPrefix:"AUTH_"`
	ControlUI GatewayControlUI `yaml:"controlUi,omitempty" json:"controlUi"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode      string `yaml:"mode,omitempty" json:"mode" env:"MODE"` // "none" | "token" | "jwt"
	Token     string `yaml:"token,omitempty" json:"token" env:"TOKEN"`
	JWTSecret string `yaml:"jwtSecret,omitempty" json:"jwtSecret" env:"JWT_SECRET"`
}

// GatewayControlUI configures browser access to the WebSocket endpoint.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty" json:"allowedOrigins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level" env:"LEVEL"`   // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Format string `yaml:"format,omitempty" json:"format" env:"FORMAT"` // "text" | "json"
}

// WhatsAppConfig holds Twilio WhatsApp credentials.
type WhatsAppConfig struct {
	Enabled           bool   `yaml:"enabled,omitempty" json:"enabled" env:"ENABLED"`
	AccountSid        string `yaml:"accountSid,omitempty" json:"accountSid" env:"ACCOUNT_SID"`
	AuthToken         string `yaml:"authToken,omitempty" json:"authToken" env:"AUTH_TOKEN"`
	PhoneNumber       string `yaml:"phoneNumber,omitempty" json:"phoneNumber" env:"PHONE_NUMBER"`
	WebhookSecret     string `yaml:"webhookSecret,omitempty" json:"webhookSecret" env:"WEBHOOK_SECRET"`
	WebhookURL        string `yaml:"webhookUrl,omitempty" json:"webhookUrl" env:"WEBHOOK_URL"`
	ValidateSignature bool   `yaml:"validateSignature,omitempty" json:"validateSignature" env:"VALIDATE_SIGNATURE"`
}

// SMSConfig holds Twilio Messaging credentials for plain SMS.
type SMSConfig struct {
	Enabled           bool   `yaml:"enabled,omitempty" json:"enabled" env:"ENABLED"`
	AccountSid        string `yaml:"accountSid,omitempty" json:"accountSid" env:"ACCOUNT_SID"`
	AuthToken         string `yaml:"authToken,omitempty" json:"authToken" env:"AUTH_TOKEN"`
	PhoneNumber       string `yaml:"phoneNumber,omitempty" json:"phoneNumber" env:"PHONE_NUMBER"`
	WebhookURL        string `yaml:"webhookUrl,omitempty" json:"webhookUrl" env:"WEBHOOK_URL"`
	ValidateSignature bool   `yaml:"validateSignature,omitempty" json:"validateSignature" env:"VALIDATE_SIGNATURE"`
}

// VoiceConfig holds voice provider credentials and speech settings.
type VoiceConfig struct {
	Enabled           bool   `yaml:"enabled,omitempty" json:"enabled" env:"ENABLED"`
	Provider          string `yaml:"provider,omitempty" json:"provider" env:"PROVIDER"` // "twilio"
	AccountSid        string `yaml:"accountSid,omitempty" json:"accountSid" env:"ACCOUNT_SID"`
	AuthToken         string `yaml:"authToken,omitempty" json:"authToken" env:"AUTH_TOKEN"`
	PhoneNumber       string `yaml:"phoneNumber,omitempty" json:"phoneNumber" env:"PHONE_NUMBER"`
	WebhookURL        string `yaml:"webhookUrl,omitempty" json:"webhookUrl" env:"WEBHOOK_URL"`
	Language          string `yaml:"language,omitempty" json:"language" env:"LANGUAGE"`
	Voice             string `yaml:"voice,omitempty" json:"voice" env:"VOICE"`
	Greeting          string `yaml:"greeting,omitempty" json:"greeting"`
	ValidateSignature bool   `yaml:"validateSignature,omitempty" json:"validateSignature" env:"VALIDATE_SIGNATURE"`
}

// SocialConfig holds Meta Graph API settings.
type SocialConfig struct {
	Enabled      bool            `yaml:"enabled,omitempty" json:"enabled" env:"ENABLED"`
	AppSecret    string          `yaml:"appSecret,omitempty" json:"appSecret" env:"APP_SECRET"`
	VerifyToken  string          `yaml:"verifyToken,omitempty" json:"verifyToken" env:"VERIFY_TOKEN"`
	GraphVersion string          `yaml:"graphVersion,omitempty" json:"graphVersion" env:"GRAPH_VERSION"`
	BaseURL      string          `yaml:"baseUrl,omitempty" json:"baseUrl" env:"BASE_URL"`
	Platforms    SocialPlatforms `yaml:"platforms,omitempty" json:"platforms"`
}

// SocialPlatforms groups per-platform credentials.
type SocialPlatforms struct {
	Facebook  *FacebookConfig  `yaml:"facebook,omitempty" json:"facebook,omitempty"`
	Instagram *InstagramConfig `yaml:"instagram,omitempty" json:"instagram,omitempty"`
	Twitter   *TwitterConfig   `yaml:"twitter,omitempty" json:"twitter,omitempty"`
}

// FacebookConfig holds a Facebook page and its access token.
type FacebookConfig struct {
	PageID      string `yaml:"pageId" json:"pageId"`
	AccessToken string `yaml:"accessToken" json:"accessToken"`
}

// InstagramConfig holds an Instagram professional account and token.
type InstagramConfig struct {
	AccountID   string `yaml:"accountId" json:"accountId"`
	AccessToken string `yaml:"accessToken" json:"accessToken"`
}

// TwitterConfig holds X API credentials.
type TwitterConfig struct {
	APIKey       string `yaml:"apiKey" json:"apiKey"`
	APISecret    string `yaml:"apiSecret" json:"apiSecret"`
	AccessToken  string `yaml:"accessToken" json:"accessToken"`
	AccessSecret string `yaml:"accessSecret" json:"accessSecret"`
}

// EmailConfig holds IMAP/SMTP settings.
type EmailConfig struct {
	Enabled             bool   `yaml:"enabled,omitempty" json:"enabled" env:"ENABLED"`
	IMAPHost            string `yaml:"imapHost,omitempty" json:"imapHost" env:"IMAP_HOST"`
	IMAPPort            int    `yaml:"imapPort,omitempty" json:"imapPort" env:"IMAP_PORT"`
	SMTPHost            string `yaml:"smtpHost,omitempty" json:"smtpHost" env:"SMTP_HOST"`
	SMTPPort            int    `yaml:"smtpPort,omitempty" json:"smtpPort" env:"SMTP_PORT"`
	Username            string `yaml:"username,omitempty" json:"username" env:"USERNAME"`
	Password            string `yaml:"password,omitempty" json:"password" env:"PASSWORD"`
	Address             string `yaml:"address,omitempty" json:"address" env:"ADDRESS"`
	Mailbox             string `yaml:"mailbox,omitempty" json:"mailbox" env:"MAILBOX"`
	PollIntervalSeconds int    `yaml:"pollIntervalSeconds,omitempty" json:"pollIntervalSeconds" env:"POLL_INTERVAL_SECONDS"`
}

// AIConfig configures the AI responder.
type AIConfig struct {
	Provider       string   `yaml:"provider,omitempty" json:"provider" env:"PROVIDER"` // "openai" | "anthropic" | "custom"
	APIKey         string   `yaml:"apiKey,omitempty" json:"apiKey" env:"API_KEY"`
	BaseURL        string   `yaml:"baseUrl,omitempty" json:"baseUrl" env:"BASE_URL"`
	Model          string   `yaml:"model,omitempty" json:"model" env:"MODEL"`
	Temperature    *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens      int      `yaml:"maxTokens,omitempty" json:"maxTokens" env:"MAX_TOKENS"`
	SystemPrompt   string   `yaml:"systemPrompt,omitempty" json:"systemPrompt" env:"SYSTEM_PROMPT"`
	ContextWindow  int      `yaml:"contextWindow,omitempty" json:"contextWindow" env:"CONTEXT_WINDOW"`
	Identity       string   `yaml:"identity,omitempty" json:"identity" env:"IDENTITY"`
	TimeoutSeconds int      `yaml:"timeoutSeconds,omitempty" json:"timeoutSeconds" env:"TIMEOUT_SECONDS"`
}

// WebhookConfig configures outbound event delivery.
type WebhookConfig struct {
	URL    string   `yaml:"url,omitempty" json:"url" env:"URL"`
	Secret string   `yaml:"secret,omitempty" json:"secret" env:"SECRET"`
	Events []string `yaml:"events,omitempty" json:"events" env:"EVENTS" envSeparator:","`
}

// RateLimitingConfig throttles REST callers per client address.
type RateLimitingConfig struct {
	Enabled              bool `yaml:"enabled,omitempty" json:"enabled" env:"ENABLED"`
	MaxRequestsPerMinute int  `yaml:"maxRequestsPerMinute,omitempty" json:"maxRequestsPerMinute" env:"MAX_PER_MINUTE"`
}

// RouterConfig sizes the inbound dispatch pipeline.
type RouterConfig struct {
	QueueSize int `yaml:"queueSize,omitempty" json:"queueSize" env:"QUEUE_SIZE"`
	Workers   int `yaml:"workers,omitempty" json:"workers" env:"WORKERS"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path,omitempty" json:"path" env:"PATH"`
}
