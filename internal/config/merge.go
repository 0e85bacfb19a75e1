package config

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Section names as they appear at the top level of the config document.
const (
	SectionAgent        = "agent"
	SectionGateway      = "gateway"
	SectionLogging      = "logging"
	SectionWhatsApp     = "whatsapp"
	SectionSMS          = "sms"
	SectionVoice        = "voice"
	SectionSocial       = "social"
	SectionEmail        = "email"
	SectionAI           = "ai"
	SectionWebhook      = "webhook"
	SectionRateLimiting = "rateLimiting"
	SectionRouter       = "router"
	SectionStore        = "store"
)

var sections = []string{
	SectionAgent, SectionGateway, SectionLogging, SectionWhatsApp, SectionSMS,
	SectionVoice, SectionSocial, SectionEmail, SectionAI, SectionWebhook,
	SectionRateLimiting, SectionRouter, SectionStore,
}

// Merge applies a partial JSON document to base and returns the result along
// with the top-level sections the patch touched, in declaration order.
// Objects merge field by field; arrays and scalars replace. base is not
// modified.
func Merge(base Config, patch []byte) (Config, []string, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(patch, &keys); err != nil {
		return base, nil, &ConfigError{Message: "invalid patch: " + err.Error()}
	}

	var changed []string
	for k := range keys {
		if !slices.Contains(sections, k) {
			return base, nil, &ConfigError{Message: "unknown config section: " + k}
		}
	}
	for _, s := range sections {
		if _, ok := keys[s]; ok {
			changed = append(changed, s)
		}
	}

	out, err := Clone(base)
	if err != nil {
		return base, nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(patch))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return base, nil, &ConfigError{Message: "invalid patch: " + err.Error()}
	}
	applyDefaults(&out)
	return out, changed, nil
}

// Clone deep-copies cfg so pointer fields are not shared.
func Clone(cfg Config) (Config, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg, err
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg, err
	}
	return out, nil
}

const redacted = "********"

// Redacted returns a copy of cfg with credentials masked.
func Redacted(cfg Config) Config {
	out, err := Clone(cfg)
	if err != nil {
		return Config{}
	}
	mask := func(p *string) {
		if *p != "" {
			*p = redacted
		}
	}
	for _, p := range []*string{
		&out.Gateway.Auth.Token,
		&out.Gateway.Auth.JWTSecret,
		&out.WhatsApp.AuthToken,
		&out.WhatsApp.WebhookSecret,
		&out.SMS.AuthToken,
		&out.Voice.AuthToken,
		&out.Social.AppSecret,
		&out.Social.VerifyToken,
		&out.Email.Password,
		&out.AI.APIKey,
		&out.Webhook.Secret,
	} {
		mask(p)
	}
	if fb := out.Social.Platforms.Facebook; fb != nil {
		mask(&fb.AccessToken)
	}
	if ig := out.Social.Platforms.Instagram; ig != nil {
		mask(&ig.AccessToken)
	}
	if tw := out.Social.Platforms.Twitter; tw != nil {
		mask(&tw.APISecret)
		mask(&tw.AccessToken)
		mask(&tw.AccessSecret)
	}
	return out
}
