package twilio

import (
	"strings"
)

const whatsappPrefix = "whatsapp:"

// NormalizeE164 strips formatting from a phone number and ensures the
// leading plus. A "00" international prefix is rewritten to "+".
func NormalizeE164(number string) string {
	number = strings.TrimSpace(strings.TrimPrefix(number, whatsappPrefix))
	var b strings.Builder
	for i, r := range number {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.HasPrefix(out, "00") {
		out = "+" + out[2:]
	}
	if out != "" && !strings.HasPrefix(out, "+") {
		out = "+" + out
	}
	return out
}

// WhatsAppAddress returns number as a Twilio WhatsApp address.
func WhatsAppAddress(number string) string {
	return whatsappPrefix + NormalizeE164(number)
}

// StripWhatsApp removes the whatsapp: scheme from a Twilio address.
func StripWhatsApp(addr string) string {
	return strings.TrimPrefix(addr, whatsappPrefix)
}
