package twilio

import (
	"net/url"

	twclient "github.com/twilio/twilio-go/client"
)

// ValidSignature checks an X-Twilio-Signature header against the request URL
// and form parameters.
func ValidSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	v := twclient.NewRequestValidator(authToken)
	return v.Validate(fullURL, params, signature)
}
