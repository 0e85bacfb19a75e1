// Package twilio implements the WhatsApp, SMS and Voice adapters on top of
// the Twilio REST API.
package twilio

import (
	"errors"
	"strconv"

	"github.com/soyeahso/jibby/internal/domain"
	twiliogo "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// API is the subset of the Twilio REST API used by the adapters.
// *openapi.ApiService satisfies it.
type API interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
	ListMessage(params *openapi.ListMessageParams) ([]openapi.ApiV2010Message, error)
	CreateCall(params *openapi.CreateCallParams) (*openapi.ApiV2010Call, error)
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
	ListCall(params *openapi.ListCallParams) ([]openapi.ApiV2010Call, error)
}

// APIFactory builds an API client for an account.
type APIFactory func(accountSid, authToken string) API

// NewRESTAPI returns the Twilio SDK client for an account.
func NewRESTAPI(accountSid, authToken string) API {
	c := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	return c.Api
}

// Option configures an adapter.
type Option func(*options)

type options struct {
	newAPI APIFactory
}

// WithAPIFactory replaces the Twilio SDK client, mainly for tests.
func WithAPIFactory(f APIFactory) Option {
	return func(o *options) { o.newAPI = f }
}

func buildOptions(opts []Option) options {
	o := options{newAPI: NewRESTAPI}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Well-known Twilio error codes surfaced to API callers.
const (
	CodeInvalidNumber     = 21211
	CodeCountryNotEnabled = 21408
)

// wrapError converts SDK errors into *domain.ProviderError.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var rest *twclient.TwilioRestError
	if errors.As(err, &rest) {
		return &domain.ProviderError{
			Provider: "twilio",
			Code:     strconv.Itoa(rest.Code),
			Status:   rest.Status,
			Message:  rest.Message,
			Err:      err,
		}
	}
	return &domain.ProviderError{Provider: "twilio", Err: err}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
