package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/soyeahso/jibby/internal/channel/twilio"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/store"
)

// maxBodyBytes caps REST and webhook request bodies.
const maxBodyBytes = 1 << 20

// HealthResponse is returned by the public health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "not found: "+r.URL.Path, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, Envelope{Error: &ErrorShape{Code: code, Message: message, Details: details}})
}

// writeErr maps err onto a status code and error envelope.
func writeErr(w http.ResponseWriter, err error) {
	status, shape := classify(err)
	writeError(w, status, shape.Code, shape.Message, shape.Details)
}

// classify maps domain, config, validation and provider errors onto HTTP
// statuses.
func classify(err error) (int, ErrorShape) {
	var (
		verr   *config.ValidationError
		cerr   *config.ConfigError
		fields validator.ValidationErrors
		perr   *domain.ProviderError
	)
	switch {
	case errors.As(err, &verr):
		issues := make([]string, len(verr.Issues))
		for i, is := range verr.Issues {
			issues[i] = is.String()
		}
		return http.StatusBadRequest, ErrorShape{Code: "VALIDATION_ERROR", Message: "invalid configuration", Details: issues}
	case errors.As(err, &cerr):
		return http.StatusBadRequest, ErrorShape{Code: "VALIDATION_ERROR", Message: cerr.Error()}
	case errors.As(err, &fields):
		return http.StatusBadRequest, ErrorShape{Code: "VALIDATION_ERROR", Message: "invalid request", Details: fieldErrors(fields)}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, ErrorShape{Code: "VALIDATION_ERROR", Message: err.Error()}
	case errors.Is(err, domain.ErrUnsupportedChannel):
		return http.StatusBadRequest, ErrorShape{Code: "UNSUPPORTED_CHANNEL", Message: err.Error()}
	case errors.Is(err, domain.ErrConversationNotFound):
		return http.StatusNotFound, ErrorShape{Code: "CONVERSATION_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorShape{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, domain.ErrNotConnected):
		return http.StatusServiceUnavailable, ErrorShape{Code: "NOT_CONNECTED", Message: err.Error()}
	case errors.Is(err, domain.ErrAdapterInit):
		return http.StatusServiceUnavailable, ErrorShape{Code: "ADAPTER_INIT", Message: err.Error()}
	case errors.As(err, &perr):
		switch perr.Code {
		case strconv.Itoa(twilio.CodeInvalidNumber):
			return http.StatusBadRequest, ErrorShape{Code: "INVALID_PHONE_NUMBER", Message: "Invalid phone number format"}
		case strconv.Itoa(twilio.CodeCountryNotEnabled):
			return http.StatusForbidden, ErrorShape{Code: "CALLING_NOT_ENABLED", Message: "Calling to this country is not enabled"}
		}
		return http.StatusBadGateway, ErrorShape{Code: "PROVIDER_ERROR", Message: err.Error(), Details: map[string]any{"provider": perr.Provider, "code": perr.Code}}
	}
	return http.StatusInternalServerError, ErrorShape{Code: "INTERNAL_ERROR", Message: err.Error()}
}

func fieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return out
}

var errBadRequest = errors.New("bad request")

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", errBadRequest, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return s.validate.Struct(dst)
}

// RequestHandler processes a request frame from a WebSocket client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a WebSocket handler needs.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message})
}

// Params unmarshals and validates the request params into target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params != nil {
		if err := json.Unmarshal(rc.Frame.Params, target); err != nil {
			return err
		}
	}
	return rc.Server.validate.Struct(target)
}
