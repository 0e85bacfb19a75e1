package social

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/soyeahso/jibby/internal/config"
	"github.com/soyeahso/jibby/internal/domain"
	"github.com/soyeahso/jibby/internal/version"
)

// DefaultBaseURL is the Meta Graph API host.
const DefaultBaseURL = "https://graph.facebook.com"

type graphClient struct {
	http    *resty.Client
	version string
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type sendRequest struct {
	Recipient     graphID        `json:"recipient"`
	MessagingType string         `json:"messaging_type"`
	Message       map[string]any `json:"message"`
}

type graphID struct {
	ID string `json:"id"`
}

type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

type graphNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newGraphClient(baseURL, graphVersion string) *graphClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if graphVersion == "" {
		graphVersion = config.DefaultGraphVersion
	}
	return &graphClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("User-Agent", version.UserAgent()).
			SetTimeout(15 * time.Second),
		version: graphVersion,
	}
}

func (g *graphClient) path(parts ...string) string {
	return "/" + g.version + "/" + strings.Join(parts, "/")
}

// node fetches id and name of a page or account.
func (g *graphClient) node(ctx context.Context, id, token string) (*graphNode, error) {
	var out graphNode
	var gerr graphError
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("fields", "id,name").
		SetQueryParam("access_token", token).
		SetResult(&out).
		SetError(&gerr).
		Get(g.path(id))
	if err != nil {
		return nil, &domain.ProviderError{Provider: "graph", Err: fmt.Errorf("graph request failed: %w", err)}
	}
	if resp.IsError() {
		return nil, toProviderError(resp.StatusCode(), gerr)
	}
	return &out, nil
}

// send posts a text message from the page or account id to recipient.
func (g *graphClient) send(ctx context.Context, fromID, token, recipient, text string) (*sendResponse, error) {
	var out sendResponse
	var gerr graphError
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		SetHeader("Content-Type", "application/json").
		SetBody(sendRequest{
			Recipient:     graphID{ID: recipient},
			MessagingType: "RESPONSE",
			Message:       map[string]any{"text": text},
		}).
		SetResult(&out).
		SetError(&gerr).
		Post(g.path(fromID, "messages"))
	if err != nil {
		return nil, &domain.ProviderError{Provider: "graph", Err: fmt.Errorf("graph request failed: %w", err)}
	}
	if resp.IsError() {
		return nil, toProviderError(resp.StatusCode(), gerr)
	}
	return &out, nil
}

func toProviderError(status int, gerr graphError) error {
	msg := gerr.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("graph API returned %d", status)
	}
	pe := &domain.ProviderError{Provider: "graph", Status: status, Message: msg}
	if gerr.Error.Code != 0 {
		pe.Code = strconv.Itoa(gerr.Error.Code)
	}
	return pe
}
