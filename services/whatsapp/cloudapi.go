// Package wasvc delivers WhatsApp template messages.
package wasvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/whatsapp"
)

type (
	langPayload struct {
		Code string `json:"code"`
	}

	paramPayload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}

	componentPayload struct {
		Type       string         `json:"type"`
		Parameters []paramPayload `json:"parameters"`
	}

	templatePayload struct {
		Name       string             `json:"name"`
		Language   langPayload        `json:"language"`
		Components []componentPayload `json:"components,omitempty"`
	}

	messagePayload struct {
		MessagingProduct string          `json:"messaging_product"`
		To               string          `json:"to"`
		Type             string          `json:"type"`
		Template         templatePayload `json:"template"`
	}

	sendResponse struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
)

// CloudAPISender sends template messages through the WhatsApp Cloud API.
type CloudAPISender struct {
	client   *rest.Client
	endpoint string
	token    string
}

var _ whatsapp.Sender = (*CloudAPISender)(nil)

func NewCloudAPISender(conf *core.Config) *CloudAPISender {
	wa := conf.WhatsApp
	return &CloudAPISender{
		client:   &rest.Client{HTTPClient: &http.Client{Timeout: 10 * time.Second}},
		endpoint: fmt.Sprintf("%s/%s/%s/messages", strings.TrimSuffix(wa.BaseURL, "/"), wa.APIVersion, wa.PhoneNumberID),
		token:    wa.AccessToken,
	}
}

func payloadFor(msg whatsapp.Outbound) messagePayload {
	p := messagePayload{
		MessagingProduct: "whatsapp",
		To:               msg.To,
		Type:             "template",
		Template: templatePayload{
			Name:     msg.TemplateName,
			Language: langPayload{Code: msg.Language},
		},
	}
	if len(msg.Params) > 0 {
		params := make([]paramPayload, 0, len(msg.Params))
		for _, v := range msg.Params {
			params = append(params, paramPayload{Type: "text", Text: v})
		}
		p.Template.Components = []componentPayload{{Type: "body", Parameters: params}}
	}
	return p
}

func (s *CloudAPISender) Send(ctx context.Context, msg whatsapp.Outbound) (string, error) {
	body, err := json.Marshal(payloadFor(msg))
	if err != nil {
		return "", errors.Wrap(err, "encoding message")
	}

	res, err := s.client.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: s.endpoint,
		Headers: map[string]string{
			"Authorization": "Bearer " + s.token,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return "", errors.Wrap(err, "calling whatsapp cloud api")
	}

	var out sendResponse
	if err := json.Unmarshal([]byte(res.Body), &out); err != nil && res.StatusCode < http.StatusBadRequest {
		return "", errors.Wrap(err, "decoding whatsapp response")
	}
	if res.StatusCode >= http.StatusBadRequest || out.Error != nil {
		if out.Error != nil {
			return "", errors.Errorf("whatsapp: %s (code %d)", out.Error.Message, out.Error.Code)
		}
		return "", errors.Errorf("whatsapp: unexpected status %d", res.StatusCode)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", errors.New("whatsapp: response without message id")
	}
	return out.Messages[0].ID, nil
}

// ConsoleSender logs messages instead of sending them; used when no access token is configured.
type ConsoleSender struct {
	logger core.Logger
}

var _ whatsapp.Sender = (*ConsoleSender)(nil)

func NewConsoleSender(logger core.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

func (s *ConsoleSender) Send(_ context.Context, msg whatsapp.Outbound) (string, error) {
	s.logger.Info(fmt.Sprintf("whatsapp to %s [%s/%s]: %s", msg.To, msg.TemplateName, msg.Language, msg.Body))
	return "console." + uuid.NewString(), nil
}

// NewSender picks the Cloud API sender when credentials are configured.
func NewSender(conf *core.Config, logger core.Logger) whatsapp.Sender {
	if conf.WhatsApp.AccessToken == "" || conf.WhatsApp.PhoneNumberID == "" {
		return NewConsoleSender(logger)
	}
	return NewCloudAPISender(conf)
}
