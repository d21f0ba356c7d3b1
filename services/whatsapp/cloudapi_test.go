package wasvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/whatsapp"
)

func testConfig(baseURL string) *core.Config {
	return &core.Config{WhatsApp: core.WhatsAppConfig{
		BaseURL:       baseURL + "/",
		APIVersion:    "v19.0",
		PhoneNumberID: "1234",
		AccessToken:   "tok",
	}}
}

var outbound = whatsapp.Outbound{
	To:           "919822222222",
	TemplateName: "fee_reminder",
	Language:     "en",
	Params:       []string{"Anika", "4500"},
	Body:         "Dear parent of Anika, 4500 is due.",
}

func TestCloudAPISender_Send(t *testing.T) {
	var got messagePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/1234/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.HBgM"}]}`)
	}))
	defer srv.Close()

	id, err := NewCloudAPISender(testConfig(srv.URL)).Send(context.Background(), outbound)
	require.NoError(t, err)
	assert.Equal(t, "wamid.HBgM", id)

	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "919822222222", got.To)
	assert.Equal(t, "fee_reminder", got.Template.Name)
	assert.Equal(t, "en", got.Template.Language.Code)
	require.Len(t, got.Template.Components, 1)
	assert.Equal(t, []paramPayload{{Type: "text", Text: "Anika"}, {Type: "text", Text: "4500"}}, got.Template.Components[0].Parameters)
}

func TestCloudAPISender_errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "api error", status: http.StatusBadRequest, body: `{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`, wantErr: "Invalid parameter (code 100)"},
		{name: "bare status", status: http.StatusBadGateway, body: `bad gateway`, wantErr: "unexpected status 502"},
		{name: "no id", status: http.StatusOK, body: `{"messages":[]}`, wantErr: "without message id"},
		{name: "garbage", status: http.StatusOK, body: `<html>`, wantErr: "decoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewCloudAPISender(testConfig(srv.URL)).Send(context.Background(), outbound)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewSender(t *testing.T) {
	assert.IsType(t, &ConsoleSender{}, NewSender(&core.Config{}, core.NopLogger()))
	assert.IsType(t, &CloudAPISender{}, NewSender(testConfig("http://localhost"), core.NopLogger()))

	id, err := NewConsoleSender(core.NopLogger()).Send(context.Background(), outbound)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "console."))
}
