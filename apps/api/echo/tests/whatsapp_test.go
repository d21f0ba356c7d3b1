package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/apps/api/echo"
	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/user"
	"github.com/avsnarang/scholarise/core/whatsapp"
	"github.com/avsnarang/scholarise/tests"
)

const appSecret = "app-secret"

func statusPayload(t *testing.T, providerID, status string) []byte {
	return marchallObj(t, map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []interface{}{map[string]interface{}{
			"id": "1234",
			"changes": []interface{}{map[string]interface{}{
				"field": "messages",
				"value": map[string]interface{}{
					"statuses": []interface{}{map[string]interface{}{
						"id":           providerID,
						"status":       status,
						"timestamp":    "1767225600",
						"recipient_id": "919811111111",
					}},
				},
			}},
		}},
	})
}

func Test_whatsappApi_verifyWebhook(t *testing.T) {
	f := setup(t)

	runHTTPTests(t, f, []httpTest{
		{name: "wrong token", path: "/api/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=lol&hub.challenge=42", wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: whatsapp.ErrVerifyFailed.Error()})},
		{name: "wrong mode", path: "/api/webhooks/whatsapp?hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=42", wantCode: http.StatusForbidden},
	})

	req, rec := newRequest(http.MethodGet, "/api/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444")
	f.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1158201444", rec.Body.String())
}

func Test_whatsappApi_templates(t *testing.T) {
	f := setup(t)
	sch := testutil.CreateSchool(t, f.schRepo, "Green Hills School", "GHS")
	admin := f.token(t, f.createUser(t, sch.ID, "Admin", "admin", user.RoleAdmin))
	teacher := f.token(t, f.createUser(t, sch.ID, "Teacher", "teacher", user.RoleTeacher))

	var tpl whatsapp.Template
	rec := f.do(t, http.MethodPost, "/api/whatsapp/templates", admin, whatsapp.NewTemplate{
		Name:      "Fee_Reminder",
		Category:  "Utility",
		Body:      "Dear {{1}}, the fees of {{2}} are due.",
		Variables: []string{"guardian", "student"},
	}, &tpl)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "fee_reminder", tpl.Name)
	assert.Equal(t, "en", tpl.Language)
	assert.Equal(t, whatsapp.CategoryUtility, tpl.Category)
	assert.True(t, tpl.IsActive)

	runHTTPTests(t, f, []httpTest{
		{name: "no permission", path: "/api/whatsapp/templates", token: teacher, wantCode: http.StatusForbidden},
		{
			name: "variables must match the placeholders", method: http.MethodPost, path: "/api/whatsapp/templates", token: admin,
			body:     marchallObj(t, whatsapp.NewTemplate{Name: "hello", Category: "utility", Body: "Hello {{1}}"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "gap in placeholders", method: http.MethodPost, path: "/api/whatsapp/templates", token: admin,
			body:     marchallObj(t, whatsapp.NewTemplate{Name: "hello", Category: "utility", Body: "Hello {{2}}", Variables: []string{"x"}}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "duplicate", method: http.MethodPost, path: "/api/whatsapp/templates", token: admin,
			body:     marchallObj(t, whatsapp.NewTemplate{Name: "fee_reminder", Category: "utility", Body: "Hi"}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "preview", method: http.MethodPost, path: "/api/whatsapp/templates/" + tpl.ID + "/preview", token: admin,
			body:     marchallObj(t, echoapi.PreviewRequest{Params: []string{"Mrs Bose", "Anika"}}),
			wantData: marchallObj(t, echoapi.PreviewResponse{Body: "Dear Mrs Bose, the fees of Anika are due."}),
		},
		{
			name: "preview with missing params", method: http.MethodPost, path: "/api/whatsapp/templates/" + tpl.ID + "/preview", token: admin,
			body:     marchallObj(t, echoapi.PreviewRequest{Params: []string{"Mrs Bose"}}),
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("deactivate", func(t *testing.T) {
		inactive := false
		var got whatsapp.Template
		rec := f.do(t, http.MethodPut, "/api/whatsapp/templates/"+tpl.ID, admin, whatsapp.UpdateTemplate{IsActive: &inactive}, &got)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.False(t, got.IsActive)

		rec = f.do(t, http.MethodPost, "/api/whatsapp/messages", admin, whatsapp.SendMessage{
			TemplateID: tpl.ID,
			Params:     []string{"a", "b"},
			Recipients: []whatsapp.Recipient{{Phone: "+919811111111"}},
		}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_whatsappApi_deliveryStatus(t *testing.T) {
	f := setup(t, func(conf *core.Config) { conf.WhatsApp.AppSecret = appSecret })
	sch := testutil.CreateSchool(t, f.schRepo, "Green Hills School", "GHS")
	admin := f.token(t, f.createUser(t, sch.ID, "Admin", "admin", user.RoleAdmin))

	var tpl whatsapp.Template
	rec := f.do(t, http.MethodPost, "/api/whatsapp/templates", admin, whatsapp.NewTemplate{
		Name:      "holiday_notice",
		Category:  "utility",
		Body:      "School stays closed on {{1}}.",
		Variables: []string{"date"},
	}, &tpl)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res whatsapp.SendResult
	rec = f.do(t, http.MethodPost, "/api/whatsapp/messages", admin, whatsapp.SendMessage{
		TemplateID: tpl.ID,
		Params:     []string{"Monday"},
		Recipients: []whatsapp.Recipient{
			{Phone: "+91 98111 11111", Name: "Ritu Bose"},
			{Phone: "919811111111"},
		},
	}, &res)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, res.Messages, 1, "phone numbers are deduplicated")
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 0, res.Failed)

	msg := res.Messages[0]
	assert.Equal(t, "919811111111", msg.Recipient)
	assert.Equal(t, "School stays closed on Monday.", msg.Body)
	assert.Equal(t, whatsapp.StatusSent, msg.Status)
	require.NotEmpty(t, msg.ProviderMessageID)

	post := func(body []byte, signature string) int {
		req, rec := newRequest(http.MethodPost, "/api/webhooks/whatsapp", body)
		if signature != "" {
			req.Header.Set("X-Hub-Signature-256", signature)
		}
		f.app.ServeHTTP(rec, req)
		return rec.Code
	}
	getMsg := func() whatsapp.Message {
		var m whatsapp.Message
		rec := f.do(t, http.MethodGet, "/api/whatsapp/messages/"+msg.ID, admin, nil, &m)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return m
	}

	delivered := statusPayload(t, msg.ProviderMessageID, whatsapp.StatusDelivered)
	assert.Equal(t, http.StatusUnauthorized, post(delivered, "sha256=deadbeef"))
	assert.Equal(t, http.StatusUnauthorized, post(delivered, ""))
	assert.Equal(t, whatsapp.StatusSent, getMsg().Status)

	assert.Equal(t, http.StatusOK, post(delivered, whatsapp.Sign(delivered, appSecret)))
	assert.Equal(t, whatsapp.StatusDelivered, getMsg().Status)

	read := statusPayload(t, msg.ProviderMessageID, whatsapp.StatusRead)
	assert.Equal(t, http.StatusOK, post(read, whatsapp.Sign(read, appSecret)))
	assert.Equal(t, whatsapp.StatusRead, getMsg().Status)

	// late deliveries never move a message backwards
	assert.Equal(t, http.StatusOK, post(delivered, whatsapp.Sign(delivered, appSecret)))
	assert.Equal(t, whatsapp.StatusRead, getMsg().Status)

	var events []whatsapp.WebhookEvent
	rec = f.do(t, http.MethodGet, "/api/whatsapp/webhook-events", admin, nil, &events)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, events, 3, "rejected deliveries belong to no school")
	processed := 0
	for _, ev := range events {
		assert.True(t, ev.SignatureValid)
		processed += ev.Processed
	}
	assert.Equal(t, 2, processed)

	var msgs []whatsapp.Message
	rec = f.do(t, http.MethodGet, "/api/whatsapp/messages?status=read", admin, nil, &msgs)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, msgs, 1)

	// messages of another school are not found
	other := testutil.CreateSchool(t, f.schRepo, "Riverside Academy", "RSA")
	otherAdmin := f.token(t, f.createUser(t, other.ID, "Other Admin", "otheradmin", user.RoleAdmin))
	rec = f.do(t, http.MethodGet, "/api/whatsapp/messages/"+msg.ID, otherAdmin, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
