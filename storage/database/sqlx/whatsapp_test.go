package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/whatsapp"
	"github.com/avsnarang/scholarise/tests"
)

func Test_whatsappRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	repo := NewWhatsAppRepository(db)
	sch := testutil.CreateSchool(t, NewSchoolRepository(db), "Green Hills School", "GHS")
	other := testutil.CreateSchool(t, NewSchoolRepository(db), "Riverside Academy", "RSA")
	now := core.Now()

	tmpl, err := repo.CreateTemplate(ctx, whatsapp.Template{
		SchoolID:  sch.ID,
		Name:      "fee_reminder",
		Language:  "en",
		Category:  whatsapp.CategoryUtility,
		Body:      "Dear {{1}}, the fee of {{2}} is due.",
		Variables: []string{"parent", "amount"},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	t.Run("templates", func(t *testing.T) {
		dup := tmpl
		_, err := repo.CreateTemplate(ctx, dup)
		assert.Equal(t, core.ErrUniqueViolation, errors.Cause(err))

		// same name in another language is fine
		dup.Language = "hi"
		_, err = repo.CreateTemplate(ctx, dup)
		require.NoError(t, err)

		got, err := repo.GetTemplate(ctx, sch.ID, tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"parent", "amount"}, got.Variables)

		_, err = repo.GetTemplate(ctx, other.ID, tmpl.ID)
		assert.Equal(t, whatsapp.ErrTemplateNotFound, err)

		list, err := repo.QueryTemplates(ctx, sch.ID, &whatsapp.TemplateFilter{Search: "FEE"})
		require.NoError(t, err)
		assert.Len(t, list, 2)
		list, err = repo.QueryTemplates(ctx, other.ID, nil)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	msgs, err := repo.CreateMessages(ctx, []whatsapp.Message{
		{SchoolID: sch.ID, TemplateID: tmpl.ID, Recipient: "919800000001", Params: []string{"Ritu", "500"}, Body: "b1", Status: whatsapp.StatusQueued, CreatedAt: now, UpdatedAt: now},
		{SchoolID: sch.ID, TemplateID: tmpl.ID, Recipient: "919800000002", Body: "b2", Status: whatsapp.StatusQueued, CreatedAt: now, UpdatedAt: now},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	t.Run("templates in use are kept", func(t *testing.T) {
		assert.Equal(t, whatsapp.ErrTemplateInUse, repo.DeleteTemplate(ctx, sch.ID, tmpl.ID))
	})

	t.Run("guarded status updates", func(t *testing.T) {
		m := msgs[0]
		m.Status = whatsapp.StatusSent
		m.ProviderMessageID = "wamid.1"
		m.UpdatedAt = core.Now()
		require.NoError(t, repo.AdvanceMessage(ctx, m, []string{whatsapp.StatusQueued}))

		// already sent
		err := repo.AdvanceMessage(ctx, m, []string{whatsapp.StatusQueued})
		assert.Equal(t, core.ErrStaleWrite, errors.Cause(err))

		found, err := repo.FindMessageByProviderID(ctx, "wamid.1")
		require.NoError(t, err)
		assert.Equal(t, m.ID, found.ID)
		assert.Equal(t, whatsapp.StatusSent, found.Status)
		assert.Equal(t, []string{"Ritu", "500"}, found.Params)

		_, err = repo.FindMessageByProviderID(ctx, "")
		assert.Equal(t, whatsapp.ErrMessageNotFound, err)
	})

	t.Run("messages", func(t *testing.T) {
		list, err := repo.QueryMessages(ctx, sch.ID, &whatsapp.MessageFilter{Status: whatsapp.StatusQueued})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, msgs[1].ID, list[0].ID)
		assert.Empty(t, list[0].Params)

		n, err := repo.CountMessagesSince(ctx, sch.ID, now.Add(-time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		n, err = repo.CountMessagesSince(ctx, other.ID, now.Add(-time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("webhook events", func(t *testing.T) {
		for i, schoolID := range []string{sch.ID, "", sch.ID} {
			_, err := repo.CreateWebhookEvent(ctx, whatsapp.WebhookEvent{
				SchoolID:       schoolID,
				Payload:        "{}",
				SignatureValid: schoolID != "",
				Processed:      i,
				ReceivedAt:     now.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}
		events, err := repo.QueryWebhookEvents(ctx, sch.ID, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, 2, events[0].Processed) // latest first
	})
}
