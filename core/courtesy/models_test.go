package courtesy

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
)

func TestNewCall_Validate(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	core.NowFunc = func() time.Time { return time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC) }
	defer func() { core.NowFunc = time.Now }()

	stuID := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	tests := []struct {
		name    string
		nc      NewCall
		wantErr bool
	}{
		{"valid", NewCall{StudentID: stuID, Purpose: "Academic", Feedback: "doing well"}, false},
		{"follow-up", NewCall{StudentID: stuID, Purpose: "fee", Feedback: "will pay", FollowUpRequired: true, FollowUpDate: core.NewDate(2026, 4, 20)}, false},
		{"follow-up without date", NewCall{StudentID: stuID, Purpose: "fee", Feedback: "will pay", FollowUpRequired: true}, true},
		{"follow-up before call", NewCall{StudentID: stuID, Purpose: "fee", Feedback: "x", FollowUpRequired: true, FollowUpDate: core.NewDate(2026, 4, 10)}, true},
		{"bad purpose", NewCall{StudentID: stuID, Purpose: "gossip", Feedback: "x"}, true},
		{"rating too high", NewCall{StudentID: stuID, Purpose: "general", Feedback: "x", Rating: 6}, true},
		{"future call", NewCall{StudentID: stuID, Purpose: "general", Feedback: "x", CallDate: core.NewDate(2026, 4, 16)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nc.Validate(validate)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}

	nc := NewCall{StudentID: stuID, Purpose: "general", Feedback: "ok", FollowUpDate: core.NewDate(2026, 5, 1)}
	require.NoError(t, nc.Validate(validate))
	assert.Equal(t, "2026-04-15", nc.CallDate.String())
	assert.True(t, nc.FollowUpDate.IsZero(), "follow-up date dropped when not required")
}
