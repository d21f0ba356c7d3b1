package whatsapp

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
)

func TestCountPlaceholders(t *testing.T) {
	tests := []struct {
		body    string
		want    int
		wantErr bool
	}{
		{"no placeholders", 0, false},
		{"Hello {{1}}", 1, false},
		{"{{1}} owes {{2}}, pay by {{3}}. Thanks {{1}}", 3, false},
		{"{{ 2 }} then {{1}}", 2, false},
		{"starts at {{2}}", 0, true},
		{"gap {{1}} {{3}}", 0, true},
	}
	for _, tt := range tests {
		got, err := CountPlaceholders(tt.body)
		if tt.wantErr {
			assert.Error(t, err, tt.body)
			continue
		}
		require.NoError(t, err, tt.body)
		assert.Equal(t, tt.want, got, tt.body)
	}
}

func TestTemplate_Render(t *testing.T) {
	tmpl := Template{Body: "Dear {{1}}, {{2}} was absent today. Regards, {{1}}'s school"}

	got, err := tmpl.Render([]string{"Mrs Wanjiru", "Amani"})
	require.NoError(t, err)
	assert.Equal(t, "Dear Mrs Wanjiru, Amani was absent today. Regards, Mrs Wanjiru's school", got)

	_, err = tmpl.Render([]string{"only one"})
	assert.Error(t, err)

	got, err = Template{Body: "static"}.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "static", got)
}

func TestCanAdvance(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusQueued, StatusSent, true},
		{StatusQueued, StatusRead, true},
		{StatusSent, StatusDelivered, true},
		{StatusDelivered, StatusRead, true},
		{StatusRead, StatusDelivered, false},
		{StatusDelivered, StatusSent, false},
		{StatusSent, StatusSent, false},
		{StatusSent, StatusFailed, true},
		{StatusDelivered, StatusFailed, false},
		{StatusFailed, StatusDelivered, false},
		{StatusSent, "bogus", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanAdvance(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.ElementsMatch(t, []string{StatusQueued, StatusSent}, advanceableFrom(StatusDelivered))
}

func TestNewTemplate_Validate(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	nt := NewTemplate{Name: "Fee_Reminder", Category: "Utility", Body: "Hi {{1}}, {{2}} is due", Variables: []string{"parent", "amount"}}
	require.NoError(t, nt.Validate(validate))
	assert.Equal(t, "fee_reminder", nt.Name)
	assert.Equal(t, "en", nt.Language)

	bad := []NewTemplate{
		{Name: "fee reminder", Category: "utility", Body: "Hi"},
		{Name: "fee", Language: "english", Category: "utility", Body: "Hi"},
		{Name: "fee", Category: "spam", Body: "Hi"},
		{Name: "fee", Category: "utility", Body: "Hi {{1}}"},
		{Name: "fee", Category: "utility", Body: "Hi {{2}}", Variables: []string{"x", "y"}},
	}
	for _, b := range bad {
		assert.Error(t, b.Validate(validate), "%+v", b)
	}
}

func TestPhoneDigits(t *testing.T) {
	assert.Equal(t, "254712345678", PhoneDigits("+254 712 345-678"))
	assert.Equal(t, "0712345678", PhoneDigits("0712 345 678"))
}
