package core

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestValidators(t *testing.T) {
	validate := validator.New()
	InitValidators(validate, NewTranslator())

	NowFunc = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	defer func() { NowFunc = time.Now }()

	type form struct {
		Year  string `json:"year" validate:"omitempty,academicyear"`
		Born  Date   `json:"born" validate:"omitempty,notfuture"`
		Phone string `json:"phone" validate:"omitempty,phone"`
		Name  string `json:"name" validate:"omitempty,alphanum_"`
	}

	tests := []struct {
		name    string
		f       form
		wantErr bool
	}{
		{"empty", form{}, false},
		{"valid academic year", form{Year: "2026-2027"}, false},
		{"academic year not consecutive", form{Year: "2026-2028"}, true},
		{"academic year bad format", form{Year: "26-27"}, true},
		{"date today", form{Born: NewDate(2026, 3, 10)}, false},
		{"date in the future", form{Born: NewDate(2026, 3, 11)}, true},
		{"valid phone", form{Phone: "+254 712-345 678"}, false},
		{"short phone", form{Phone: "12345"}, true},
		{"alphanum_", form{Name: "john_doe2"}, false},
		{"alphanum_ with symbols", form{Name: "john-doe!"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.f)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestWorkingDays(t *testing.T) {
	sunday := []time.Weekday{time.Sunday}
	// 2026-03-02 is a Monday
	assert.Equal(t, 6, WorkingDays(NewDate(2026, 3, 2), NewDate(2026, 3, 8), sunday))
	assert.Equal(t, 5, WorkingDays(NewDate(2026, 3, 2), NewDate(2026, 3, 8), []time.Weekday{time.Saturday, time.Sunday}))
	assert.Equal(t, 0, WorkingDays(NewDate(2026, 3, 8), NewDate(2026, 3, 8), sunday))
	assert.Equal(t, 0, WorkingDays(NewDate(2026, 3, 9), NewDate(2026, 3, 2), sunday))

	from, to, ok := OverlapDays(NewDate(2026, 3, 1), NewDate(2026, 3, 10), NewDate(2026, 3, 5), NewDate(2026, 3, 20))
	assert.True(t, ok)
	assert.Equal(t, "2026-03-05", from.String())
	assert.Equal(t, "2026-03-10", to.String())

	_, _, ok = OverlapDays(NewDate(2026, 3, 1), NewDate(2026, 3, 4), NewDate(2026, 3, 5), NewDate(2026, 3, 20))
	assert.False(t, ok)
}
