package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSummary(t *testing.T) {
	tests := []struct {
		name      string
		counts    map[string]int
		wantTotal int
		wantPct   float64
	}{
		{"no records", map[string]int{}, 0, 0},
		{"all present", map[string]int{StatusPresent: 10}, 10, 100},
		{"late counts as attended", map[string]int{StatusPresent: 6, StatusLate: 2, StatusAbsent: 2}, 10, 80},
		{"excused leaves the denominator", map[string]int{StatusPresent: 3, StatusAbsent: 1, StatusExcused: 4}, 8, 75},
		{"only excused", map[string]int{StatusExcused: 3}, 3, 0},
		{"rounding", map[string]int{StatusPresent: 2, StatusAbsent: 1}, 3, 66.67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSummary("stu", tt.counts)
			assert.Equal(t, tt.wantTotal, s.Total)
			assert.Equal(t, tt.wantPct, s.Percentage)
		})
	}
}
