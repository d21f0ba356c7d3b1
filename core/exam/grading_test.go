package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrade(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{100, "A+"}, {90, "A+"}, {89.99, "A"}, {80, "A"}, {70, "B"}, {65.5, "C"},
		{50, "D"}, {40, "E"}, {39.99, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Grade(tt.pct), "Grade(%v)", tt.pct)
	}
}

func TestRank(t *testing.T) {
	results := []Result{
		{Name: "d", Total: 50},
		{Name: "b", Total: 80},
		{Name: "a", Total: 90},
		{Name: "c", Total: 80},
	}
	Rank(results)

	var names []string
	var ranks []int
	for _, r := range results {
		names = append(names, r.Name)
		ranks = append(ranks, r.Rank)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, names)
	assert.Equal(t, []int{1, 2, 2, 4}, ranks)
}

func TestComputeResults(t *testing.T) {
	subjects := []Subject{
		{ID: "math", Name: "Mathematics", MaxMarks: 100, PassMarks: 40},
		{ID: "eng", Name: "English", MaxMarks: 50, PassMarks: 20},
	}
	students := []ResultStudent{
		{ID: "s1", Name: "Amani"},
		{ID: "s2", Name: "Baraka"},
		{ID: "s3", Name: "Chausiku"},
	}
	marks := []Mark{
		{SubjectID: "math", StudentID: "s1", Marks: 95},
		{SubjectID: "eng", StudentID: "s1", Marks: 45},
		{SubjectID: "math", StudentID: "s2", Marks: 30},
		{SubjectID: "eng", StudentID: "s2", Marks: 40},
		{SubjectID: "math", StudentID: "s3", Marks: 0, IsAbsent: true},
		// s3 has no english mark
	}

	results := ComputeResults(subjects, marks, students)
	require.Len(t, results, 3)

	first := results[0]
	assert.Equal(t, "s1", first.StudentID)
	assert.Equal(t, 140, first.Total)
	assert.Equal(t, 150, first.MaxTotal)
	assert.Equal(t, 93.33, first.Percentage)
	assert.Equal(t, "A+", first.Grade)
	assert.True(t, first.Passed)
	assert.Equal(t, 1, first.Rank)

	second := results[1]
	assert.Equal(t, "s2", second.StudentID)
	assert.Equal(t, 70, second.Total)
	assert.False(t, second.Passed, "failed mathematics")
	assert.Equal(t, "E", second.Grade)
	assert.Equal(t, 2, second.Rank)

	third := results[2]
	assert.Equal(t, "s3", third.StudentID)
	assert.Equal(t, 0, third.Total)
	assert.False(t, third.Passed)
	assert.True(t, third.Subjects[0].IsAbsent)
	assert.True(t, third.Subjects[1].IsAbsent)
	assert.Equal(t, "F", third.Grade)
}
