package exam

import (
	"math"
	"sort"
)

var gradeBands = []struct {
	min   float64
	grade string
}{
	{90, "A+"},
	{80, "A"},
	{70, "B"},
	{60, "C"},
	{50, "D"},
	{40, "E"},
}

// Grade maps a percentage to its letter grade.
func Grade(percentage float64) string {
	for _, b := range gradeBands {
		if percentage >= b.min {
			return b.grade
		}
	}
	return "F"
}

// ComputeResults builds the result of every student from their marks.
// A subject without a mark counts as absent.
func ComputeResults(subjects []Subject, marks []Mark, students []ResultStudent) []Result {
	bySubject := make(map[string]map[string]Mark, len(subjects))
	for _, m := range marks {
		if bySubject[m.SubjectID] == nil {
			bySubject[m.SubjectID] = make(map[string]Mark)
		}
		bySubject[m.SubjectID][m.StudentID] = m
	}

	var maxTotal int
	for _, sub := range subjects {
		maxTotal += sub.MaxMarks
	}

	results := make([]Result, 0, len(students))
	for _, stu := range students {
		res := Result{
			StudentID:      stu.ID,
			RegistrationNo: stu.RegistrationNo,
			Name:           stu.Name,
			Subjects:       make([]SubjectResult, 0, len(subjects)),
			MaxTotal:       maxTotal,
			Passed:         len(subjects) > 0,
		}
		for _, sub := range subjects {
			m, ok := bySubject[sub.ID][stu.ID]
			sr := SubjectResult{
				SubjectID: sub.ID,
				Subject:   sub.Name,
				Marks:     m.Marks,
				MaxMarks:  sub.MaxMarks,
				IsAbsent:  !ok || m.IsAbsent,
			}
			sr.Passed = !sr.IsAbsent && sr.Marks >= sub.PassMarks
			if !sr.Passed {
				res.Passed = false
			}
			res.Total += sr.Marks
			res.Subjects = append(res.Subjects, sr)
		}
		if maxTotal > 0 {
			res.Percentage = math.Round(float64(res.Total)*10000/float64(maxTotal)) / 100
		}
		res.Grade = Grade(res.Percentage)
		results = append(results, res)
	}

	Rank(results)
	return results
}

// Rank sorts results by total (highest first) and assigns competition ranks: 1, 2, 2, 4.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Total != results[j].Total {
			return results[i].Total > results[j].Total
		}
		return results[i].Name < results[j].Name
	})
	for i := range results {
		if i > 0 && results[i].Total == results[i-1].Total {
			results[i].Rank = results[i-1].Rank
		} else {
			results[i].Rank = i + 1
		}
	}
}

// ResultStudent identifies a student in the results.
type ResultStudent struct {
	ID             string
	RegistrationNo string
	Name           string
}
