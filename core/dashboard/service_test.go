package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/admission"
	"github.com/avsnarang/scholarise/core/attendance"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/whatsapp"
)

type fakeCounter struct{ err error }

func (f fakeCounter) CountStudents(context.Context, string) (int, error) { return 120, f.err }
func (f fakeCounter) CountStaff(context.Context, string) (int, error)    { return 14, nil }
func (f fakeCounter) CountClasses(context.Context, string) (int, error)  { return 6, nil }

type fakeAdmission struct{ admission.Service }

func (fakeAdmission) Stats(context.Context, string) (admission.FunnelStats, error) {
	return admission.FunnelStats{
		Leads:        map[string]int{admission.LeadNew: 3},
		Applications: map[string]int{admission.AppSubmitted: 2},
	}, nil
}

type fakeAttendance struct{ attendance.Service }

func (fakeAttendance) DaySummary(context.Context, string, core.Date) (map[string]int, error) {
	return map[string]int{attendance.StatusPresent: 100, attendance.StatusAbsent: 4}, nil
}

type fakeLeave struct{ leave.Service }

func (fakeLeave) CountPending(context.Context, string) (int, error) { return 2, nil }

type fakeWhatsApp struct{ whatsapp.Service }

func (fakeWhatsApp) CountMessagesSince(_ context.Context, _ string, since time.Time) (int, error) {
	if time.Since(since) < 6*24*time.Hour {
		return 0, errors.New("wrong window")
	}
	return 37, nil
}

func TestSummary(t *testing.T) {
	svc := NewService(fakeCounter{}, fakeAdmission{}, fakeAttendance{}, fakeLeave{}, fakeWhatsApp{})

	s, err := svc.Summary(context.Background(), "school")
	require.NoError(t, err)
	assert.Equal(t, Summary{
		Students:             120,
		Staff:                14,
		Classes:              6,
		LeadsByStatus:        map[string]int{admission.LeadNew: 3},
		ApplicationsByStatus: map[string]int{admission.AppSubmitted: 2},
		AttendanceToday:      map[string]int{attendance.StatusPresent: 100, attendance.StatusAbsent: 4},
		PendingLeaveRequests: 2,
		MessagesLast7Days:    37,
	}, s)

	svc = NewService(fakeCounter{err: errors.New("db down")}, fakeAdmission{}, fakeAttendance{}, fakeLeave{}, fakeWhatsApp{})
	_, err = svc.Summary(context.Background(), "school")
	assert.EqualError(t, err, "counting students: db down")
}
