package dashboard

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/avsnarang/scholarise/core"
	"github.com/avsnarang/scholarise/core/admission"
	"github.com/avsnarang/scholarise/core/attendance"
	"github.com/avsnarang/scholarise/core/leave"
	"github.com/avsnarang/scholarise/core/whatsapp"
)

type (
	Summary struct {
		Students             int            `json:"students"`
		Staff                int            `json:"staff"`
		Classes              int            `json:"classes"`
		LeadsByStatus        map[string]int `json:"leads_by_status"`
		ApplicationsByStatus map[string]int `json:"applications_by_status"`
		AttendanceToday      map[string]int `json:"attendance_today"`
		PendingLeaveRequests int            `json:"pending_leave_requests"`
		MessagesLast7Days    int            `json:"messages_last_7_days"`
	}

	// Counter counts the active students, active staff and classes of a school.
	Counter interface {
		CountStudents(ctx context.Context, schoolID string) (int, error)
		CountStaff(ctx context.Context, schoolID string) (int, error)
		CountClasses(ctx context.Context, schoolID string) (int, error)
	}

	Service interface {
		Summary(ctx context.Context, schoolID string) (Summary, error)
	}

	service struct {
		counter  Counter
		admSvc   admission.Service
		attSvc   attendance.Service
		leaveSvc leave.Service
		waSvc    whatsapp.Service
	}
)

var _ Service = (*service)(nil)

func NewService(
	counter Counter,
	admSvc admission.Service,
	attSvc attendance.Service,
	leaveSvc leave.Service,
	waSvc whatsapp.Service,
) Service {
	return &service{counter: counter, admSvc: admSvc, attSvc: attSvc, leaveSvc: leaveSvc, waSvc: waSvc}
}

func (svc *service) Summary(ctx context.Context, schoolID string) (Summary, error) {
	var s Summary
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		s.Students, err = svc.counter.CountStudents(ctx, schoolID)
		return errors.Wrap(err, "counting students")
	})
	g.Go(func() (err error) {
		s.Staff, err = svc.counter.CountStaff(ctx, schoolID)
		return errors.Wrap(err, "counting staff")
	})
	g.Go(func() (err error) {
		s.Classes, err = svc.counter.CountClasses(ctx, schoolID)
		return errors.Wrap(err, "counting classes")
	})
	g.Go(func() error {
		stats, err := svc.admSvc.Stats(ctx, schoolID)
		if err != nil {
			return errors.Wrap(err, "admission stats")
		}
		s.LeadsByStatus = stats.Leads
		s.ApplicationsByStatus = stats.Applications
		return nil
	})
	g.Go(func() (err error) {
		s.AttendanceToday, err = svc.attSvc.DaySummary(ctx, schoolID, core.Today())
		return errors.Wrap(err, "attendance of the day")
	})
	g.Go(func() (err error) {
		s.PendingLeaveRequests, err = svc.leaveSvc.CountPending(ctx, schoolID)
		return errors.Wrap(err, "counting leave requests")
	})
	g.Go(func() (err error) {
		since := core.Now().Add(-7 * 24 * time.Hour)
		s.MessagesLast7Days, err = svc.waSvc.CountMessagesSince(ctx, schoolID, since)
		return errors.Wrap(err, "counting messages")
	})

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return s, nil
}
