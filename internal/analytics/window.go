package analytics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultWindowMonths is the chart window when the caller does not pick one.
	DefaultWindowMonths = 6
	// MaxWindowMonths caps the rolling window.
	MaxWindowMonths = 36

	monthLayout = "2006-01"
)

// ErrInvalidWindow is returned for a window outside [1, MaxWindowMonths].
var ErrInvalidWindow = errors.New("analytics: invalid window")

// Window scopes one analytics computation.
type Window struct {
	Tenant uuid.UUID
	Months int
}

// Normalize fills defaults and rejects out-of-range windows.
func (w Window) Normalize() (Window, error) {
	if w.Months == 0 {
		w.Months = DefaultWindowMonths
	}
	if w.Months < 0 || w.Months > MaxWindowMonths {
		return Window{}, fmt.Errorf("%w: %d months", ErrInvalidWindow, w.Months)
	}
	return w, nil
}

// Key is the cache key for the window.
func (w Window) Key() string {
	return keyAnalytics(w.Tenant, w.Months)
}

func keyAnalytics(tenant uuid.UUID, months int) string {
	return strings.Join([]string{"analytics", tenant.String(), strconv.Itoa(months)}, ":")
}

// DateRange is inclusive of From and of To unless OpenEnd is set.
type DateRange struct {
	From    time.Time
	To      time.Time
	OpenEnd bool
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if t.Before(r.From) {
		return false
	}
	if r.OpenEnd {
		return t.Before(r.To)
	}
	return !t.After(r.To)
}

// Union returns the smallest closed range covering r and o.
func (r DateRange) Union(o DateRange) DateRange {
	out := DateRange{From: r.From, To: r.To}
	if o.From.Before(out.From) {
		out.From = o.From
	}
	if o.To.After(out.To) {
		out.To = o.To
	}
	return out
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// monthEnd is the last instant of t's month.
func monthEnd(t time.Time) time.Time {
	return monthStart(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

func formatMonth(t time.Time) string {
	return t.Format(monthLayout)
}

// windowRange is the span covered by the monthly buckets of a window.
func windowRange(now time.Time, months int) DateRange {
	return DateRange{From: monthStart(now).AddDate(0, -(months - 1), 0), To: now}
}
