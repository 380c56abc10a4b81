// Package billing is the schedule engine: pure functions computing due
// dates and overdue state from a subscription and a reference instant.
// Inputs are assumed validated at the API boundary (billing day in [1,31],
// positive period and amount); every function here is total and side
// effect free, so callers never need locking.
package billing

import (
	"sort"
	"time"

	"subtrack/m/v2/app/models"
)

// DateOnly strips the time of day, pinning the date to UTC midnight. All
// engine comparisons happen on these values, which keeps day counting
// immune to timezone and DST drift.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts "2006-01-02" or a full RFC3339 stamp and returns the
// UTC midnight of that calendar day.
func ParseDate(s string) (time.Time, error) {
	if len(s) > len(models.DateLayout) {
		s = s[:len(models.DateLayout)]
	}
	return time.Parse(models.DateLayout, s)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// addMonths does pure month arithmetic on (year, month), with no day
// component to overflow.
func addMonths(year int, month time.Month, n int) (int, time.Month) {
	idx := year*12 + int(month-1) + n
	return idx / 12, time.Month(idx%12 + 1)
}

// occurrenceIn places the billing day inside a month, clamping to the
// month's last day so that day 31 lands on Feb 28/29 instead of rolling
// into March.
func occurrenceIn(year int, month time.Month, billingDay int) time.Time {
	day := billingDay
	if day < 1 {
		day = 1
	}
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func periodOf(sub models.Subscription) int {
	if sub.PeriodMonths < 1 {
		return 1
	}
	return sub.PeriodMonths
}

// anchor returns the schedule anchor at day granularity. An unparseable
// start date cannot normally reach the engine; it degrades to "anchored
// today" rather than panicking.
func anchor(sub models.Subscription, now time.Time) time.Time {
	d, err := ParseDate(sub.StartDate)
	if err != nil {
		return DateOnly(now)
	}
	return d
}

// firstDueMonth applies the already-billed-this-period rule: when the
// billing day is on or before the anchor's day of month, the anchor itself
// covers the current period and the first unpaid occurrence is one full
// period later. Entering a subscription whose billing day already passed
// this month implies the current period is paid. The comparison uses the
// billing day as clamped into the anchor's month, so a payment recorded on
// Apr 30 covers a day-31 schedule.
func firstDueMonth(sub models.Subscription, a time.Time) (int, time.Month) {
	year, month := a.Year(), a.Month()
	effectiveDay := sub.BillingDay
	if last := daysInMonth(year, month); effectiveDay > last {
		effectiveDay = last
	}
	if effectiveDay <= a.Day() {
		return addMonths(year, month, periodOf(sub))
	}
	return year, month
}

// NextBillingDate computes the first billing occurrence on or after now.
// Each occurrence is derived from the anchor month by whole-month steps,
// never from a previously clamped date, so clamping in a short month does
// not shift later occurrences.
func NextBillingDate(sub models.Subscription, now time.Time) time.Time {
	today := DateOnly(now)
	year, month := firstDueMonth(sub, anchor(sub, now))
	step := periodOf(sub)
	for k := 0; ; k++ {
		y, m := addMonths(year, month, k*step)
		occ := occurrenceIn(y, m, sub.BillingDay)
		if !occ.Before(today) {
			return occ
		}
	}
}

// lastDue returns the most recent occurrence on or before now, or false
// when the first occurrence is still in the future.
func lastDue(sub models.Subscription, now time.Time) (time.Time, bool) {
	today := DateOnly(now)
	year, month := firstDueMonth(sub, anchor(sub, now))
	step := periodOf(sub)
	var last time.Time
	found := false
	for k := 0; ; k++ {
		y, m := addMonths(year, month, k*step)
		occ := occurrenceIn(y, m, sub.BillingDay)
		if occ.After(today) {
			return last, found
		}
		last, found = occ, true
	}
}

// DaysUntilBilling counts calendar days from now to the next billing
// occurrence. Zero means due today; the result is never negative, overdue
// is a separate predicate.
func DaysUntilBilling(sub models.Subscription, now time.Time) int {
	return daysBetween(DateOnly(now), NextBillingDate(sub, now))
}

// IsDueToday reports whether the most recent due occurrence is today.
// Trials are never due.
func IsDueToday(sub models.Subscription, now time.Time) bool {
	if sub.IsTrial {
		return false
	}
	last, ok := lastDue(sub, now)
	return ok && last.Equal(DateOnly(now))
}

// IsOverdue reports whether the most recent due occurrence passed without
// a recorded payment. Trials are never overdue.
func IsOverdue(sub models.Subscription, now time.Time) bool {
	if sub.IsTrial {
		return false
	}
	last, ok := lastDue(sub, now)
	return ok && last.Before(DateOnly(now))
}

// OverdueDays counts calendar days since the missed occurrence, zero when
// the subscription is not overdue.
func OverdueDays(sub models.Subscription, now time.Time) int {
	if sub.IsTrial {
		return 0
	}
	last, ok := lastDue(sub, now)
	if !ok || !last.Before(DateOnly(now)) {
		return 0
	}
	return daysBetween(last, DateOnly(now))
}

// RecordPayment returns the subscription advanced past a payment made on
// paidOn: the anchor moves to the payment date and any trial ends. The
// billing day is deliberately left untouched; the schedule only changes
// when the user edits it explicitly.
func RecordPayment(sub models.Subscription, paidOn time.Time) models.Subscription {
	out := sub
	out.StartDate = DateOnly(paidOn).Format(models.DateLayout)
	out.IsTrial = false
	return out
}

// DueTomorrow filters subscriptions whose next occurrence is exactly one
// day out, skipping trials.
func DueTomorrow(subs []models.Subscription, now time.Time) []models.Subscription {
	due := []models.Subscription{}
	for _, sub := range subs {
		if sub.IsTrial {
			continue
		}
		if DaysUntilBilling(sub, now) == 1 {
			due = append(due, sub)
		}
	}
	return due
}

// Overdue classifies subscriptions that are due today or already missed,
// ordered due-today first, then by descending overdue days so the most
// urgent surface first.
func Overdue(subs []models.Subscription, now time.Time) []models.OverdueItem {
	items := []models.OverdueItem{}
	for _, sub := range subs {
		switch {
		case IsDueToday(sub, now):
			items = append(items, models.OverdueItem{Subscription: sub, IsDueToday: true})
		case IsOverdue(sub, now):
			items = append(items, models.OverdueItem{Subscription: sub, OverdueDays: OverdueDays(sub, now)})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsDueToday != items[j].IsDueToday {
			return items[i].IsDueToday
		}
		return items[i].OverdueDays > items[j].OverdueDays
	})
	return items
}

// UrgencyLevel buckets days-until-billing for presentation.
func UrgencyLevel(daysLeft int) string {
	switch {
	case daysLeft <= 2:
		return "urgent"
	case daysLeft <= 7:
		return "warning"
	default:
		return "normal"
	}
}

// MonthsSince counts billing periods elapsed since the anchor, including
// the anchor payment itself, never less than one.
func MonthsSince(sub models.Subscription, now time.Time) int {
	a := anchor(sub, now)
	today := DateOnly(now)
	months := (today.Year()-a.Year())*12 + int(today.Month()-a.Month())
	if today.Day() < a.Day() {
		months--
	}
	periods := months/periodOf(sub) + 1
	if periods < 1 {
		return 1
	}
	return periods
}

// TotalPaid estimates historical spend from the rolling anchor. Trials are
// excluded from spend totals.
func TotalPaid(sub models.Subscription, now time.Time) (amount float64, periods int) {
	if sub.IsTrial {
		return 0, 0
	}
	periods = MonthsSince(sub, now)
	return float64(periods) * sub.Amount, periods
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
