package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"subtrack/m/v2/app/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sub(startDate string, billingDay, periodMonths int) models.Subscription {
	return models.Subscription{
		ID:           "test",
		OwnerID:      1,
		Name:         "Netflix",
		Amount:       599,
		Currency:     models.RUB,
		PeriodMonths: periodMonths,
		BillingDay:   billingDay,
		StartDate:    startDate,
	}
}

func TestNextBillingDate(t *testing.T) {
	tests := []struct {
		name string
		sub  models.Subscription
		now  time.Time
		want time.Time
	}{
		{
			name: "billing day later this month",
			sub:  sub("2024-03-01", 20, 1),
			now:  date(2024, time.March, 10),
			want: date(2024, time.March, 20),
		},
		{
			name: "anchor day covers current period",
			sub:  sub("2024-01-15", 15, 1),
			now:  date(2024, time.January, 15),
			want: date(2024, time.February, 15),
		},
		{
			name: "day 31 clamps to February in a non-leap year",
			sub:  sub("2023-01-31", 31, 1),
			now:  date(2023, time.February, 1),
			want: date(2023, time.February, 28),
		},
		{
			name: "day 31 clamps to February 29 in a leap year",
			sub:  sub("2024-01-31", 31, 1),
			now:  date(2024, time.February, 1),
			want: date(2024, time.February, 29),
		},
		{
			name: "clamped February does not shift March",
			sub:  sub("2023-01-31", 31, 1),
			now:  date(2023, time.March, 1),
			want: date(2023, time.March, 31),
		},
		{
			name: "yearly cadence",
			sub:  sub("2023-06-10", 10, 12),
			now:  date(2024, time.January, 1),
			want: date(2024, time.June, 10),
		},
		{
			name: "quarterly cadence catches up over old anchor",
			sub:  sub("2023-01-05", 5, 3),
			now:  date(2024, time.February, 1),
			want: date(2024, time.April, 5),
		},
		{
			name: "result lands on now when due today",
			sub:  sub("2024-01-15", 15, 1),
			now:  date(2024, time.February, 15),
			want: date(2024, time.February, 15),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextBillingDate(tt.sub, tt.now)
			assert.Equal(t, tt.want, got)
			// purity: the same inputs must yield the identical date
			assert.Equal(t, got, NextBillingDate(tt.sub, tt.now))
			assert.False(t, got.Before(DateOnly(tt.now)))
		})
	}
}

func TestNextBillingDateKeepsBillingDayInLongMonths(t *testing.T) {
	// for billing days that fit every month, the day of month never moves
	s := sub("2024-01-10", 28, 1)
	now := date(2024, time.January, 11)
	for i := 0; i < 14; i++ {
		next := NextBillingDate(s, now)
		assert.Equal(t, 28, next.Day(), "month %s", next.Month())
		now = next.AddDate(0, 0, 1)
	}
}

func TestDaysUntilBilling(t *testing.T) {
	tests := []struct {
		name string
		sub  models.Subscription
		now  time.Time
		want int
	}{
		{
			name: "due in five days",
			sub:  sub("2024-03-01", 20, 1),
			now:  date(2024, time.March, 15),
			want: 5,
		},
		{
			name: "due today",
			sub:  sub("2024-01-15", 15, 1),
			now:  date(2024, time.February, 15),
			want: 0,
		},
		{
			name: "creation day counts as already paid",
			sub:  sub("2024-01-15", 15, 1),
			now:  date(2024, time.January, 15),
			want: 31,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DaysUntilBilling(tt.sub, tt.now)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
		})
	}
}

func TestDueTodayAgreesWithDaysUntil(t *testing.T) {
	// daysUntilBilling == 0 iff isDueToday for non-trials
	anchors := []string{"2024-01-01", "2024-01-15", "2024-01-31", "2023-11-30"}
	for _, a := range anchors {
		for day := 1; day <= 31; day++ {
			s := sub(a, day, 1)
			for offset := 0; offset < 70; offset++ {
				now := date(2024, time.February, 1).AddDate(0, 0, offset)
				dueToday := IsDueToday(s, now)
				daysUntil := DaysUntilBilling(s, now)
				assert.Equal(t, dueToday, daysUntil == 0,
					"anchor %s day %d now %s: dueToday=%v daysUntil=%d", a, day, now, dueToday, daysUntil)
			}
		}
	}
}

func TestIsOverdue(t *testing.T) {
	// billing day five days before now, nothing paid since
	s := sub("2023-12-10", 15, 1)
	now := date(2024, time.January, 20)
	assert.True(t, IsOverdue(s, now))
	assert.Equal(t, 5, OverdueDays(s, now))
	assert.False(t, IsDueToday(s, now))

	// paid today is due, not overdue
	dueNow := sub("2023-12-10", 20, 1)
	assert.False(t, IsOverdue(dueNow, now))
	assert.True(t, IsDueToday(dueNow, now))
	assert.Equal(t, 0, OverdueDays(dueNow, now))

	// nothing due before the first occurrence
	fresh := sub("2024-01-18", 25, 1)
	assert.False(t, IsOverdue(fresh, now))
	assert.False(t, IsDueToday(fresh, now))
}

func TestTrialIsNeverDueNorOverdue(t *testing.T) {
	s := sub("2023-12-10", 15, 1)
	s.IsTrial = true
	for offset := 0; offset < 90; offset++ {
		now := date(2024, time.January, 1).AddDate(0, 0, offset)
		assert.False(t, IsOverdue(s, now))
		assert.False(t, IsDueToday(s, now))
		assert.Equal(t, 0, OverdueDays(s, now))
	}
}

func TestRecordPayment(t *testing.T) {
	s := sub("2023-12-15", 15, 1)
	s.IsTrial = true

	paidOn := date(2024, time.January, 15)
	paid := RecordPayment(s, paidOn)

	assert.Equal(t, "2024-01-15", paid.StartDate)
	assert.False(t, paid.IsTrial)
	assert.Equal(t, s.BillingDay, paid.BillingDay, "billing day must not re-anchor")
	// the original value is untouched
	assert.Equal(t, "2023-12-15", s.StartDate)
	assert.True(t, s.IsTrial)

	// round-trip: right after paying, nothing is due and the next
	// occurrence is one full period out
	assert.False(t, IsOverdue(paid, paidOn))
	assert.False(t, IsDueToday(paid, paidOn))
	assert.Equal(t, 31, DaysUntilBilling(paid, paidOn))
}

func TestRecordPaymentAfterOverdue(t *testing.T) {
	s := sub("2023-12-05", 5, 1)
	now := date(2024, time.January, 8)
	assert.True(t, IsOverdue(s, now))
	assert.Equal(t, 3, OverdueDays(s, now))

	paid := RecordPayment(s, now)
	assert.False(t, IsOverdue(paid, now))
	assert.Equal(t, date(2024, time.February, 5), NextBillingDate(paid, now))
}

func TestRecordPaymentOnClampedMonthEnd(t *testing.T) {
	// day-31 schedule, April's occurrence clamps to the 30th; paying on
	// that day covers the period instead of falling due again immediately
	s := sub("2024-01-31", 31, 1)
	paidOn := date(2024, time.April, 30)
	paid := RecordPayment(s, paidOn)

	assert.False(t, IsDueToday(paid, paidOn))
	assert.False(t, IsOverdue(paid, paidOn))
	assert.Equal(t, date(2024, time.May, 31), NextBillingDate(paid, paidOn))
	assert.Equal(t, 31, DaysUntilBilling(paid, paidOn))
}

func TestRecordPaymentOnFebruaryClampedDay(t *testing.T) {
	// non-leap February: day 30 clamps to the 28th
	s := sub("2023-01-30", 30, 1)
	paidOn := date(2023, time.February, 28)
	paid := RecordPayment(s, paidOn)
	assert.False(t, IsDueToday(paid, paidOn))
	assert.Equal(t, date(2023, time.March, 30), NextBillingDate(paid, paidOn))

	// leap February: day 31 clamps to the 29th
	leap := sub("2024-01-31", 31, 1)
	leapPaidOn := date(2024, time.February, 29)
	leapPaid := RecordPayment(leap, leapPaidOn)
	assert.False(t, IsDueToday(leapPaid, leapPaidOn))
	assert.Equal(t, date(2024, time.March, 31), NextBillingDate(leapPaid, leapPaidOn))
}

func TestDueTomorrow(t *testing.T) {
	now := date(2024, time.March, 14)
	trial := sub("2024-02-10", 15, 1)
	trial.IsTrial = true
	subs := []models.Subscription{
		sub("2024-02-10", 15, 1), // due tomorrow
		sub("2024-02-10", 20, 1), // due in six days
		trial,                    // due tomorrow but trial
	}
	due := DueTomorrow(subs, now)
	assert.Len(t, due, 1)
	assert.Equal(t, 15, due[0].BillingDay)
}

func TestOverdueOrdering(t *testing.T) {
	now := date(2024, time.March, 20)
	mild := sub("2024-02-10", 18, 1)   // 2 days overdue
	severe := sub("2024-02-01", 10, 1) // 10 days overdue
	today := sub("2024-02-25", 20, 1)  // due today
	future := sub("2024-03-18", 25, 1) // not due yet

	items := Overdue([]models.Subscription{mild, severe, today, future}, now)
	assert.Len(t, items, 3)
	assert.True(t, items[0].IsDueToday)
	assert.Equal(t, 0, items[0].OverdueDays)
	assert.Equal(t, 10, items[1].OverdueDays)
	assert.Equal(t, 2, items[2].OverdueDays)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-02-29", want: date(2024, time.February, 29)},
		{in: "2024-02-29T10:30:00.000Z", want: date(2024, time.February, 29)},
		{in: "garbage", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestUrgencyLevel(t *testing.T) {
	assert.Equal(t, "urgent", UrgencyLevel(0))
	assert.Equal(t, "urgent", UrgencyLevel(2))
	assert.Equal(t, "warning", UrgencyLevel(3))
	assert.Equal(t, "warning", UrgencyLevel(7))
	assert.Equal(t, "normal", UrgencyLevel(8))
}

func TestTotalPaid(t *testing.T) {
	s := sub("2024-01-15", 15, 1)
	amount, periods := TotalPaid(s, date(2024, time.April, 20))
	assert.Equal(t, 4, periods)
	assert.Equal(t, float64(4)*599, amount)

	s.IsTrial = true
	amount, periods = TotalPaid(s, date(2024, time.April, 20))
	assert.Zero(t, amount)
	assert.Zero(t, periods)
}
