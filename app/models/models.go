package models

import "net/http"

// context keys
type UserContext struct{}
type ClientContext struct{}
type ChannelContext struct{}

const (
	// DateLayout is the day-granularity format used for billing anchors.
	DateLayout = "2006-01-02"
	// TimestampLayout is used for created_at/updated_at stamps.
	TimestampLayout = "2006-01-02T15:04:05Z07:00"
)

type Currency string

const (
	RUB Currency = "RUB"
	USD Currency = "USD"
	EUR Currency = "EUR"
	UAH Currency = "UAH"
	BYN Currency = "BYN"
)

var Currencies = map[Currency]bool{
	RUB: true,
	USD: true,
	EUR: true,
	UAH: true,
	BYN: true,
}

// Subscription is a recurring payment tracked for a single user. StartDate
// is a rolling anchor: it is overwritten with the payment date every time a
// payment is acknowledged, and the whole schedule is derived from
// (StartDate, BillingDay, PeriodMonths).
type Subscription struct {
	ID           string   `bson:"_id" json:"id"`
	OwnerID      int64    `bson:"owner_id" json:"ownerId"`
	Name         string   `bson:"name" json:"name"`
	Amount       float64  `bson:"amount" json:"amount"`
	Currency     Currency `bson:"currency" json:"currency"`
	PeriodMonths int      `bson:"period_months" json:"periodMonths"`
	BillingDay   int      `bson:"billing_day" json:"billingDay"`
	StartDate    string   `bson:"start_date" json:"startDate"`
	IsTrial      bool     `bson:"is_trial" json:"isTrial"`
	Icon         string   `bson:"icon,omitempty" json:"icon,omitempty"`
	Color        string   `bson:"color,omitempty" json:"color,omitempty"`
	Emoji        string   `bson:"emoji,omitempty" json:"emoji,omitempty"`
	CreatedAt    string   `bson:"created_at" json:"createdAt"`
	UpdatedAt    string   `bson:"updated_at" json:"updatedAt"`
}

// User is the owning identity, keyed by the external chat/account id.
type User struct {
	ID           int64  `bson:"_id" json:"id"`
	FirstName    string `bson:"first_name" json:"firstName"`
	LastName     string `bson:"last_name,omitempty" json:"lastName,omitempty"`
	Username     string `bson:"username,omitempty" json:"username,omitempty"`
	LanguageCode string `bson:"language_code" json:"languageCode"`
	CreatedAt    string `bson:"created_at" json:"createdAt"`
	LastActiveAt string `bson:"last_active_at" json:"lastActiveAt"`
}

// RoundTripperFunc is a functional http.RoundTripper, used to stub out
// bot transports in tests and in the dummy system bot.
type RoundTripperFunc func(req *http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// OverdueItem is a subscription classified as due today or overdue,
// carrying the magnitude used for notification ordering.
type OverdueItem struct {
	Subscription Subscription `json:"subscription"`
	OverdueDays  int          `json:"overdueDays"`
	IsDueToday   bool         `json:"isDueToday"`
}
