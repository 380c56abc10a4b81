package api

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"subtrack/m/v2/app/billing"
	"subtrack/m/v2/app/models"
)

// ValidationError is the tagged rejection produced at the API boundary;
// the engine never sees unvalidated input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

type CreateSubscriptionRequest struct {
	Name         string   `json:"name"`
	Amount       float64  `json:"amount"`
	Currency     string   `json:"currency"`
	PeriodMonths int      `json:"periodMonths"`
	BillingDay   int      `json:"billingDay"`
	StartDate    string   `json:"startDate"`
	IsTrial      bool     `json:"isTrial"`
	Icon         string   `json:"icon"`
	Color        string   `json:"color"`
	Emoji        string   `json:"emoji"`
}

// Validate turns the request into a storable subscription or rejects it,
// filling the same defaults the original Mini App applied.
func (r CreateSubscriptionRequest) Validate(ownerID int64) (models.Subscription, *ValidationError) {
	if strings.TrimSpace(r.Name) == "" {
		return models.Subscription{}, invalid("name", "is required")
	}
	if r.Amount <= 0 {
		return models.Subscription{}, invalid("amount", "must be positive")
	}
	if r.BillingDay < 1 || r.BillingDay > 31 {
		return models.Subscription{}, invalid("billingDay", "must be between 1 and 31")
	}
	if r.StartDate == "" {
		return models.Subscription{}, invalid("startDate", "is required")
	}
	startDate, err := billing.ParseDate(r.StartDate)
	if err != nil {
		return models.Subscription{}, invalid("startDate", "must be YYYY-MM-DD")
	}

	currency := models.Currency(r.Currency)
	if r.Currency == "" {
		currency = models.RUB
	} else if !models.Currencies[currency] {
		return models.Subscription{}, invalid("currency", "unknown currency code")
	}

	periodMonths := r.PeriodMonths
	if periodMonths == 0 {
		periodMonths = 1
	}
	if periodMonths < 1 {
		return models.Subscription{}, invalid("periodMonths", "must be at least 1")
	}

	icon := r.Icon
	if icon == "" {
		icon = strings.ToUpper(string([]rune(r.Name)[0]))
	}
	color := r.Color
	if color == "" {
		color = "#007AFF"
	}

	return models.Subscription{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Name:         r.Name,
		Amount:       r.Amount,
		Currency:     currency,
		PeriodMonths: periodMonths,
		BillingDay:   r.BillingDay,
		StartDate:    startDate.Format(models.DateLayout),
		IsTrial:      r.IsTrial,
		Icon:         icon,
		Color:        color,
		Emoji:        r.Emoji,
	}, nil
}

type UpdateSubscriptionRequest struct {
	Name         *string  `json:"name"`
	Amount       *float64 `json:"amount"`
	Currency     *string  `json:"currency"`
	PeriodMonths *int     `json:"periodMonths"`
	BillingDay   *int     `json:"billingDay"`
	StartDate    *string  `json:"startDate"`
	IsTrial      *bool    `json:"isTrial"`
	Icon         *string  `json:"icon"`
	Color        *string  `json:"color"`
	Emoji        *string  `json:"emoji"`
}

func (r UpdateSubscriptionRequest) Validate() *ValidationError {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if r.Amount != nil && *r.Amount <= 0 {
		return invalid("amount", "must be positive")
	}
	if r.BillingDay != nil && (*r.BillingDay < 1 || *r.BillingDay > 31) {
		return invalid("billingDay", "must be between 1 and 31")
	}
	if r.PeriodMonths != nil && *r.PeriodMonths < 1 {
		return invalid("periodMonths", "must be at least 1")
	}
	if r.Currency != nil && !models.Currencies[models.Currency(*r.Currency)] {
		return invalid("currency", "unknown currency code")
	}
	if r.StartDate != nil {
		if _, err := billing.ParseDate(*r.StartDate); err != nil {
			return invalid("startDate", "must be YYYY-MM-DD")
		}
	}
	return nil
}

// Apply lays the patch over an existing record; unset fields are kept.
func (r UpdateSubscriptionRequest) Apply(sub models.Subscription) models.Subscription {
	if r.Name != nil {
		sub.Name = *r.Name
	}
	if r.Amount != nil {
		sub.Amount = *r.Amount
	}
	if r.Currency != nil {
		sub.Currency = models.Currency(*r.Currency)
	}
	if r.PeriodMonths != nil {
		sub.PeriodMonths = *r.PeriodMonths
	}
	if r.BillingDay != nil {
		sub.BillingDay = *r.BillingDay
	}
	if r.StartDate != nil {
		parsed, err := billing.ParseDate(*r.StartDate)
		if err == nil {
			sub.StartDate = parsed.Format(models.DateLayout)
		}
	}
	if r.IsTrial != nil {
		sub.IsTrial = *r.IsTrial
	}
	if r.Icon != nil {
		sub.Icon = *r.Icon
	}
	if r.Color != nil {
		sub.Color = *r.Color
	}
	if r.Emoji != nil {
		sub.Emoji = *r.Emoji
	}
	return sub
}

// SyncEntry is one record of a client snapshot posted to /api/sync.
type SyncEntry struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	PeriodMonths int     `json:"periodMonths"`
	BillingDay   int     `json:"billingDay"`
	StartDate    string  `json:"startDate"`
	IsTrial      bool    `json:"isTrial"`
	Icon         string  `json:"icon"`
	Color        string  `json:"color"`
	Emoji        string  `json:"emoji"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
}

func (e SyncEntry) Validate(ownerID int64) (models.Subscription, *ValidationError) {
	if strings.TrimSpace(e.Name) == "" {
		return models.Subscription{}, invalid("name", "is required")
	}
	if e.Amount <= 0 {
		return models.Subscription{}, invalid("amount", "must be positive")
	}
	if e.BillingDay < 1 || e.BillingDay > 31 {
		return models.Subscription{}, invalid("billingDay", "must be between 1 and 31")
	}

	periodMonths := e.PeriodMonths
	if periodMonths < 1 {
		periodMonths = 1
	}
	currency := models.Currency(e.Currency)
	if !models.Currencies[currency] {
		currency = models.RUB
	}
	startDate := e.StartDate
	if parsed, err := billing.ParseDate(startDate); err == nil {
		startDate = parsed.Format(models.DateLayout)
	} else {
		return models.Subscription{}, invalid("startDate", "must be YYYY-MM-DD")
	}

	return models.Subscription{
		ID:           e.ID,
		OwnerID:      ownerID,
		Name:         e.Name,
		Amount:       e.Amount,
		Currency:     currency,
		PeriodMonths: periodMonths,
		BillingDay:   e.BillingDay,
		StartDate:    startDate,
		IsTrial:      e.IsTrial,
		Icon:         e.Icon,
		Color:        e.Color,
		Emoji:        e.Emoji,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}, nil
}
