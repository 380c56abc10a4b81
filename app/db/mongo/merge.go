package mongo

import (
	"time"

	"github.com/google/uuid"

	"subtrack/m/v2/app/models"
)

// MergeSubscriptions reconciles a client snapshot against the server set
// for one owner. Last-writer-wins by updatedAt, ties favor the incoming
// copy; incoming records without a server match are inserted; server
// records absent from the snapshot are kept untouched. The function is
// pure so the policy can be tested without a store.
func MergeSubscriptions(ownerID int64, existing, incoming []models.Subscription, now time.Time) []models.Subscription {
	nowString := now.Format(models.TimestampLayout)

	byID := make(map[string]models.Subscription, len(existing))
	order := make([]string, 0, len(existing)+len(incoming))
	for _, sub := range existing {
		byID[sub.ID] = sub
		order = append(order, sub.ID)
	}

	for _, in := range incoming {
		in.OwnerID = ownerID
		if in.ID == "" {
			in.ID = uuid.New().String()
		}
		if in.CreatedAt == "" {
			in.CreatedAt = nowString
		}
		if in.UpdatedAt == "" {
			in.UpdatedAt = nowString
		}

		current, ok := byID[in.ID]
		if !ok {
			byID[in.ID] = in
			order = append(order, in.ID)
			continue
		}
		if !parseStamp(in.UpdatedAt).Before(parseStamp(current.UpdatedAt)) {
			// incoming is at least as fresh, keep its immutable fields
			in.CreatedAt = current.CreatedAt
			byID[in.ID] = in
		}
	}

	merged := make([]models.Subscription, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	return merged
}

// parseStamp treats an unparseable stamp as the zero time, which makes a
// record with a broken updatedAt lose every conflict.
func parseStamp(s string) time.Time {
	t, err := time.Parse(models.TimestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
