package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"subtrack/m/v2/app/models"
)

func mergeSub(id string, owner int64, name, updatedAt string) models.Subscription {
	return models.Subscription{
		ID:           id,
		OwnerID:      owner,
		Name:         name,
		Amount:       100,
		Currency:     models.RUB,
		PeriodMonths: 1,
		BillingDay:   10,
		StartDate:    "2024-01-10",
		CreatedAt:    "2024-01-10T00:00:00Z",
		UpdatedAt:    updatedAt,
	}
}

func TestMergeSubscriptionsStaleIncomingLoses(t *testing.T) {
	existing := []models.Subscription{mergeSub("a", 1, "server", "2024-03-02T00:00:00Z")}
	incoming := []models.Subscription{mergeSub("a", 1, "client", "2024-03-01T00:00:00Z")}

	merged := MergeSubscriptions(1, existing, incoming, time.Now().UTC())

	assert.Len(t, merged, 1)
	assert.Equal(t, "server", merged[0].Name)
	assert.Equal(t, "2024-03-02T00:00:00Z", merged[0].UpdatedAt)
}

func TestMergeSubscriptionsFresherIncomingWins(t *testing.T) {
	existing := []models.Subscription{mergeSub("a", 1, "server", "2024-03-01T00:00:00Z")}
	incoming := []models.Subscription{mergeSub("a", 1, "client", "2024-03-02T00:00:00Z")}

	merged := MergeSubscriptions(1, existing, incoming, time.Now().UTC())

	assert.Len(t, merged, 1)
	assert.Equal(t, "client", merged[0].Name)
}

func TestMergeSubscriptionsTieFavorsIncoming(t *testing.T) {
	existing := []models.Subscription{mergeSub("a", 1, "server", "2024-03-01T00:00:00Z")}
	incoming := []models.Subscription{mergeSub("a", 1, "client", "2024-03-01T00:00:00Z")}

	merged := MergeSubscriptions(1, existing, incoming, time.Now().UTC())

	assert.Len(t, merged, 1)
	assert.Equal(t, "client", merged[0].Name)
	// createdAt is immutable even when the incoming copy wins
	assert.Equal(t, "2024-01-10T00:00:00Z", merged[0].CreatedAt)
}

func TestMergeSubscriptionsServerOnlySurvives(t *testing.T) {
	// records the bot created must not be erased by a stale client snapshot
	existing := []models.Subscription{
		mergeSub("a", 1, "from-bot", "2024-03-01T00:00:00Z"),
		mergeSub("b", 1, "shared", "2024-03-01T00:00:00Z"),
	}
	incoming := []models.Subscription{mergeSub("b", 1, "shared-edited", "2024-03-05T00:00:00Z")}

	merged := MergeSubscriptions(1, existing, incoming, time.Now().UTC())

	assert.Len(t, merged, 2)
	byID := map[string]models.Subscription{}
	for _, sub := range merged {
		byID[sub.ID] = sub
	}
	assert.Equal(t, "from-bot", byID["a"].Name)
	assert.Equal(t, "shared-edited", byID["b"].Name)
}

func TestMergeSubscriptionsInsertsNewRecords(t *testing.T) {
	now := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	incoming := []models.Subscription{
		{Name: "fresh", Amount: 50, Currency: models.USD, PeriodMonths: 1, BillingDay: 5, StartDate: "2024-03-05"},
	}

	merged := MergeSubscriptions(42, nil, incoming, now)

	assert.Len(t, merged, 1)
	assert.NotEmpty(t, merged[0].ID, "new records get an id assigned")
	assert.Equal(t, int64(42), merged[0].OwnerID, "owner is forced to the caller")
	assert.Equal(t, "2024-03-10T12:00:00Z", merged[0].CreatedAt)
	assert.Equal(t, "2024-03-10T12:00:00Z", merged[0].UpdatedAt)
}

func TestMergeSubscriptionsBrokenStampLoses(t *testing.T) {
	existing := []models.Subscription{mergeSub("a", 1, "server", "2024-03-01T00:00:00Z")}
	in := mergeSub("a", 1, "client", "not-a-timestamp")
	merged := MergeSubscriptions(1, existing, []models.Subscription{in}, time.Now().UTC())

	assert.Len(t, merged, 1)
	assert.Equal(t, "server", merged[0].Name)
}
