package api

import (
	"context"
	"encoding/json"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/db/mongo"
	"subtrack/m/v2/app/db/redis"
	"subtrack/m/v2/app/models"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func init() {
	testClient, err := statsd.New("127.0.0.1:8125", statsd.WithNamespace("tests."))
	if err != nil {
		log.Fatalf("error creating test DataDog client: %v", err)
	}
	config.CONFIG = &config.Config{
		DataDogClient: testClient,
		Environment:   "production",
	}
}

func resetStores(subs ...models.Subscription) {
	mongo.MongoDBClient = mongo.NewMockMongoDBClient(subs...)
	redis.RedisClient = redis.NewMockRedisClient()
}

func newRequestCtx(method string, uri string, body string, ownerID string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	if ownerID != "" {
		ctx.Request.Header.Set(OwnerIDHeader, ownerID)
	}
	return ctx
}

func decodeBody(t *testing.T, ctx *fasthttp.RequestCtx, v interface{}) {
	t.Helper()
	err := json.Unmarshal(ctx.Response.Body(), v)
	assert.NoError(t, err)
}

func testSubscription(id string, ownerID int64) models.Subscription {
	return models.Subscription{
		ID:           id,
		OwnerID:      ownerID,
		Name:         "Netflix",
		Amount:       649,
		Currency:     models.RUB,
		PeriodMonths: 1,
		BillingDay:   15,
		StartDate:    "2026-01-15",
		CreatedAt:    "2026-01-15T10:00:00Z",
		UpdatedAt:    "2026-01-15T10:00:00Z",
	}
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	resetStores()
	ctx := newRequestCtx(fasthttp.MethodGet, "/api/subscriptions", "", "")

	withOwner(handleListSubscriptions)(ctx)

	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestBannedOwnerIsForbidden(t *testing.T) {
	resetStores()
	redis.RedisClient.Set(context.Background(), "123:banned", "true", 0)
	ctx := newRequestCtx(fasthttp.MethodGet, "/api/subscriptions", "", "123")

	withOwner(handleListSubscriptions)(ctx)

	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
}

func TestAuthInitReturnsUserAndSubscriptions(t *testing.T) {
	resetStores(testSubscription("sub-1", 123))
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/auth/init", `{"firstName":"Ann","languageCode":"ru"}`, "123")

	withOwner(handleAuthInit)(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var body struct {
		User          models.User           `json:"user"`
		Subscriptions []models.Subscription `json:"subscriptions"`
	}
	decodeBody(t, ctx, &body)
	assert.EqualValues(t, 123, body.User.ID)
	assert.Equal(t, "Ann", body.User.FirstName)
	assert.Equal(t, "ru", body.User.LanguageCode)
	assert.NotEmpty(t, body.User.LastActiveAt)
	assert.Len(t, body.Subscriptions, 1)
}

func TestCreateSubscriptionAppliesDefaults(t *testing.T) {
	resetStores()
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/subscriptions", `{"name":"yandex plus","amount":299,"billingDay":5,"startDate":"2026-08-05"}`, "123")

	withOwner(handleCreateSubscription)(ctx)

	assert.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
	var created models.Subscription
	decodeBody(t, ctx, &created)
	assert.NotEmpty(t, created.ID)
	assert.EqualValues(t, 123, created.OwnerID)
	assert.Equal(t, models.RUB, created.Currency)
	assert.Equal(t, 1, created.PeriodMonths)
	assert.Equal(t, "Y", created.Icon)
	assert.Equal(t, "#007AFF", created.Color)
	assert.NotEmpty(t, created.CreatedAt)
}

func TestCreateSubscriptionRejectsBadInput(t *testing.T) {
	resetStores()
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"amount":299,"billingDay":5,"startDate":"2026-08-05"}`},
		{"negative amount", `{"name":"x","amount":-1,"billingDay":5,"startDate":"2026-08-05"}`},
		{"billing day out of range", `{"name":"x","amount":1,"billingDay":32,"startDate":"2026-08-05"}`},
		{"bad start date", `{"name":"x","amount":1,"billingDay":5,"startDate":"05.08.2026"}`},
		{"unknown currency", `{"name":"x","amount":1,"billingDay":5,"startDate":"2026-08-05","currency":"XXX"}`},
		{"broken json", `{"name":`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx := newRequestCtx(fasthttp.MethodPost, "/api/subscriptions", test.body, "123")
			withOwner(handleCreateSubscription)(ctx)
			assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

			var body map[string]string
			decodeBody(t, ctx, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetSubscriptionHidesForeignRecords(t *testing.T) {
	resetStores(testSubscription("sub-1", 999))
	ctx := newRequestCtx(fasthttp.MethodGet, "/api/subscriptions/sub-1", "", "123")
	ctx.SetUserValue("id", "sub-1")

	withOwner(handleGetSubscription)(ctx)

	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestUpdateSubscriptionAppliesPatch(t *testing.T) {
	resetStores(testSubscription("sub-1", 123))
	ctx := newRequestCtx(fasthttp.MethodPut, "/api/subscriptions/sub-1", `{"amount":799,"isTrial":true}`, "123")
	ctx.SetUserValue("id", "sub-1")

	withOwner(handleUpdateSubscription)(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var updated models.Subscription
	decodeBody(t, ctx, &updated)
	assert.Equal(t, float64(799), updated.Amount)
	assert.True(t, updated.IsTrial)
	// untouched fields survive
	assert.Equal(t, "Netflix", updated.Name)
	assert.Equal(t, 15, updated.BillingDay)
}

func TestDeleteSubscription(t *testing.T) {
	resetStores(testSubscription("sub-1", 123))
	ctx := newRequestCtx(fasthttp.MethodDelete, "/api/subscriptions/sub-1", "", "123")
	ctx.SetUserValue("id", "sub-1")

	withOwner(handleDeleteSubscription)(ctx)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())

	ctx = newRequestCtx(fasthttp.MethodDelete, "/api/subscriptions/sub-1", "", "123")
	ctx.SetUserValue("id", "sub-1")
	withOwner(handleDeleteSubscription)(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestMarkPaidRollsTheAnchorForward(t *testing.T) {
	resetStores(testSubscription("sub-1", 123))
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/subscriptions/sub-1/paid", `{"paidDate":"2026-08-15"}`, "123")
	ctx.SetUserValue("id", "sub-1")

	withOwner(handleMarkPaid)(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var paid models.Subscription
	decodeBody(t, ctx, &paid)
	assert.Equal(t, "2026-08-15", paid.StartDate)
	assert.False(t, paid.IsTrial)
	assert.Equal(t, 15, paid.BillingDay)
}

func TestMarkPaidRejectsBadDate(t *testing.T) {
	resetStores(testSubscription("sub-1", 123))
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/subscriptions/sub-1/paid", `{"paidDate":"not-a-date"}`, "123")
	ctx.SetUserValue("id", "sub-1")

	withOwner(handleMarkPaid)(ctx)

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestSyncRequiresAnArray(t *testing.T) {
	resetStores()
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/sync", `{"subscriptions":null}`, "123")

	withOwner(handleSync)(ctx)

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestSyncMergesClientSnapshot(t *testing.T) {
	server := testSubscription("sub-1", 123)
	resetStores(server)

	// client renamed sub-1 with a fresher stamp and created sub-2 offline
	body := `{"subscriptions":[
		{"id":"sub-1","name":"Netflix Premium","amount":649,"currency":"RUB","periodMonths":1,"billingDay":15,"startDate":"2026-01-15","createdAt":"2026-01-15T10:00:00Z","updatedAt":"2026-02-01T10:00:00Z"},
		{"id":"","name":"Spotify","amount":5,"currency":"USD","periodMonths":1,"billingDay":1,"startDate":"2026-02-01","updatedAt":"2026-02-01T10:00:00Z"}
	]}`
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/sync", body, "123")

	withOwner(handleSync)(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var response struct {
		Subscriptions []models.Subscription `json:"subscriptions"`
		Count         int                   `json:"count"`
	}
	decodeBody(t, ctx, &response)
	assert.Equal(t, 2, response.Count)

	names := map[string]bool{}
	for _, sub := range response.Subscriptions {
		names[sub.Name] = true
		assert.EqualValues(t, 123, sub.OwnerID)
		assert.NotEmpty(t, sub.ID)
	}
	assert.True(t, names["Netflix Premium"])
	assert.True(t, names["Spotify"])
}

func TestHealth(t *testing.T) {
	resetStores()
	ctx := newRequestCtx(fasthttp.MethodGet, "/health", "", "")

	handleHealth(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var body struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	decodeBody(t, ctx, &body)
	assert.Equal(t, "ok", body.Status)
	_, err := time.Parse(models.TimestampLayout, body.Timestamp)
	assert.NoError(t, err)
}
