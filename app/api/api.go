// Package api serves the REST surface consumed by the Mini App frontend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fasthttp/router"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"subtrack/m/v2/app/billing"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/db/mongo"
	"subtrack/m/v2/app/db/redis"
	"subtrack/m/v2/app/lib"
	"subtrack/m/v2/app/models"
	"subtrack/m/v2/app/status"
)

const requestTimeout = 10 * time.Second

// RegisterRoutes mounts the API on the shared router.
func RegisterRoutes(rtr *router.Router) {
	rtr.POST("/api/auth/init", withOwner(handleAuthInit))
	rtr.GET("/api/subscriptions", withOwner(handleListSubscriptions))
	rtr.POST("/api/subscriptions", withOwner(handleCreateSubscription))
	rtr.GET("/api/subscriptions/{id}", withOwner(handleGetSubscription))
	rtr.PUT("/api/subscriptions/{id}", withOwner(handleUpdateSubscription))
	rtr.DELETE("/api/subscriptions/{id}", withOwner(handleDeleteSubscription))
	rtr.POST("/api/subscriptions/{id}/paid", withOwner(handleMarkPaid))
	rtr.POST("/api/sync", withOwner(handleSync))
	rtr.GET("/health", handleHealth)
}

type ownerHandler func(ctx *fasthttp.RequestCtx, reqCtx context.Context, ownerID int64)

// withOwner resolves the caller identity, rejects banned users and hands
// the handler a storage context scoped to the request.
func withOwner(handler ownerHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		config.CONFIG.DataDogClient.Incr("api.request", []string{"path:" + string(ctx.Path()), "method:" + string(ctx.Method())}, 1)

		ownerID, err := ResolveOwnerID(ctx)
		if err != nil {
			writeError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			return
		}
		if lib.IsOwnerBanned(ownerID) {
			writeError(ctx, fasthttp.StatusForbidden, "forbidden")
			return
		}

		reqCtx, cancel := lib.RequestContext(ownerID, lib.WebAppClientName, requestTimeout)
		defer cancel()
		handler(ctx, reqCtx, ownerID)
	}
}

func handleAuthInit(ctx *fasthttp.RequestCtx, reqCtx context.Context, ownerID int64) {
	var body struct {
		FirstName    string `json:"firstName"`
		LastName     string `json:"lastName"`
		Username     string `json:"username"`
		LanguageCode string `json:"languageCode"`
	}
	// the profile body is optional, identity comes from the header
	_ = json.Unmarshal(ctx.PostBody(), &body)

	user, err := mongo.MongoDBClient.UpsertUser(reqCtx, models.User{
		ID:           ownerID,
		FirstName:    body.FirstName,
		LastName:     body.LastName,
		Username:     body.Username,
		LanguageCode: body.LanguageCode,
	})
	if err != nil {
		internalError(ctx, "AuthInit", err)
		return
	}

	subscriptions, err := mongo.MongoDBClient.ListSubscriptions(reqCtx, ownerID)
	if err != nil {
		internalError(ctx, "AuthInit", err)
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"user":          user,
		"subscriptions": subscriptions,
	})
}

func handleListSubscriptions(ctx *fasthttp.RequestCtx, reqCtx context.Context, ownerID int64) {
	subscriptions, err := mongo.MongoDBClient.ListSubscriptions(reqCtx, ownerID)
	if err != nil {
		internalError(ctx, "ListSubscriptions", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, subscriptions)
}

func handleGetSubscription(ctx *fasthttp.RequestCtx, reqCtx context.Context, ownerID int64) {
	id := ctx.UserValue("id").(string)
	sub, err := mongo.MongoDBClient.GetSubscription(reqCtx, ownerID, id)
	if errors.Is(err, mongo.ErrNotFound) {
		writeError(ctx, fasthttp.StatusNotFound, "Subscription not found")
		return
	}
	if err != nil {
		internalError(ctx, "GetSubscription", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sub)
}

func handleCreateSubscription(ctx *fasthttp.RequestCtx, reqCtx context.Context, ownerID int64) {
	var req CreateSubscriptionRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
		return
	}

	sub, verr := req.Validate(ownerID)
	if verr != nil {
		writeError(ctx, fasthttp.StatusBadRequest, verr.Error())
		return
	}

	created, err := mongo.MongoDBClient.CreateSubscription(reqCtx, sub)
	if err != nil {
		internalError(ctx, "CreateSubscription", err)
		return
	}
	config.CONFIG.DataDogClient.Incr("api.subscription_created", []string{"currency:" + string(created.Currency)}, 1)
	writeJSON(ctx, fasthttp.StatusCreated, created)
}

func handleUpdateSubscription(ctx *fasthttp.RequestCtx, reqCtx context.Context, ownerID int64) {
	id := ctx.UserValue("id").(string)

	var req UpdateSubscriptionRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
		return
	}
	if verr := req.Validate(); verr != nil {
		writeError(ctx, fasthttp.StatusBadRequest, verr.Error())
		return
	}

	updated, err := mongo.MongoDBClient.UpdateSubscription(reqCtx, ownerID, id, req.Apply)
	if errors.Is(err, mongo.ErrNotFound) {
		writeError(ctx, fasthttp.StatusNotFound, "Subscription not found")
		return
	}
	if err != nil {
		internalError(ctx, "UpdateSubscription", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, updated)
}

func handleDeleteSubscription(ctx *fasthttp.RequestCtx, reqCtx context.Context, ownerID int64) {
	id := ctx.UserValue("id").(string)
	err := mongo.MongoDBClient.DeleteSubscription(reqCtx, ownerID, id)
	if errors.Is(err, mongo.ErrNotFound) {
		writeError(ctx, fasthttp.StatusNotFound, "Subscription not found")
		return
	}
	if err != nil {
		internalError(ctx, "DeleteSubscription", err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func handleMarkPaid(ctx *fasthttp.RequestCtx, reqCtx context.Context, ownerID int64) {
	id := ctx.UserValue("id").(string)

	var body struct {
		PaidDate string `json:"paidDate"`
	}
	_ = json.Unmarshal(ctx.PostBody(), &body)

	paidOn := time.Now().UTC()
	if body.PaidDate != "" {
		parsed, err := billing.ParseDate(body.PaidDate)
		if err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "paidDate must be YYYY-MM-DD")
			return
		}
		paidOn = parsed
	}

	paid, err := mongo.MongoDBClient.RecordPayment(reqCtx, ownerID, id, paidOn)
	if errors.Is(err, mongo.ErrNotFound) {
		writeError(ctx, fasthttp.StatusNotFound, "Subscription not found")
		return
	}
	if err != nil {
		internalError(ctx, "MarkPaid", err)
		return
	}
	config.CONFIG.DataDogClient.Incr("api.payment_recorded", nil, 1)
	writeJSON(ctx, fasthttp.StatusOK, paid)
}

func handleSync(ctx *fasthttp.RequestCtx, reqCtx context.Context, ownerID int64) {
	var body struct {
		Subscriptions []SyncEntry `json:"subscriptions"`
	}
	if err := json.Unmarshal(ctx.PostBody(), &body); err != nil || body.Subscriptions == nil {
		writeError(ctx, fasthttp.StatusBadRequest, "subscriptions must be an array")
		return
	}

	incoming := make([]models.Subscription, 0, len(body.Subscriptions))
	for _, entry := range body.Subscriptions {
		sub, verr := entry.Validate(ownerID)
		if verr != nil {
			writeError(ctx, fasthttp.StatusBadRequest, verr.Error())
			return
		}
		incoming = append(incoming, sub)
	}

	merged, err := mongo.MongoDBClient.MergeSync(reqCtx, ownerID, incoming)
	if err != nil {
		internalError(ctx, "Sync", err)
		return
	}
	config.CONFIG.DataDogClient.Incr("api.sync", nil, 1)
	writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"subscriptions": merged,
		"count":         len(merged),
	})
}

func handleHealth(ctx *fasthttp.RequestCtx) {
	snapshot := status.New(mongo.MongoDBClient, redis.RedisClient).GetSystemStatus()
	code := fasthttp.StatusOK
	state := "ok"
	if !snapshot.MongoDB.Available {
		code = fasthttp.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(ctx, code, map[string]interface{}{
		"status":    state,
		"timestamp": time.Now().UTC().Format(models.TimestampLayout),
	})
}

func writeJSON(ctx *fasthttp.RequestCtx, code int, v interface{}) {
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	payload, err := json.Marshal(v)
	if err != nil {
		log.Errorf("writeJSON: failed to marshal response: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":"Internal server error"}`)
		return
	}
	ctx.SetBody(payload)
}

func writeError(ctx *fasthttp.RequestCtx, code int, message string) {
	writeJSON(ctx, code, map[string]string{"error": message})
}

// internalError hides storage details from the caller; the request's
// effect is not considered committed.
func internalError(ctx *fasthttp.RequestCtx, op string, err error) {
	log.Errorf("%s: %v", op, err)
	config.CONFIG.DataDogClient.Incr("api.internal_error", []string{"op:" + op}, 1)
	writeError(ctx, fasthttp.StatusInternalServerError, "Internal server error")
}
