package status

import (
	"context"
	"subtrack/m/v2/app/db/mongo"
	"subtrack/m/v2/app/db/redis"
	"time"

	"github.com/sirupsen/logrus"
)

type SystemStatus struct {
	MongoDB *Status     `json:"mongodb"`
	Redis   *Status     `json:"redis"`
	Time    time.Time   `json:"time"`
	Usage   SystemUsage `json:"usage"`
}

type SystemUsage struct {
	TotalUsers         int64 `json:"total_users"`
	TotalSubscriptions int64 `json:"total_subscriptions"`
}

// Status
type Status struct {
	Available bool `json:"available"`
}

// SystemStatusHandler is a handler for system status
type SystemStatusHandler struct {
	MongoDB mongo.MongoClient
	Redis   redis.Client
}

// New creates a new instance of SystemStatusHandler
func New(mongoDB mongo.MongoClient, redis redis.Client) *SystemStatusHandler {
	return &SystemStatusHandler{
		MongoDB: mongoDB,
		Redis:   redis,
	}
}

// GetSystemStatus gets a status of the system
func (h *SystemStatusHandler) GetSystemStatus() SystemStatus {
	mongoAvailable := false
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPing()
	err := h.MongoDB.Ping(ctxPing, nil)
	if err != nil {
		logrus.WithError(err).Warn("GetSystemStatus: failed to ping MongoDB")
	} else {
		mongoAvailable = true
	}
	status := SystemStatus{
		MongoDB: &Status{
			Available: mongoAvailable,
		},
		Redis: &Status{
			Available: h.Redis != nil && h.Redis.Ping(context.Background()).Err() == nil,
		},
		Usage: SystemUsage{},
		Time:  time.Now(),
	}
	if status.MongoDB.Available {
		users, _ := h.MongoDB.GetUsersCount(context.Background())
		status.Usage.TotalUsers = users

		subscriptions, _ := h.MongoDB.GetSubscriptionsCount(context.Background())
		status.Usage.TotalSubscriptions = subscriptions
	}
	return status
}
