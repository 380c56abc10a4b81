package lib

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"subtrack/m/v2/app/db/mongo"
	"subtrack/m/v2/app/db/redis"
	"subtrack/m/v2/app/models"
)

var (
	TIMEOUT       = 30 * time.Second
	ErrUserBanned = fmt.Errorf("user is banned")
)

type ClientName string

const (
	TelegramClientName ClientName = "telegram"
	WebAppClientName   ClientName = "webapp"
)

// UserNotifiedCountKey tracks reminders delivered to a user within the
// current month, reset by the clearcounters worker.
func UserNotifiedCountKey(userID string) string {
	return userID + ":notified_count"
}

// IsOwnerBanned checks the redis ban list by numeric owner id.
func IsOwnerBanned(ownerID int64) bool {
	return redis.IsUserBanned(fmt.Sprintf("%d", ownerID))
}

// RequestContext builds a storage context carrying the caller identity.
func RequestContext(ownerID int64, client ClientName, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := context.WithValue(context.Background(), models.UserContext{}, fmt.Sprintf("%d", ownerID))
	ctx = context.WithValue(ctx, models.ClientContext{}, string(client))
	return context.WithTimeout(ctx, timeout)
}

// SetupUserAndContext rejects banned users, builds the request context and
// refreshes the user record. Every bot and API entry point goes through
// here so lastActiveAt stays honest.
func SetupUserAndContext(user models.User, client ClientName, channelID string) (saved *models.User, currentContext context.Context, cancelContext context.CancelFunc, err error) {
	userID := fmt.Sprintf("%d", user.ID)
	if redis.IsUserBanned(userID) {
		return nil, nil, nil, ErrUserBanned
	}

	currentContext = context.WithValue(context.Background(), models.UserContext{}, userID)
	currentContext = context.WithValue(currentContext, models.ClientContext{}, string(client))
	currentContext = context.WithValue(currentContext, models.ChannelContext{}, channelID)
	currentContext, cancelContext = context.WithTimeout(currentContext, TIMEOUT)

	saved, err = mongo.MongoDBClient.UpsertUser(currentContext, user)
	if err != nil {
		log.Errorf("SetupUserAndContext: failed to upsert user %d: %v", user.ID, err)
		cancelContext()
		return nil, nil, nil, err
	}
	if saved.LanguageCode != "" {
		redis.SaveChatLanguage(userID, saved.LanguageCode)
	}
	return saved, currentContext, cancelContext, nil
}
