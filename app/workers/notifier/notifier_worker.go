// Run daily to remind users about tomorrow's charges and missed payments
package notifier

import (
	"context"
	"fmt"
	"subtrack/m/v2/app/billing"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/db/mongo"
	"subtrack/m/v2/app/db/redis"
	"subtrack/m/v2/app/lib"
	"subtrack/m/v2/app/models"
	"subtrack/m/v2/app/telegram"
	"subtrack/m/v2/app/workers"
	"time"

	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

var WORKER *workers.Worker

// send functions are swappable so the run loop can be tested without a
// live bot
var SendReminder func(userID int64, language string, sub models.Subscription) error = sendReminder
var SendDueNotice func(userID int64, language string, item models.OverdueItem) error = sendDueNotice

func Run() {
	now := billing.DateOnly(time.Now().UTC())
	users, err := mongo.MongoDBClient.GetAllUsers(context.Background())
	if err != nil {
		log.Errorf("[notifier] failed to fetch users: %s", err)
		return
	}

	remindersSent := 0
	noticesSent := 0
	failedUsers := 0
	for _, user := range users {
		reminders, notices, err := notifyUser(user, now)
		remindersSent += reminders
		noticesSent += notices
		if err != nil {
			// one broken recipient must not starve the rest of the run
			failedUsers++
			log.Errorf("[notifier] failed to notify user %d: %s", user.ID, err)
		}
	}

	log.Infof("[notifier] finished run: %d users, %d reminders, %d due notices, %d failed users", len(users), remindersSent, noticesSent, failedUsers)
	config.CONFIG.DataDogClient.Gauge("notifier.users", float64(len(users)), nil, 1)
	config.CONFIG.DataDogClient.Gauge("notifier.reminders_sent", float64(remindersSent), nil, 1)
	config.CONFIG.DataDogClient.Gauge("notifier.due_notices_sent", float64(noticesSent), nil, 1)
	config.CONFIG.DataDogClient.Gauge("notifier.failed_users", float64(failedUsers), nil, 1)
}

// notifyUser partitions the user's subscriptions and sends the day-before
// reminders first, then due-today and overdue notices ordered by urgency.
func notifyUser(user models.User, now time.Time) (reminders int, notices int, err error) {
	if lib.IsOwnerBanned(user.ID) {
		return 0, 0, nil
	}

	ctx, cancel := lib.RequestContext(user.ID, lib.TelegramClientName, lib.TIMEOUT)
	defer cancel()

	subs, listErr := mongo.MongoDBClient.ListSubscriptions(ctx, user.ID)
	if listErr != nil {
		return 0, 0, listErr
	}

	language := user.LanguageCode
	if language == "" {
		language = redis.GetChatLanguage(fmt.Sprint(user.ID))
	}

	for _, sub := range billing.DueTomorrow(subs, now) {
		if sendErr := SendReminder(user.ID, language, sub); sendErr != nil {
			return reminders, notices, sendErr
		}
		reminders++
		countDelivered(user.ID)
		time.Sleep(config.CONFIG.NotifyPacing)
	}

	// due today first, then overdue by descending overdueDays
	for _, item := range billing.Overdue(subs, now) {
		if sendErr := SendDueNotice(user.ID, language, item); sendErr != nil {
			return reminders, notices, sendErr
		}
		notices++
		countDelivered(user.ID)
		time.Sleep(config.CONFIG.NotifyPacing)
	}
	return reminders, notices, nil
}

func countDelivered(userID int64) {
	cmd := redis.RedisClient.IncrBy(context.Background(), lib.UserNotifiedCountKey(fmt.Sprint(userID)), 1)
	if cmd.Err() != nil {
		log.Errorf("[notifier] failed to count delivery for user %d: %s", userID, cmd.Err())
	}
}

func sendReminder(userID int64, language string, sub models.Subscription) error {
	_, err := telegram.BOT.SendMessage(tu.Message(tu.ID(userID), telegram.ReminderText(language, sub)))
	return err
}

func sendDueNotice(userID int64, language string, item models.OverdueItem) error {
	_, err := telegram.BOT.SendMessage(
		tu.Message(tu.ID(userID), telegram.DueText(language, item.Subscription, item.OverdueDays)).
			WithReplyMarkup(telegram.PaymentKeyboard(language, item.Subscription.ID)))
	return err
}
