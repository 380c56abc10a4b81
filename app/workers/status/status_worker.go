// Run regularly to check status of the system and persist it to the redis
package status

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/db/mongo"
	"subtrack/m/v2/app/db/redis"
	"subtrack/m/v2/app/status"
	"subtrack/m/v2/app/workers"
)

var WORKER *workers.Worker

func Run() {
	systemStatus, err := redis.WrapInCache(redis.RedisClient, "system-status", WORKER.Interval*10, FetchStatus)()
	if err != nil {
		log.Errorf("failed to fetch system status: %s", err)
		return
	}
	log.Debugf("system status: %s", systemStatus)
}

func FetchStatus() (string, error) {
	w := WORKER
	systemStatus := status.New(mongo.MongoDBClient, redis.RedisClient).GetSystemStatus()
	config.CONFIG.DataDogClient.Gauge("status_worker.mongo_db_available", boolToFloat64(systemStatus.MongoDB.Available), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.redis_available", boolToFloat64(systemStatus.Redis.Available), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_users", float64(systemStatus.Usage.TotalUsers), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_subscriptions", float64(systemStatus.Usage.TotalSubscriptions), nil, 1)
	if !systemStatus.MongoDB.Available {
		reportUnavailableStatus(w.TelegramSystemBot, w.SystemTelegramChatID, w.MainBotName, "MongoDB")
	}
	if !systemStatus.Redis.Available {
		reportUnavailableStatus(w.TelegramSystemBot, w.SystemTelegramChatID, w.MainBotName, "Redis")
	}
	statusBytes, _ := json.Marshal(systemStatus)
	return string(statusBytes), nil
}

func reportUnavailableStatus(bot *telego.Bot, chatID telego.ChatID, mainBotName string, systemName string) {
	if bot == nil {
		log.Error("Telegram System bot is not initialized")
		return
	}
	message := "🔥 " + mainBotName + ": " + systemName + " is down 🔥"
	log.Error(message)
	_, err := bot.SendMessage(tu.Message(chatID, message))
	if err != nil {
		log.Errorf("Failed to send message to telegram: %s", err)
	}
}

func boolToFloat64(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
