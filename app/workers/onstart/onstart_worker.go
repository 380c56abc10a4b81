// Run on start
package onstart

import (
	"context"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/db/mongo"

	log "github.com/sirupsen/logrus"
)

func Run(cfg *config.Config) {
	log.Infof("[onstart] environment: %s", cfg.Environment)

	ensureIndexes()
	reportTotals()
}

func ensureIndexes() {
	log.Info("[onstart] ensuring mongo indexes..")
	err := mongo.MongoDBClient.EnsureIndexes(context.Background())
	if err != nil {
		log.Errorf("[onstart] failed to ensure indexes: %s", err)
		return
	}
	log.Info("[onstart] finished ensuring mongo indexes")
}

func reportTotals() {
	users, err := mongo.MongoDBClient.GetUsersCount(context.Background())
	if err != nil {
		log.Errorf("[onstart] failed to count users: %s", err)
		return
	}
	subscriptions, err := mongo.MongoDBClient.GetSubscriptionsCount(context.Background())
	if err != nil {
		log.Errorf("[onstart] failed to count subscriptions: %s", err)
		return
	}
	log.Infof("[onstart] tracking %d subscriptions for %d users", subscriptions, users)
	config.CONFIG.DataDogClient.Gauge("onstart.total_users", float64(users), nil, 1)
	config.CONFIG.DataDogClient.Gauge("onstart.total_subscriptions", float64(subscriptions), nil, 1)
}
