// Run every month to reset the per-user notification delivery counters
package clearcounters

import (
	"context"
	"strings"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/db/redis"
	"subtrack/m/v2/app/lib"
	"subtrack/m/v2/app/workers"

	log "github.com/sirupsen/logrus"
)

var WORKER *workers.Worker

func Run() {
	clearBySuffix(lib.UserNotifiedCountKey(""))
	log.Info("finished counters clearing")
}

func clearBySuffix(suffix string) {
	log.Infof("clearing *%s..", suffix)
	keys := redis.RedisClient.Keys(context.Background(), "*"+suffix)

	matched := []string{}
	for _, key := range keys.Val() {
		if strings.HasSuffix(key, suffix) {
			matched = append(matched, key)
		}
	}
	config.CONFIG.DataDogClient.Gauge("clear_counters_worker.keys", float64(len(matched)), []string{"suffix:" + suffix}, 1)
	log.Infof("clearing *%s, keys count: %d", suffix, len(matched))

	if len(matched) == 0 {
		log.Infof("no keys to clear for *%s", suffix)
		return
	}
	cmd := redis.RedisClient.Del(context.Background(), matched...)
	if cmd.Err() != nil {
		log.Errorf("failed to clear *%s: %s", suffix, cmd.Err())
		return
	}
	count, _ := cmd.Result()
	log.Infof("cleared %d keys for *%s", count, suffix)
}
