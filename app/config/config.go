package config

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

var CONFIG *Config

type Config struct {
	BotName                string
	BotUrl                 string
	WebAppUrl              string
	DataDogClient          *statsd.Client
	Environment            string
	MongoDBName            string
	MongoDBConnection      string
	Redis                  Redis
	TelegramBotToken       string
	TelegramSystemBotToken string
	TelegramSystemTo       string
	DevUserID              int64
	NotifyHour             int
	NotifyPacing           time.Duration
	StatusWorkerInterval   time.Duration
}

type Redis struct {
	Host     string
	Port     string
	Password string
}
