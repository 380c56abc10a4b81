package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"subtrack/m/v2/app/api"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/db/mongo"
	"subtrack/m/v2/app/db/redis"
	"subtrack/m/v2/app/telegram"
	"subtrack/m/v2/app/util"
	"subtrack/m/v2/app/workers"
	"subtrack/m/v2/app/workers/clearcounters"
	"subtrack/m/v2/app/workers/notifier"
	"subtrack/m/v2/app/workers/onstart"
	"subtrack/m/v2/app/workers/status"
	"syscall"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

func main() {
	done := make(chan struct{}, 1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	if os.Getenv("ENV") != "production" {
		_ = godotenv.Load()
	}
	env := util.Env("ENV", "dev")

	dataDogClient, err := statsd.New("datadog-agent.default.svc.cluster.local:8125", statsd.WithNamespace("subtrack."))
	if err != nil && env == "production" {
		log.Fatalf("error creating main DataDog client: %v", err)
	}

	devUserID, _ := strconv.ParseInt(util.Env("DEV_USER_ID", "0"), 10, 64)
	notifyHour, _ := strconv.Atoi(util.Env("NOTIFY_HOUR", "10"))
	config.CONFIG = &config.Config{
		BotUrl:        util.Env("BOT_URL", "https://t.me/subtrackbot"),
		WebAppUrl:     util.Env("WEBAPP_URL"),
		DataDogClient: dataDogClient,
		Environment:   env,
		DevUserID:     devUserID,
		NotifyHour:    notifyHour,
		NotifyPacing:  100 * time.Millisecond,
		Redis: config.Redis{
			Host:     util.Env("REDIS_HOST"),
			Port:     "6379",
			Password: util.Env("REDIS_PASSWORD"),
		},
		StatusWorkerInterval:   time.Minute,
		TelegramBotToken:       util.Env("TELEGRAM_BOT_TOKEN"),
		TelegramSystemBotToken: util.Env("TELEGRAM_SYSTEM_TOKEN", ""),
		TelegramSystemTo:       util.Env("TELEGRAM_SYSTEM_TO", "0"),
		MongoDBConnection:      util.Env("MONGO_DB_CONNECTION_STRING"),
		MongoDBName:            util.Env("MONGO_DB_NAME", "subtrack"),
	}

	err = dataDogClient.Count("main.start", 1, []string{"env:" + config.CONFIG.Environment}, 1)
	if err != nil {
		log.Errorf("error sending metric: %v", err)
	}
	if config.CONFIG.Environment == "production" {
		log.SetFormatter(&log.JSONFormatter{
			DisableTimestamp: true,
		})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
			DisableColors: false,
		})
		log.SetLevel(log.TraceLevel)
	}

	redis.RedisClient = redis.NewClient(config.CONFIG.Redis)
	mongo.MongoDBClient = mongo.NewClient(config.CONFIG.MongoDBConnection)

	rtr := router.New()
	rtr.GET("/", func(ctx *fasthttp.RequestCtx) {
		ctx.Redirect(config.CONFIG.BotUrl, fasthttp.StatusFound)
	})
	rtr.GET("/miniapp", func(ctx *fasthttp.RequestCtx) {
		ctx.Redirect(config.CONFIG.WebAppUrl, fasthttp.StatusFound)
	})
	api.RegisterRoutes(rtr)

	// create and setup main telegram bot
	telegramBot, err := telegram.NewBot(rtr, config.CONFIG)
	if err != nil {
		log.Fatalf("ERROR creating bot: %v", err)
	}

	// create system bot for alerts, etc
	var systemBot *telegram.Bot
	if env == "production" {
		systemBot, err = telegram.NewSystemBot(rtr, config.CONFIG)
		if err != nil {
			log.Fatalf("ERROR creating system bot: %v", err)
		}
	} else {
		systemBot = telegram.NewStubSystemBot(config.CONFIG)
	}

	// run onstart worker once
	onstart.Run(config.CONFIG)

	// create status worker
	status.WORKER = workers.NewWorker(systemBot.Bot, config.CONFIG, config.CONFIG.StatusWorkerInterval, status.Run)
	go status.WORKER.Start()

	// create notification worker, fires once a day at the configured hour
	notifier.WORKER = workers.NewDailyWorker(systemBot.Bot, config.CONFIG, time.Minute*10, config.CONFIG.NotifyHour, notifier.Run)
	go notifier.WORKER.Start()

	// create counters clearing worker
	clearcounters.WORKER = workers.NewMonthlyWorker(systemBot.Bot, config.CONFIG, time.Hour*23, clearcounters.Run)
	go clearcounters.WORKER.Start()

	go TearDown(sigs, done, telegramBot, systemBot, status.WORKER, notifier.WORKER, clearcounters.WORKER)

	go func() {
		err := telegramBot.StartWebhook(util.Env("BACKEND_LISTEN_ADDRESS", ":8080"))
		util.Assert(err == nil, "StartWebhook:", err)
	}()

	chatId, _ := strconv.ParseInt(config.CONFIG.TelegramSystemTo, 10, 64)
	successfulStartMessage := fmt.Sprintf("🤖 %s started successfully 🚀 inside %s", config.CONFIG.BotName, util.Env("POD_NAME", "unknown"))
	_, err = systemBot.SendMessage(tu.Message(tu.ID(chatId), successfulStartMessage))
	if err != nil {
		log.Errorf("Failed to send start message to systemBot: %s", err)
	}
	log.Info(successfulStartMessage)

	<-done
	log.Info("Done")
}

func TearDown(sigs chan os.Signal, done chan struct{}, telegramBot *telegram.Bot, systemBot *telegram.Bot, stoppable ...*workers.Worker) {
	<-sigs
	exitMessage := fmt.Sprintf("🤖 %s bids farewell ❌ inside %s", config.CONFIG.BotName, util.Env("POD_NAME", "unknown"))
	log.Info(exitMessage)
	chatId, _ := strconv.ParseInt(config.CONFIG.TelegramSystemTo, 10, 64)
	systemBot.SendMessage(tu.Message(tu.ID(chatId), exitMessage))
	for _, worker := range stoppable {
		worker.StopWorker()
	}
	telegramBot.BotHandler.Stop()
	err := telegramBot.StopWebhook()
	if err != nil {
		log.Errorf("TearDown: StopWebhook for bot: %v", err)
	}
	if !systemBot.Dummy && systemBot.BotHandler != nil {
		systemBot.BotHandler.Stop()
	}

	err = mongo.MongoDBClient.Disconnect(context.Background())
	if err != nil {
		log.Errorf("TearDown: Disconnecting from MongoDB: %v", err)
	}
	done <- struct{}{}
}
