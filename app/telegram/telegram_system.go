package telegram

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/db/mongo"
	"subtrack/m/v2/app/db/redis"
	"subtrack/m/v2/app/models"
	"subtrack/m/v2/app/util"
	"time"

	"github.com/fasthttp/router"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

const (
	SYSTEMBanUserCommand            Command = "/banuser"
	SYSTEMUnbanUserCommand          Command = "/unbanuser"
	SYSTEMStatusCommand             Command = "/status"
	SYSTEMUserCommand               Command = "/user"
	SYSTEMUsersCountCommand         Command = "/userscount"
	SYSTEMSubscriptionsCountCommand Command = "/subscriptionscount"
	SYSTEMSendMessageToAUser        Command = "/sendmessagetoauser"
)

var SystemCommandHandlers CommandHandlers = CommandHandlers{}
var SystemBOT *Bot

func NewSystemBot(rtr *router.Router, cfg *config.Config) (*Bot, error) {
	if cfg.TelegramSystemBotToken == "" {
		return nil, fmt.Errorf("system bot token is empty")
	}
	newBot, err := telego.NewBot(cfg.TelegramSystemBotToken, util.GetBotLoggerOption(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create system bot: %w", err)
	}
	setupSystemCommandHandlers()
	updates, err := signBotForUpdates(newBot, rtr)
	if err != nil {
		return nil, fmt.Errorf("failed to sign system bot for updates: %w", err)
	}
	bh, err := th.NewBotHandler(newBot, updates, th.WithStopTimeout(time.Second*10))
	if err != nil {
		return nil, fmt.Errorf("failed to setup system bot handler: %w", err)
	}

	chatId, _ := strconv.ParseInt(cfg.TelegramSystemTo, 10, 64)
	SystemBOT = &Bot{
		Bot:        newBot,
		BotHandler: bh,
		ChatID:     tu.ID(chatId),
		Name:       "system",
	}

	bh.HandleMessage(handleSystemMessage)

	go bh.Start()

	return SystemBOT, nil
}

func NewStubSystemBot(cfg *config.Config) *Bot {
	chatId, _ := strconv.ParseInt(cfg.TelegramSystemTo, 10, 64)
	SystemBOT = &Bot{
		Dummy:  true,
		Bot:    newStubBot(cfg),
		ChatID: tu.ID(chatId),
	}
	return SystemBOT
}

// newStubBot creates new stub bot instance, that can be used for testing
func newStubBot(cfg *config.Config) *telego.Bot {
	stubBot, err := telego.NewBot(generateStubToken(), telego.WithHTTPClient(&http.Client{
		Transport: models.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"ok": true, "result": {}}`)),
			}, nil
		}),
	}), util.GetBotLoggerOption(cfg))
	if err != nil {
		log.Fatalf("Failed to create stub bot: %v", err)
	}
	return stubBot
}

// stub token that matches the pattern ^\d{9,10}:[\w-]{35}$
func generateStubToken() string {
	const digits = "0123456789"
	const alphaNum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"

	tokenBuilder := strings.Builder{}
	for i := 0; i < 9; i++ {
		tokenBuilder.WriteByte(digits[rand.Intn(len(digits))])
	}
	tokenBuilder.WriteString(":")
	for i := 0; i < 35; i++ {
		tokenBuilder.WriteByte(alphaNum[rand.Intn(len(alphaNum))])
	}
	return tokenBuilder.String()
}

func handleSystemMessage(bot *telego.Bot, message telego.Message) {
	if SystemBOT.ChatID != tu.ID(message.Chat.ID) {
		log.Errorf("System bot received message from chat %d, but expected from %d", message.Chat.ID, SystemBOT.ChatID.ID)
		return
	}

	sendTypingAction(bot, SystemBOT.ChatID)

	// process commands
	if message.Text == string(EmptyCommand) || strings.HasPrefix(message.Text, "/") {
		log.Infof("System bot received message: %+v", message) // audit
		SystemCommandHandlers.handleCommand(context.Background(), SystemBOT, &message)
		return
	}
}

func setupSystemCommandHandlers() {
	SystemCommandHandlers = CommandHandlers{
		newCommandHandler(EmptyCommand, func(ctx context.Context, bot *Bot, message *telego.Message) {
			bot.SendMessage(tu.Message(SystemBOT.ChatID, "No command provided."))
		}),
		newCommandHandler(SYSTEMStatusCommand, handleStatus),
		newCommandHandler(SYSTEMUserCommand, handleUser),
		newCommandHandler(SYSTEMUsersCountCommand, handleUsersCount),
		newCommandHandler(SYSTEMSubscriptionsCountCommand, handleSubscriptionsCount),
		newCommandHandler(SYSTEMBanUserCommand, handleBanUser),
		newCommandHandler(SYSTEMUnbanUserCommand, handleUnbanUser),
		newCommandHandler(SYSTEMSendMessageToAUser, handleSendMessageToAUser),
	}
}

func handleStatus(ctx context.Context, bot *Bot, message *telego.Message) {
	systemStatus := redis.RedisClient.Get(context.Background(), "system-status")
	bot.SendMessage(tu.Message(SystemBOT.ChatID, systemStatus.Val()))
}

func handleUser(ctx context.Context, bot *Bot, message *telego.Message) {
	commandArray := strings.Split(message.Text, " ")
	if len(commandArray) < 2 {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, "Please provide user id"))
		return
	}
	userId, err := strconv.ParseInt(commandArray[1], 10, 64)
	if err != nil {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, "Please provide a numeric user id"))
		return
	}
	subscriptions, err := mongo.MongoDBClient.ListSubscriptions(context.Background(), userId)
	if err != nil {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, fmt.Sprintf("Failed to list subscriptions: %s", err)))
		return
	}
	userString := fmt.Sprintf("User %d: %d subscriptions\n", userId, len(subscriptions))
	for _, sub := range subscriptions {
		userString += fmt.Sprintf("- %s %s day %d period %dm trial=%t\n", sub.Name, FormatAmount(sub.Amount, sub.Currency), sub.BillingDay, sub.PeriodMonths, sub.IsTrial)
	}
	userString += "\nRedis:\nlanguage - " + redis.GetChatLanguage(commandArray[1])

	bot.SendMessage(tu.Message(SystemBOT.ChatID, userString))
}

func handleUsersCount(ctx context.Context, bot *Bot, message *telego.Message) {
	users, err := mongo.MongoDBClient.GetUsersCount(context.Background())
	if err != nil {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, fmt.Sprintf("Failed to get users: %s", err)))
		return
	}
	bot.SendMessage(tu.Message(SystemBOT.ChatID, fmt.Sprintf("Users: %+v", users)))
}

func handleSubscriptionsCount(ctx context.Context, bot *Bot, message *telego.Message) {
	subscriptions, err := mongo.MongoDBClient.GetSubscriptionsCount(context.Background())
	if err != nil {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, fmt.Sprintf("Failed to get subscriptions: %s", err)))
		return
	}
	bot.SendMessage(tu.Message(SystemBOT.ChatID, fmt.Sprintf("Subscriptions: %+v", subscriptions)))
}

func handleBanUser(ctx context.Context, bot *Bot, message *telego.Message) {
	commandArray := strings.Split(message.Text, " ")
	if len(commandArray) < 2 {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, "Please provide user id"))
		return
	}
	userId := commandArray[1]
	err := redis.RedisClient.Set(ctx, userId+":banned", "true", 0).Err()
	if err != nil {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, fmt.Sprintf("Failed to ban user: %v", err)))
		return
	}
	bot.SendMessage(tu.Message(SystemBOT.ChatID, "User "+userId+" banned"))
}

func handleUnbanUser(ctx context.Context, bot *Bot, message *telego.Message) {
	commandArray := strings.Split(message.Text, " ")
	if len(commandArray) < 2 {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, "Please provide user id"))
		return
	}
	userId := commandArray[1]
	err := redis.RedisClient.Del(ctx, userId+":banned").Err()
	if err != nil {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, fmt.Sprintf("Failed to unban user: %v", err)))
		return
	}
	bot.SendMessage(tu.Message(SystemBOT.ChatID, "User "+userId+" unbanned"))
}

func handleSendMessageToAUser(ctx context.Context, bot *Bot, message *telego.Message) {
	commandUsage := fmt.Sprintf("Usage: %s <user_id> <message>", SYSTEMSendMessageToAUser)
	commandArray := strings.Split(message.Text, " ")
	if len(commandArray) < 3 {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, commandUsage))
		return
	}
	userId := commandArray[1]
	userIdInt, err := strconv.ParseInt(userId, 10, 64)
	if err != nil {
		bot.SendMessage(tu.Message(SystemBOT.ChatID, commandUsage))
		return
	}
	messageText := strings.Join(commandArray[2:], " ")

	_, err = BOT.SendMessage(tu.Message(tu.ID(userIdInt), messageText))
	if err != nil {
		log.Errorf("Failed to send message to user %s: %v", userId, err)
		bot.SendMessage(tu.Message(SystemBOT.ChatID, fmt.Sprintf("Failed to send message to user %s: %v", userId, err)))
		return
	}

	log.Infof("[SYSTEM] Message sent to user %s", userId)
	bot.SendMessage(tu.Message(SystemBOT.ChatID, fmt.Sprintf("Message sent to user %s", userId)))
}
