package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"subtrack/m/v2/app/billing"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/db/mongo"
	"subtrack/m/v2/app/db/redis"
	"subtrack/m/v2/app/models"
	"subtrack/m/v2/app/util"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

type Command string

const (
	StartCommand Command = "/start"
	AppCommand   Command = "/app"
	ListCommand  Command = "/list"
	EmptyCommand Command = ""

	// commands setting for BotFather
	Commands string = `
start - 🚀 what the bot does and how to begin
app - 📱 open the subscription tracker
list - 📋 upcoming payments at a glance
`
)

type CommandHandler struct {
	Command Command
	Handler func(context.Context, *Bot, *telego.Message)
}

type CommandHandlers []*CommandHandler

func setupCommandHandlers() {
	AllCommandHandlers = []*CommandHandler{
		newCommandHandler(EmptyCommand, emptyCommandHandler),
		newCommandHandler(StartCommand, startCommandHandler),
		newCommandHandler(AppCommand, appCommandHandler),
		newCommandHandler(ListCommand, listCommandHandler),
	}
}

func newCommandHandler(command Command, handler func(context.Context, *Bot, *telego.Message)) *CommandHandler {
	return &CommandHandler{
		Command: command,
		Handler: handler,
	}
}

func (c CommandHandlers) handleCommand(ctx context.Context, bot *Bot, message *telego.Message) {
	commandArray := strings.Split(message.Text, " ")
	commandString := strings.ReplaceAll(commandArray[0], "@"+bot.Name+"bot", "")
	commandString = strings.ReplaceAll(commandString, "@"+bot.Name, "")
	commandString = strings.ReplaceAll(commandString, "@"+config.CONFIG.BotName, "")
	command := Command(commandString)

	commandHandler := c.getCommandHandler(command)
	if commandHandler != nil {
		config.CONFIG.DataDogClient.Incr("command", []string{"command:" + string(command), "bot_name:" + bot.Name}, 1)
		commandHandler.Handler(ctx, bot, message)
	} else {
		config.CONFIG.DataDogClient.Incr("unknown_command", nil, 1)
		bot.SendMessage(tu.Message(util.GetChatID(message), "Unknown command \U0001f937").WithMessageThreadID(message.MessageThreadID))
	}
}

func (c CommandHandlers) getCommandHandler(command Command) *CommandHandler {
	for _, ch := range c {
		if ch.Command == command {
			return ch
		}
	}
	return nil
}

func startCommandHandler(ctx context.Context, bot *Bot, message *telego.Message) {
	chatIDString := util.GetChatIDString(message)
	log.Infof("Start command received from userID: %s", chatIDString)
	language := redis.GetChatLanguage(chatIDString)
	_, err := bot.SendMessage(
		tu.Message(util.GetChatID(message), WelcomeText(language)).
			WithMessageThreadID(message.MessageThreadID).
			WithReplyMarkup(WebAppKeyboard(language)))
	if err != nil {
		log.Errorf("Failed to send StartCommand message: %v", err)
	}
}

func appCommandHandler(ctx context.Context, bot *Bot, message *telego.Message) {
	language := redis.GetChatLanguage(util.GetChatIDString(message))
	_, err := bot.SendMessage(
		tu.Message(util.GetChatID(message), OpenAppText(language)).
			WithMessageThreadID(message.MessageThreadID).
			WithReplyMarkup(WebAppKeyboard(language)))
	if err != nil {
		log.Errorf("Failed to send AppCommand message: %v", err)
	}
}

// listCommandHandler is the text fallback for people who don't want to
// open the Mini App: nearest payments first, trials marked.
func listCommandHandler(ctx context.Context, bot *Bot, message *telego.Message) {
	chatID := util.GetChatID(message)
	chatIDString := util.GetChatIDString(message)
	language := redis.GetChatLanguage(chatIDString)
	sendTypingAction(bot.Bot, chatID)

	ownerID := message.Chat.ID
	if message.From != nil {
		ownerID = message.From.ID
	}
	subscriptions, err := mongo.MongoDBClient.ListSubscriptions(ctx, ownerID)
	if err != nil {
		log.Errorf("Failed to list subscriptions for %s: %v", chatIDString, err)
		return
	}
	if len(subscriptions) == 0 {
		empty := "No subscriptions yet, add the first one in the app 👇"
		if isRussian(language) {
			empty = "Подписок пока нет, добавьте первую в приложении 👇"
		}
		bot.SendMessage(tu.Message(chatID, empty).WithMessageThreadID(message.MessageThreadID).WithReplyMarkup(WebAppKeyboard(language)))
		return
	}

	now := billing.DateOnly(time.Now().UTC())
	sort.Slice(subscriptions, func(i, j int) bool {
		if subscriptions[i].IsTrial != subscriptions[j].IsTrial {
			return !subscriptions[i].IsTrial
		}
		return billing.DaysUntilBilling(subscriptions[i], now) < billing.DaysUntilBilling(subscriptions[j], now)
	})
	lines := make([]string, 0, len(subscriptions))
	for _, sub := range subscriptions {
		if sub.IsTrial {
			label := "trial"
			if isRussian(language) {
				label = "пробный период"
			}
			lines = append(lines, fmt.Sprintf("• %s — %s (%s)", sub.Name, FormatAmount(sub.Amount, sub.Currency), label))
			continue
		}
		next := billing.NextBillingDate(sub, now)
		lines = append(lines, fmt.Sprintf("• %s — %s, %s", sub.Name, FormatAmount(sub.Amount, sub.Currency), next.Format(models.DateLayout)))
	}
	_, err = bot.SendMessage(tu.Message(chatID, strings.Join(lines, "\n")).WithMessageThreadID(message.MessageThreadID))
	if err != nil {
		log.Errorf("Failed to send ListCommand message: %v", err)
	}
}

func emptyCommandHandler(ctx context.Context, bot *Bot, message *telego.Message) {
	language := redis.GetChatLanguage(util.GetChatIDString(message))
	_, err := bot.SendMessage(
		tu.Message(util.GetChatID(message), OpenAppText(language)).
			WithMessageThreadID(message.MessageThreadID).
			WithReplyMarkup(WebAppKeyboard(language)))
	if err != nil {
		log.Errorf("Failed to send EmptyCommand message: %v", err)
	}
}
