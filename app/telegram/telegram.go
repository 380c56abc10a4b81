// main package to control telegram bot
package telegram

import (
	"fmt"
	"strings"
	"subtrack/m/v2/app/billing"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/db/mongo"
	"subtrack/m/v2/app/db/redis"
	"subtrack/m/v2/app/lib"
	"subtrack/m/v2/app/models"
	"subtrack/m/v2/app/util"
	"time"

	"github.com/fasthttp/router"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

type Bot struct {
	*telego.Bot
	*th.BotHandler
	Name  string
	Dummy bool
	telego.ChatID
}

var AllCommandHandlers CommandHandlers = CommandHandlers{}
var BOT *Bot

func NewBot(rtr *router.Router, cfg *config.Config) (*Bot, error) {
	bot, err := telego.NewBot(cfg.TelegramBotToken, telego.WithHealthCheck(), util.GetBotLoggerOption(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	botInfo, err := bot.GetMe()
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	} else {
		log.Infof("Bot info: %+v", botInfo)
		cfg.BotName = botInfo.Username
	}

	setupCommandHandlers()
	updates, err := signBotForUpdates(bot, rtr)
	if err != nil {
		return nil, fmt.Errorf("failed to sign bot for updates: %w", err)
	}
	bh, err := th.NewBotHandler(bot, updates, th.WithStopTimeout(time.Second*10))
	if err != nil {
		return nil, fmt.Errorf("failed to setup bot handler: %w", err)
	}
	bh.HandleMessage(handleMessage)
	bh.HandleCallbackQuery(handleCallbackQuery)
	go bh.Start()

	BOT = &Bot{
		Bot:        bot,
		BotHandler: bh,
		Name:       cfg.BotName,
	}

	return BOT, nil
}

func signBotForUpdates(bot *telego.Bot, rtr *router.Router) (<-chan telego.Update, error) {
	updates, err := bot.UpdatesViaWebhook(
		"/bot"+bot.Token(),
		telego.WithWebhookSet(&telego.SetWebhookParams{
			URL: util.Env("BACKEND_BASE_URL") + "/bot" + bot.Token(),
			AllowedUpdates: []string{
				"message",
				"callback_query",
			},
		}),
		telego.WithWebhookServer(telego.FastHTTPWebhookServer{
			Logger: log.StandardLogger(),
			Server: &fasthttp.Server{},
			Router: rtr,
		}),
	)
	return updates, err
}

func handleMessage(bot *telego.Bot, message telego.Message) {
	chatID := util.GetChatID(&message)
	chatIDString := util.GetChatIDString(&message)
	isPrivate := message.Chat.Type == "private"

	// subscriptions are personal, the bot only talks in private chats
	// unless explicitly @mentioned
	if !isPrivate && !strings.Contains(message.Text, "@"+BOT.Name) {
		log.Infof("Ignoring public message w/o @mention in channel: %s", chatIDString)
		return
	}

	user := models.User{ID: message.Chat.ID}
	if message.From != nil {
		user = models.User{
			ID:           message.From.ID,
			FirstName:    message.From.FirstName,
			LastName:     message.From.LastName,
			Username:     message.From.Username,
			LanguageCode: message.From.LanguageCode,
		}
	}
	saved, ctx, cancelContext, err := lib.SetupUserAndContext(user, lib.TelegramClientName, chatIDString)
	if err != nil {
		if err == lib.ErrUserBanned {
			log.Infof("User %s is banned", chatIDString)
			return
		}

		log.Errorf("Error setting up user and context: %v", err)
		return
	}
	defer cancelContext()

	// process commands
	if message.Text == string(EmptyCommand) || strings.HasPrefix(message.Text, "/") {
		AllCommandHandlers.handleCommand(ctx, BOT, &message)
		return
	}

	// anything else gets pointed at the Mini App, the bot is not a chat bot
	config.CONFIG.DataDogClient.Incr("telegram.text_message_received", []string{"channel_type:" + message.Chat.Type}, 1)
	language := saved.LanguageCode
	if language == "" {
		language = redis.GetChatLanguage(chatIDString)
	}
	_, err = bot.SendMessage(tu.Message(chatID, OpenAppText(language)).WithReplyMarkup(WebAppKeyboard(language)))
	if err != nil {
		log.Errorf("Failed to send open-app hint in chat %s: %v", chatIDString, err)
	}
}

func handleCallbackQuery(bot *telego.Bot, callbackQuery telego.CallbackQuery) {
	userId := callbackQuery.From.ID
	chat := callbackQuery.Message.GetChat()
	log.Infof("Received callback query: %s, for user: %d in chat %d", callbackQuery.Data, userId, chat.ID)
	config.CONFIG.DataDogClient.Incr("telegram.callback_query", []string{"channel_type:" + chat.Type}, 1)

	data := callbackQuery.Data
	switch {
	case strings.HasPrefix(data, "paid_today:"):
		handlePaidCallbackQuery(bot, callbackQuery, strings.TrimPrefix(data, "paid_today:"), 0)
	case strings.HasPrefix(data, "paid_yesterday:"):
		handlePaidCallbackQuery(bot, callbackQuery, strings.TrimPrefix(data, "paid_yesterday:"), -1)
	case strings.HasPrefix(data, "open:"):
		handleOpenCallbackQuery(bot, callbackQuery, strings.TrimPrefix(data, "open:"))
	default:
		log.Errorf("Unknown callback query: %s", data)
	}
}

// handlePaidCallbackQuery acknowledges a payment from a reminder button.
// dayOffset is 0 for "paid today" and -1 for "paid yesterday".
func handlePaidCallbackQuery(bot *telego.Bot, callbackQuery telego.CallbackQuery, subscriptionID string, dayOffset int) {
	ownerID := callbackQuery.From.ID
	language := redis.GetChatLanguage(fmt.Sprint(ownerID))
	if lib.IsOwnerBanned(ownerID) {
		log.Infof("Ignoring callback query from banned user %d", ownerID)
		return
	}

	ctx, cancel := lib.RequestContext(ownerID, lib.TelegramClientName, lib.TIMEOUT)
	defer cancel()

	paidOn := billing.DateOnly(time.Now().UTC().AddDate(0, 0, dayOffset))
	paid, err := mongo.MongoDBClient.RecordPayment(ctx, ownerID, subscriptionID, paidOn)
	if err != nil {
		log.Errorf("Failed to record payment for user %d, subscription %s: %v", ownerID, subscriptionID, err)
		answerToast(bot, callbackQuery.ID, PaymentFailedToast(language))
		return
	}

	nextDate := billing.NextBillingDate(*paid, billing.DateOnly(time.Now().UTC()))
	confirmation := PaymentConfirmationText(language, *paid, nextDate)

	chat := callbackQuery.Message.GetChat()
	_, err = bot.EditMessageText(&telego.EditMessageTextParams{
		ChatID:    tu.ID(chat.ID),
		MessageID: callbackQuery.Message.GetMessageID(),
		Text:      confirmation,
	})
	if err != nil {
		log.Errorf("Failed to edit reminder message for user %d: %v", ownerID, err)
	}
	answerToast(bot, callbackQuery.ID, PaymentRecordedToast(language))
	config.CONFIG.DataDogClient.Incr("telegram.payment_recorded", []string{"offset:" + fmt.Sprint(dayOffset)}, 1)
}

// handleOpenCallbackQuery deep-links into the Mini App for the "pick a
// date" path and anything the buttons can't express.
func handleOpenCallbackQuery(bot *telego.Bot, callbackQuery telego.CallbackQuery, subscriptionID string) {
	ownerID := callbackQuery.From.ID
	language := redis.GetChatLanguage(fmt.Sprint(ownerID))
	if lib.IsOwnerBanned(ownerID) {
		log.Infof("Ignoring callback query from banned user %d", ownerID)
		return
	}

	chat := callbackQuery.Message.GetChat()
	_, err := bot.SendMessage(
		tu.Message(tu.ID(chat.ID), OpenAppText(language)).WithReplyMarkup(
			&telego.InlineKeyboardMarkup{
				InlineKeyboard: [][]telego.InlineKeyboardButton{
					{
						telego.InlineKeyboardButton{
							Text: OpenAppButtonText(language),
							WebApp: &telego.WebAppInfo{
								URL: config.CONFIG.WebAppUrl + "?subscription=" + subscriptionID,
							},
						},
					},
				},
			}))
	if err != nil {
		log.Errorf("Failed to send Mini App link to user %d: %v", ownerID, err)
	}
	answerToast(bot, callbackQuery.ID, "")
}

func answerToast(bot *telego.Bot, callbackQueryID string, text string) {
	err := bot.AnswerCallbackQuery(&telego.AnswerCallbackQueryParams{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	})
	if err != nil {
		log.Errorf("Failed to answer callback query: %v", err)
	}
}

func sendTypingAction(bot *telego.Bot, chatID telego.ChatID) {
	err := bot.SendChatAction(&telego.SendChatActionParams{ChatID: chatID, Action: telego.ChatActionTyping})
	if err != nil {
		log.Errorf("Failed to send chat action: %v", err)
	}
}
