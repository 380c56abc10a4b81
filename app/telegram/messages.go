package telegram

import (
	"fmt"
	"strconv"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/models"
	"time"

	"github.com/mymmrac/telego"
)

// user-facing copy, localized to the two languages the audience actually
// speaks; anything else falls back to English
var currencySymbols = map[models.Currency]string{
	models.RUB: "₽",
	models.USD: "$",
	models.EUR: "€",
	models.UAH: "₴",
	models.BYN: "Br",
}

// FormatAmount renders "299 ₽" or "9.99 $", dropping trailing zeros.
func FormatAmount(amount float64, currency models.Currency) string {
	symbol, ok := currencySymbols[currency]
	if !ok {
		symbol = string(currency)
	}
	return strconv.FormatFloat(amount, 'f', -1, 64) + " " + symbol
}

func isRussian(language string) bool {
	return language == "ru"
}

func WelcomeText(language string) string {
	if isRussian(language) {
		return "Привет! Я помогу не забывать про платежи по подпискам 💸\n\nДобавляй подписки в приложении, а я напомню за день до списания и в день платежа. Открой приложение кнопкой ниже, чтобы начать."
	}
	return "Hi! I help you keep track of your subscription payments 💸\n\nAdd your subscriptions in the app and I'll remind you the day before each charge and on the billing day itself. Tap the button below to get started."
}

func OpenAppText(language string) string {
	if isRussian(language) {
		return "Все подписки — в приложении 👇"
	}
	return "Your subscriptions live in the app 👇"
}

func OpenAppButtonText(language string) string {
	if isRussian(language) {
		return "Открыть приложение"
	}
	return "Open the app"
}

// ReminderText is the day-before heads-up, no action buttons.
func ReminderText(language string, sub models.Subscription) string {
	amount := FormatAmount(sub.Amount, sub.Currency)
	if isRussian(language) {
		return fmt.Sprintf("⏰ Завтра спишется %s за %s", amount, sub.Name)
	}
	return fmt.Sprintf("⏰ %s for %s is due tomorrow", amount, sub.Name)
}

// DueText covers both the billing day itself and missed payments.
func DueText(language string, sub models.Subscription, overdueDays int) string {
	amount := FormatAmount(sub.Amount, sub.Currency)
	if overdueDays <= 0 {
		if isRussian(language) {
			return fmt.Sprintf("💳 Сегодня день оплаты %s — %s. Уже оплатили?", sub.Name, amount)
		}
		return fmt.Sprintf("💳 %s is due today — %s. Have you paid it?", sub.Name, amount)
	}
	if isRussian(language) {
		return fmt.Sprintf("⚠️ Платёж за %s (%s) просрочен на %d дн. Уже оплатили?", sub.Name, amount, overdueDays)
	}
	plural := "days"
	if overdueDays == 1 {
		plural = "day"
	}
	return fmt.Sprintf("⚠️ %s (%s) is %d %s overdue. Have you paid it?", sub.Name, amount, overdueDays, plural)
}

func PaymentConfirmationText(language string, sub models.Subscription, nextDate time.Time) string {
	if isRussian(language) {
		return fmt.Sprintf("✅ Платёж за %s записан. Следующее списание — %s.", sub.Name, nextDate.Format(models.DateLayout))
	}
	return fmt.Sprintf("✅ Payment for %s recorded. Next billing date is %s.", sub.Name, nextDate.Format(models.DateLayout))
}

func PaymentRecordedToast(language string) string {
	if isRussian(language) {
		return "Платёж записан ✅"
	}
	return "Payment recorded ✅"
}

func PaymentFailedToast(language string) string {
	if isRussian(language) {
		return "Не получилось записать платёж, попробуйте в приложении"
	}
	return "Couldn't record the payment, try the app instead"
}

// PaymentKeyboard is attached to due-today and overdue notifications.
func PaymentKeyboard(language string, subscriptionID string) *telego.InlineKeyboardMarkup {
	paidToday := "Paid today"
	paidYesterday := "Paid yesterday"
	pickDate := "Pick a date…"
	if isRussian(language) {
		paidToday = "Оплатил сегодня"
		paidYesterday = "Оплатил вчера"
		pickDate = "Выбрать дату…"
	}
	return &telego.InlineKeyboardMarkup{
		InlineKeyboard: [][]telego.InlineKeyboardButton{
			{
				telego.InlineKeyboardButton{
					Text:         paidToday,
					CallbackData: "paid_today:" + subscriptionID,
				},
				telego.InlineKeyboardButton{
					Text:         paidYesterday,
					CallbackData: "paid_yesterday:" + subscriptionID,
				},
			},
			{
				telego.InlineKeyboardButton{
					Text:         pickDate,
					CallbackData: "open:" + subscriptionID,
				},
			},
		},
	}
}

// WebAppKeyboard opens the Mini App at its root.
func WebAppKeyboard(language string) *telego.InlineKeyboardMarkup {
	return &telego.InlineKeyboardMarkup{
		InlineKeyboard: [][]telego.InlineKeyboardButton{
			{
				telego.InlineKeyboardButton{
					Text: OpenAppButtonText(language),
					WebApp: &telego.WebAppInfo{
						URL: config.CONFIG.WebAppUrl,
					},
				},
			},
		},
	}
}
