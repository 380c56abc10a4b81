package workers

import (
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"subtrack/m/v2/app/config"
)

const DAY_FOR_MONTHLY_RUNS = 1

type Worker struct {
	Interval             time.Duration
	MainBotName          string
	Daily                bool
	RunHour              int
	Monthly              bool
	Run                  func()
	Stop                 chan struct{}
	SystemTelegramChatID telego.ChatID
	TelegramSystemBot    *telego.Bot

	lastRun time.Time
}

func NewWorker(systemBot *telego.Bot, cfg *config.Config, interval time.Duration, run func()) *Worker {
	chatId, _ := strconv.ParseInt(cfg.TelegramSystemTo, 10, 64)
	return &Worker{
		Interval:             interval,
		MainBotName:          cfg.BotName,
		Run:                  run,
		Stop:                 make(chan struct{}),
		SystemTelegramChatID: tu.ID(chatId),
		TelegramSystemBot:    systemBot,
	}
}

// NewDailyWorker ticks on the interval but fires the run at most once per
// UTC day, at the given hour.
func NewDailyWorker(systemBot *telego.Bot, cfg *config.Config, interval time.Duration, runHour int, run func()) *Worker {
	w := NewWorker(systemBot, cfg, interval, run)
	w.Daily = true
	w.RunHour = runHour
	return w
}

// NewMonthlyWorker fires only on the first day of the month.
func NewMonthlyWorker(systemBot *telego.Bot, cfg *config.Config, interval time.Duration, run func()) *Worker {
	w := NewWorker(systemBot, cfg, interval, run)
	w.Monthly = true
	return w
}

func (w *Worker) Start() {
	if w.shouldRun(time.Now().UTC()) {
		w.runOnce()
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if w.shouldRun(time.Now().UTC()) {
				w.runOnce()
			}
		case <-w.Stop:
			return
		}
	}
}

func (w *Worker) StopWorker() {
	w.Stop <- struct{}{}
}

func (w *Worker) runOnce() {
	w.lastRun = time.Now().UTC()
	w.Run()
}

func (w *Worker) shouldRun(now time.Time) bool {
	if w.Monthly && now.Day() != DAY_FOR_MONTHLY_RUNS {
		return false
	}
	if !w.Daily {
		return true
	}
	if now.Hour() != w.RunHour {
		return false
	}
	// the ticker is finer-grained than a day, don't fire twice within
	// the same run hour
	return w.lastRun.IsZero() || w.lastRun.YearDay() != now.YearDay() || w.lastRun.Year() != now.Year()
}
