package telegramNotifier

import (
	"log/slog"
	"time"

	"github.com/tiangangQiu/FundVal-Live/config"
	tele "gopkg.in/telebot.v4"
)

// TelegramNotifier pushes alert texts to subscribed chats. It only sends,
// the bot never polls for updates.
type TelegramNotifier struct {
	bot *tele.Bot
}

func New(cfg *config.Config) (*TelegramNotifier, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}

	return &TelegramNotifier{bot: bot}, nil
}

func (n *TelegramNotifier) Send(chatID int64, text string) error {
	_, err := n.bot.Send(tele.ChatID(chatID), text, tele.ModeMarkdown)
	if err != nil {
		slog.Error("can't send telegram message", slog.Int64("chatID", chatID), slog.String("err", err.Error()))
		return err
	}
	return nil
}
