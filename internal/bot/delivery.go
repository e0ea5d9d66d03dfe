package bot

import (
	"context"
	"io"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BrianAllred/TelegramVideoBot/internal/logx"
)

// Delivery adapts the Telegram client to the pipeline's delivery contract.
type Delivery struct {
	api Sender
}

func NewDelivery(api Sender) *Delivery {
	return &Delivery{api: api}
}

func (d *Delivery) SendText(ctx context.Context, chatID int64, text string, replyID int) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if replyID != 0 {
		msg.ReplyToMessageID = replyID
	}
	_, err := d.api.Send(msg)
	return err
}

// SendVideo uploads the file as a streamable video reply. The Bot API derives
// display dimensions server-side; the probed values are kept for the log.
func (d *Delivery) SendVideo(ctx context.Context, chatID int64, video io.Reader, name string, replyID, width, height int) error {
	logger := logx.FromCtx(ctx)
	logger.Debug().
		Str("file", name).Int("width", width).Int("height", height).
		Msg("uploading video")

	v := tgbotapi.NewVideo(chatID, tgbotapi.FileReader{Name: name, Reader: video})
	v.ReplyToMessageID = replyID
	v.SupportsStreaming = true
	_, err := d.api.Send(v)
	return err
}
