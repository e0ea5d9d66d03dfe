// Package bot is the Telegram boundary: it maps inbound messages to queue
// submissions and carries replies and video uploads back out.
package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/BrianAllred/TelegramVideoBot/internal/pipeline"
	"github.com/BrianAllred/TelegramVideoBot/internal/queue"
)

// Sender is the slice of *tgbotapi.BotAPI the handler needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Submitter hands validated requests to the per-user queues.
type Submitter interface {
	Submit(userID int64, req queue.Request) queue.Admission
}

type Handler struct {
	api           Sender
	registry      Submitter
	botName       string
	queueLimit    int
	uploadLimitMB int
}

func NewHandler(api Sender, registry Submitter, botName string, queueLimit, uploadLimitMB int) *Handler {
	return &Handler{
		api:           api,
		registry:      registry,
		botName:       botName,
		queueLimit:    queueLimit,
		uploadLimitMB: uploadLimitMB,
	}
}

// HandleUpdate routes one long-poll update. Anything that isn't a command is
// treated as a batch of URLs so share-sheet messages work without /download.
func (h *Handler) HandleUpdate(upd tgbotapi.Update) {
	m := upd.Message
	if m == nil || m.Text == "" || m.From == nil {
		return
	}
	tokens := strings.Fields(m.Text)
	if len(tokens) == 0 {
		return
	}

	log.Info().Int64("chat_id", m.Chat.ID).Int64("user_id", m.From.ID).Msg("message received")

	switch {
	case strings.HasPrefix(tokens[0], "/download"):
		h.handleDownload(m, tokens[1:])
	case strings.HasPrefix(tokens[0], "/"):
		h.handleHelp(m)
	default:
		h.handleDownload(m, tokens)
	}
}

// handleDownload submits every URL in the message and answers with one
// summary grouped by admission verdict.
func (h *Handler) handleDownload(m *tgbotapi.Message, urls []string) {
	if len(urls) == 0 {
		reply := tgbotapi.NewMessage(m.Chat.ID, "No URL included in message.")
		reply.ReplyToMessageID = m.MessageID
		if _, err := h.api.Send(reply); err != nil {
			log.Error().Err(err).Msg("sending reply failed")
		}
		return
	}

	// first occurrence of a URL wins; duplicates in one message are dropped
	var order []string
	verdicts := make(map[string]queue.Admission)
	for _, u := range urls {
		if _, seen := verdicts[u]; seen {
			continue
		}
		order = append(order, u)
		verdicts[u] = h.registry.Submit(m.From.ID, queue.Request{
			ID:      queue.NewID(),
			ChatID:  m.Chat.ID,
			ReplyID: m.MessageID,
			URL:     u,
		})
	}

	reply := tgbotapi.NewMessage(m.Chat.ID, admissionSummary(order, verdicts))
	reply.ReplyToMessageID = m.MessageID
	reply.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := h.api.Send(reply); err != nil {
		log.Error().Err(err).Msg("sending admission summary failed")
	}
}

// admissionSummary renders the grouped MarkdownV2 report, one code-span line
// per URL under its verdict's heading.
func admissionSummary(order []string, verdicts map[string]queue.Admission) string {
	headings := []struct {
		verdict queue.Admission
		text    string
	}{
		{queue.Accepted, "Successfully queued the following videos:"},
		{queue.InvalidURL, "The following video URLs are invalid:"},
		{queue.QueueFull, "The following video URLs weren't queued due to a full queue:"},
	}

	var b strings.Builder
	for _, hd := range headings {
		var lines []string
		for _, u := range order {
			if verdicts[u] == hd.verdict {
				lines = append(lines, pipeline.CodeSpan(u))
			}
		}
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(escapeMarkdownV2(hd.text))
		b.WriteString("\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

func (h *Handler) handleHelp(m *tgbotapi.Message) {
	intro := fmt.Sprintf(
		"Hello there, I'm %s\\! I download videos from URLs you send me and send them back to you as video files\\.\n\n"+
			"Please note that the Telegram API limits me to %d MB attachments per message, so long videos may take longer to process due to compression\\. *Please be patient\\!*\n\n"+
			"To get started, send a message starting with `/download` followed by a URL to a video, and I'll do my best\\!\n\n"+
			"\\(I also work without the `/download` command in case you want to use a video app's share feature\\!\\)",
		escapeMarkdownV2(h.botName), h.uploadLimitMB)

	msg := tgbotapi.NewMessage(m.Chat.ID, intro)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := h.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("sending help failed")
	}

	footnote := fmt.Sprintf("Also, each user can queue up to %d videos at a time. "+
		"You can do this by sending multiple messages or alternatively sending multiple video links "+
		"within the same message separated by line breaks or spaces.", h.queueLimit)
	if _, err := h.api.Send(tgbotapi.NewMessage(m.Chat.ID, footnote)); err != nil {
		log.Error().Err(err).Msg("sending help failed")
	}
}

func escapeMarkdownV2(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}
