package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// CaptureHandler collects the three capture photos (front, left, right) that
// feed the face analysis.
type CaptureHandler struct {
	tg         BotAPI
	downloader *ImageDownloader
}

func NewCaptureHandler(tg BotAPI) *CaptureHandler {
	return &CaptureHandler{
		tg:         tg,
		downloader: NewImageDownloader(),
	}
}

// HandlePhoto processes an incoming photo message.
// Called from session worker - no locking needed.
func (c *CaptureHandler) HandlePhoto(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	switch session.flow.State {
	case StateCapturing:
		// fall through to capture below
	case StatePreview:
		session.reply(MsgCaptureBufferFull)
		return
	default:
		session.reply(MsgCaptureNotExpecting)
		return
	}

	data, err := c.downloadBestPhoto(ctx, message)
	if err != nil {
		log.Error().Err(err).Int64("userId", session.userId).Msg("photo download failed")
		session.flow.fail(err.Error())
		session.reply(MsgCaptureDownloadError, err)
		return
	}

	count, err := session.flow.Buffer.Add(data)
	if err != nil {
		session.reply(MsgCaptureBufferFull)
		return
	}

	log.Info().
		Int64("userId", session.userId).
		Int("count", count).
		Int("bytes", len(data)).
		Msg("capture photo added")

	if !session.flow.Buffer.Full() {
		session.reply(MsgCapturePhotoAdded, count, session.flow.Buffer.NextAngle())
		return
	}

	if err := session.flow.transition(StatePreview); err != nil {
		session.replyWithError(err)
		return
	}
	c.sendPreviewPrompt(session)
}

// downloadBestPhoto downloads the largest available size of a Telegram photo.
// Telegram sends multiple sizes; the last entry is the largest.
func (c *CaptureHandler) downloadBestPhoto(ctx context.Context, message *tgbotapi.Message) ([]byte, error) {
	photo := message.Photo[len(message.Photo)-1]
	return c.downloader.DownloadFromTelegramFileID(ctx, c.tg.GetFileDirectURL, photo.FileID)
}

// sendPreviewPrompt asks the user to confirm or retake the captured photos.
func (c *CaptureHandler) sendPreviewPrompt(session *UserSession) {
	msg := tgbotapi.MessageConfig{
		Text:      MsgCaptureComplete + " " + MsgPreviewPrompt,
		ParseMode: tgbotapi.ModeMarkdown,
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Analyze", "preview:analyze"),
			tgbotapi.NewInlineKeyboardButtonData("Retake", "preview:retake"),
		),
	)
	session.replyWithMessage(msg)
}

// HandleRetakeCommand clears the capture buffer and restarts the capture
// sequence. Valid while capturing or previewing.
func (c *CaptureHandler) HandleRetakeCommand(session *UserSession) {
	switch session.flow.State {
	case StateCapturing:
		session.flow.Buffer.Clear()
		session.reply(MsgCaptureStart)
	case StatePreview:
		if err := session.flow.transition(StateCapturing); err != nil {
			session.replyWithError(err)
			return
		}
		session.flow.Buffer.Clear()
		session.reply(MsgCaptureStart)
	default:
		session.reply(MsgCaptureNotExpecting)
	}
}
