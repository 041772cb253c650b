package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/stylelab/telegram-stylist-bot/internal/llm"
	"github.com/stylelab/telegram-stylist-bot/internal/storage"
)

// Version info, set at build time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg      BotAPI
	state   BotState
	store   storage.SessionStore
	adminID int64

	// Handlers
	captureHandler *CaptureHandler
	stylingHandler *StylingHandler
}

// NewBot creates a new Bot instance.
func NewBot(tg BotAPI, store storage.SessionStore, adminID int64) *Bot {
	bot := &Bot{
		tg:      tg,
		store:   store,
		adminID: adminID,
	}

	bot.state = bot.NewBotState()
	bot.captureHandler = NewCaptureHandler(tg)

	return bot
}

// SetLLMClients sets the LLM clients for face analysis and image generation.
// analyzer: handles face shape analysis (can be cached)
// renderer: handles hairstyle image generation
func (b *Bot) SetLLMClients(analyzer llm.Analyzer, renderer llm.Renderer) {
	b.stylingHandler = NewStylingHandler(b.tg, analyzer, renderer, b.store)
}

// SetOutputDir makes the styling handler save generated looks to disk.
func (b *Bot) SetOutputDir(dir string) {
	if b.stylingHandler != nil {
		b.stylingHandler.outputDir = dir
	}
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

// dispatchUpdate routes updates to the appropriate session worker.
// If sync is true, it waits for message processing to complete.
func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	var userId int64

	if update.CallbackQuery != nil {
		userId = update.CallbackQuery.From.ID
	} else if update.Message != nil {
		userId = update.Message.From.ID
	} else {
		return
	}

	// Check if user is allowed (admin always allowed)
	// MUST be before getUserSession to prevent memory exhaustion from random user IDs
	if userId != b.adminID {
		allowed, err := b.store.IsUserAllowed(userId)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userId).Msg("whitelist check failed")
			return // Fail closed
		}
		if !allowed {
			return // Silent drop
		}
	}

	session := b.state.getUserSession(userId)

	send := func(msg SessionMessage) {
		if sync {
			session.SendSync(msg)
		} else {
			session.Send(msg)
		}
	}

	if update.CallbackQuery != nil {
		send(SessionMessage{
			Type:          "callback",
			Ctx:           ctx,
			CallbackQuery: update.CallbackQuery,
		})
		return
	}

	if update.Message != nil {
		log.Info().Str("text", update.Message.Text).Msg("got message")

		if len(update.Message.Photo) > 0 {
			send(SessionMessage{
				Type:    "photo",
				Ctx:     ctx,
				Message: update.Message,
			})
		} else {
			send(SessionMessage{
				Type:    "text",
				Ctx:     ctx,
				Message: update.Message,
			})
		}
	}
}

// HandleSessionMessage implements MessageHandler interface.
// This is called by the session worker goroutine for sequential processing.
// No mutex locking is needed here since only one goroutine accesses session state.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "callback":
		b.handleCallbackQuery(ctx, session, msg.CallbackQuery)
	case "photo":
		b.captureHandler.HandlePhoto(ctx, session, msg.Message)
	case "text":
		b.handleCommand(ctx, session, msg.Message)
	case "analysis_complete":
		b.stylingHandler.HandleAnalysisComplete(session, msg.Analysis)
	case "generation_complete":
		b.stylingHandler.HandleGenerationComplete(ctx, session, msg.Generation)
	}
}

// handleCommand processes bot commands.
// Called from session worker - no locking needed.
func (b *Bot) handleCommand(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	command, args := parseCommand(message.Text)
	argsStr := strings.Join(args, " ")
	switch command {
	case "/start":
		b.handleStartCommand(session)
	case "/retake":
		b.captureHandler.HandleRetakeCommand(session)
	case "/analyze":
		b.stylingHandler.HandleAnalyzeCommand(ctx, session)
	case "/generate":
		b.stylingHandler.HandleGenerateCommand(ctx, session)
	case "/reset":
		session.reset()
		session.replyAndRemoveCustomKeyboard(MsgResetDone)
	case "/history":
		b.handleHistoryCommand(session)
	case "/admin":
		b.handleAdminCommand(session, argsStr)
	case "/version":
		session.reply(MsgVersionInfo, Version, BuildTime)
	default:
		b.handleFallback(session)
	}
}

// handleStartCommand begins a new styling attempt from Idle, or re-prompts
// when one is already in progress.
func (b *Bot) handleStartCommand(session *UserSession) {
	switch session.flow.State {
	case StateIdle:
		if err := session.flow.transition(StateCapturing); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgCaptureStart)
	case StateError:
		session.reply(MsgErrorState, session.flow.ErrorMessage)
	default:
		b.handleFallback(session)
	}
}

// handleFallback replies with a hint appropriate for the current flow state.
func (b *Bot) handleFallback(session *UserSession) {
	switch session.flow.State {
	case StateCapturing:
		angle := session.flow.Buffer.NextAngle()
		session.reply(MsgCapturePhotoPrompt, angle)
	case StatePreview:
		session.reply(MsgPreviewPrompt)
	case StateSelection:
		session.reply(MsgSelectionPrompt, MaxSelections)
	case StateError:
		session.reply(MsgErrorState, session.flow.ErrorMessage)
	default:
		session.reply(MsgIdlePrompt)
	}
}

// handleCallbackQuery handles inline keyboard button presses.
// Called from session worker - no locking needed.
func (b *Bot) handleCallbackQuery(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	// Answer the callback to remove the loading state
	callback := tgbotapi.NewCallback(query.ID, "")
	b.tg.Request(callback)

	if strings.HasPrefix(query.Data, "preview:") {
		b.handlePreviewCallback(ctx, session, query)
	} else if strings.HasPrefix(query.Data, "style:") {
		b.stylingHandler.HandleStyleCallback(ctx, session, query)
	}
}

// handlePreviewCallback handles the retake/analyze buttons shown after all
// three photos are captured.
func (b *Bot) handlePreviewCallback(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	switch query.Data {
	case "preview:retake":
		b.captureHandler.HandleRetakeCommand(session)
	case "preview:analyze":
		b.stylingHandler.HandleAnalyzeCommand(ctx, session)
	}
}

// handleHistoryCommand lists the user's most recent saved looks.
func (b *Bot) handleHistoryCommand(session *UserSession) {
	if b.store == nil {
		session.reply(MsgHistoryNotAvailable)
		return
	}

	looks, err := b.store.ListLooks(session.userId, 10)
	if err != nil {
		session.replyWithError(err)
		return
	}
	if len(looks) == 0 {
		session.reply(MsgHistoryEmpty)
		return
	}

	var sb strings.Builder
	sb.WriteString(MsgHistoryHeader)
	sb.WriteString("\n")
	for i, look := range looks {
		sb.WriteString(fmt.Sprintf(
			MsgHistoryEntry+"\n",
			i+1,
			escapeMarkdown(look.StyleName),
			escapeMarkdown(look.FaceShape),
			look.CreatedAt.Format("2006-01-02"),
		))
	}
	// Assembled text may contain % from style names; don't treat it as a format string
	session.reply("%s", sb.String())
}

// handleAdminCommand handles /admin command with subcommands.
// Only the admin user can use this command (defense in depth check).
func (b *Bot) handleAdminCommand(session *UserSession, args string) {
	// Defense in depth: verify caller is admin even though whitelist check passed
	if session.userId != b.adminID {
		return // Silent drop for non-admin users
	}

	parts := strings.Fields(args)
	if len(parts) == 0 {
		session.reply(MsgAdminUsage)
		return
	}

	switch parts[0] {
	case "users":
		if len(parts) < 2 {
			session.reply(MsgAdminUsage)
			return
		}
		b.handleAdminUsersCommand(session, parts[1], parts[2:])
	default:
		session.reply(MsgAdminUsage)
	}
}

// handleAdminUsersCommand handles /admin users subcommands.
func (b *Bot) handleAdminUsersCommand(session *UserSession, action string, args []string) {
	switch action {
	case "add":
		if len(args) < 1 {
			session.reply(MsgAdminUserAddUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.store.AddAllowedUser(userID, session.userId); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserAdded, userID)

	case "remove":
		if len(args) < 1 {
			session.reply(MsgAdminUserRemoveUsage)
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if err := b.store.RemoveAllowedUser(userID); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserRemoved, userID)

	case "list":
		users, err := b.store.GetAllowedUsers()
		if err != nil {
			session.replyWithError(err)
			return
		}
		if len(users) == 0 {
			session.reply(MsgAdminUserListEmpty)
			return
		}
		var sb strings.Builder
		sb.WriteString("Allowed users:\n")
		for _, u := range users {
			sb.WriteString(fmt.Sprintf("• `%d` (added %s)\n", u.TelegramID, u.AddedAt.Format("2006-01-02")))
		}
		session.reply("%s", sb.String())

	default:
		session.reply(MsgAdminUsage)
	}
}

// RunSessionJanitor periodically expires idle sessions until the context is
// cancelled. Meant to run in its own goroutine.
func (b *Bot) RunSessionJanitor(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := b.state.ExpireIdle(maxIdle); n > 0 {
				log.Info().Int("count", n).Msg("expired idle sessions")
			}
		}
	}
}

// StopAllSessions stops every session worker. Used during shutdown.
func (b *Bot) StopAllSessions() {
	b.state.StopAll()
}
