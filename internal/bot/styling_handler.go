package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/stylelab/telegram-stylist-bot/internal/llm"
	"github.com/stylelab/telegram-stylist-bot/internal/storage"
)

// maxConcurrentRenders bounds how many hairstyle renders run at once for a
// single generation batch.
const maxConcurrentRenders = 2

// StylingHandler drives the analyze/select/generate part of the flow.
type StylingHandler struct {
	tg        BotAPI
	analyzer  llm.Analyzer
	renderer  llm.Renderer
	store     storage.SessionStore
	outputDir string
}

func NewStylingHandler(tg BotAPI, analyzer llm.Analyzer, renderer llm.Renderer, store storage.SessionStore) *StylingHandler {
	return &StylingHandler{
		tg:       tg,
		analyzer: analyzer,
		renderer: renderer,
		store:    store,
	}
}

// --- Analysis ---

// HandleAnalyzeCommand starts face analysis on the captured photos.
// Valid only from the preview state with a full buffer.
// Called from session worker - no locking needed.
func (h *StylingHandler) HandleAnalyzeCommand(ctx context.Context, session *UserSession) {
	if session.flow.State != StatePreview || !session.flow.Buffer.Full() {
		session.reply(MsgCaptureNotExpecting)
		return
	}

	if err := session.flow.transition(StateAnalyzing); err != nil {
		session.replyWithError(err)
		return
	}
	session.reply(MsgAnalyzing)

	attempt := session.flow.Attempt
	images := session.flow.Buffer.Images()

	// Run the analysis in a goroutine and report back through the inbox so
	// the worker stays free. The attempt token lets the completion handler
	// drop results that arrive after a reset.
	go func() {
		typingCtx, cancelTyping := context.WithCancel(session.ctx)
		defer cancelTyping()
		go session.startTypingLoop(typingCtx)

		result, err := h.analyzer.AnalyzeFace(session.ctx, images)

		session.Send(SessionMessage{
			Type: "analysis_complete",
			Ctx:  session.ctx,
			Analysis: &AnalysisCompletion{
				Attempt: attempt,
				Result:  result,
				Err:     err,
			},
		})
	}()
}

// HandleAnalysisComplete processes the analysis outcome on the session worker.
func (h *StylingHandler) HandleAnalysisComplete(session *UserSession, completion *AnalysisCompletion) {
	if completion.Attempt != session.flow.Attempt {
		log.Info().
			Int64("userId", session.userId).
			Int("completionAttempt", completion.Attempt).
			Int("currentAttempt", session.flow.Attempt).
			Msg("dropping stale analysis completion")
		return
	}

	if completion.Err != nil {
		log.Error().Err(completion.Err).Int64("userId", session.userId).Msg("face analysis failed")
		session.flow.fail(completion.Err.Error())
		session.reply(MsgAnalysisFailed, completion.Err)
		return
	}

	session.flow.Analysis = completion.Result.Analysis
	if err := session.flow.transition(StateSelection); err != nil {
		session.replyWithError(err)
		return
	}

	h.sendSuggestionList(session)
}

// sendSuggestionList shows the face shape verdict, the five suggestions and
// the selection keyboard.
func (h *StylingHandler) sendSuggestionList(session *UserSession) {
	analysis := session.flow.Analysis

	var sb strings.Builder
	sb.WriteString(formatReplyText(MsgFaceShapeIs, escapeMarkdown(analysis.FaceShape)))
	sb.WriteString("\n")
	for i, s := range analysis.Suggestions {
		sb.WriteString(fmt.Sprintf(
			"\n%d. *%s*\n%s\n_%s_\n",
			i+1,
			escapeMarkdown(s.Name),
			escapeMarkdown(s.Description),
			escapeMarkdown(s.Reasoning),
		))
	}
	sb.WriteString("\n")
	sb.WriteString(formatReplyText(MsgSelectionPrompt, MaxSelections))

	msg := tgbotapi.MessageConfig{
		Text:      sb.String(),
		ParseMode: tgbotapi.ModeMarkdown,
	}
	msg.ReplyMarkup = makeSelectionKeyboard(&session.flow)
	session.replyWithMessage(msg)
}

// makeSelectionKeyboard builds the suggestion toggle keyboard with a checkmark
// on selected entries and a generate button at the bottom.
func makeSelectionKeyboard(flow *Flow) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(flow.Analysis.Suggestions)+1)
	for i, s := range flow.Analysis.Suggestions {
		label := s.Name
		if flow.IsSelected(i) {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("style:%d", i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Generate", "style:generate"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// --- Selection ---

// HandleStyleCallback handles style:<idx> toggle and style:generate callbacks.
// Called from session worker - no locking needed.
func (h *StylingHandler) HandleStyleCallback(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	data := strings.TrimPrefix(query.Data, "style:")

	if data == "generate" {
		h.HandleGenerateCommand(ctx, session)
		return
	}

	if session.flow.State != StateSelection {
		session.reply(MsgNotInSelection)
		return
	}

	idx, err := strconv.Atoi(data)
	if err != nil {
		log.Warn().Str("data", query.Data).Msg("malformed style callback")
		return
	}

	changed := session.flow.ToggleSelection(idx)
	if !changed {
		if len(session.flow.Selection) >= MaxSelections && !session.flow.IsSelected(idx) {
			session.reply(MsgSelectionLimit, MaxSelections)
		}
		return
	}

	// Update the checkmarks in place
	if query.Message != nil {
		edit := tgbotapi.NewEditMessageReplyMarkup(
			query.Message.Chat.ID,
			query.Message.MessageID,
			makeSelectionKeyboard(&session.flow),
		)
		if _, err := h.tg.Request(edit); err != nil {
			log.Debug().Err(err).Msg("failed to update selection keyboard")
		}
	}
}

// --- Generation ---

// HandleGenerateCommand starts the render batch for the selected styles.
// Valid only from the selection state with at least one style picked.
// Called from session worker - no locking needed.
func (h *StylingHandler) HandleGenerateCommand(ctx context.Context, session *UserSession) {
	if session.flow.State != StateSelection {
		session.reply(MsgNotInSelection)
		return
	}
	if len(session.flow.Selection) == 0 {
		session.reply(MsgSelectionEmpty)
		return
	}

	if err := session.flow.transition(StateGenerating); err != nil {
		session.replyWithError(err)
		return
	}

	suggestions := session.flow.SelectedSuggestions()
	names := make([]string, len(suggestions))
	for i, s := range suggestions {
		names[i] = s.Name
	}
	session.reply(MsgGenerating, escapeMarkdown(strings.Join(names, " and ")))

	attempt := session.flow.Attempt
	front := session.flow.Buffer.Front()

	go func() {
		typingCtx, cancelTyping := context.WithCancel(session.ctx)
		defer cancelTyping()
		go session.startTypingLoop(typingCtx)

		looks, err := renderBatch(session.ctx, h.renderer, front, suggestions)

		session.Send(SessionMessage{
			Type: "generation_complete",
			Ctx:  session.ctx,
			Generation: &GenerationCompletion{
				Attempt: attempt,
				Looks:   looks,
				Err:     err,
			},
		})
	}()
}

// renderBatch renders every selected style against the front photo, up to
// maxConcurrentRenders at a time. All-or-nothing: any failed render fails the
// whole batch and no partial results are returned.
func renderBatch(ctx context.Context, renderer llm.Renderer, baseImage []byte, suggestions []llm.Suggestion) ([]GeneratedLook, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRenders)

	looks := make([]GeneratedLook, len(suggestions))
	for i, s := range suggestions {
		g.Go(func() error {
			result, err := renderer.RenderHairstyle(ctx, baseImage, s.Name, s.Description)
			if err != nil {
				return fmt.Errorf("render %q: %w", s.Name, err)
			}
			looks[i] = GeneratedLook{
				StyleName: s.Name,
				ImageData: result.ImageData,
				MIMEType:  result.MIMEType,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return looks, nil
}

// HandleGenerationComplete processes the render batch outcome on the session
// worker: delivers the generated photos, persists them and finishes the flow.
func (h *StylingHandler) HandleGenerationComplete(ctx context.Context, session *UserSession, completion *GenerationCompletion) {
	if completion.Attempt != session.flow.Attempt {
		log.Info().
			Int64("userId", session.userId).
			Int("completionAttempt", completion.Attempt).
			Int("currentAttempt", session.flow.Attempt).
			Msg("dropping stale generation completion")
		return
	}

	if completion.Err != nil {
		log.Error().Err(completion.Err).Int64("userId", session.userId).Msg("generation failed")
		session.flow.fail(completion.Err.Error())
		session.reply(MsgGenerationFailed, completion.Err)
		return
	}

	session.flow.Looks = completion.Looks
	if err := session.flow.transition(StateResults); err != nil {
		session.replyWithError(err)
		return
	}

	faceShape := ""
	if session.flow.Analysis != nil {
		faceShape = session.flow.Analysis.FaceShape
	}

	for _, look := range completion.Looks {
		h.sendLookPhoto(session, look)
		h.persistLook(session.userId, faceShape, look)
	}

	session.reply(MsgResultsDone)
}

// sendLookPhoto delivers one generated look as a photo message.
func (h *StylingHandler) sendLookPhoto(session *UserSession, look GeneratedLook) {
	photo := tgbotapi.NewPhoto(session.userId, tgbotapi.FileBytes{
		Name:  sanitizeStyleFileName(look.StyleName),
		Bytes: look.ImageData,
	})
	photo.Caption = fmt.Sprintf(MsgResultsCaption, look.StyleName)
	if _, err := h.tg.Send(photo); err != nil {
		log.Error().Err(err).Str("style", look.StyleName).Msg("failed to send look photo")
	}
}

// persistLook saves a generated look to the store and, when an output
// directory is configured, to disk as well.
func (h *StylingHandler) persistLook(userId int64, faceShape string, look GeneratedLook) {
	if h.store != nil {
		err := h.store.SaveLook(&storage.Look{
			TelegramID: userId,
			FaceShape:  faceShape,
			StyleName:  look.StyleName,
			ImageData:  look.ImageData,
			MIMEType:   look.MIMEType,
		})
		if err != nil {
			log.Error().Err(err).Str("style", look.StyleName).Msg("failed to save look")
		}
	}

	if h.outputDir != "" {
		path := filepath.Join(h.outputDir, sanitizeStyleFileName(look.StyleName))
		if err := os.WriteFile(path, look.ImageData, 0o644); err != nil {
			log.Error().Err(err).Str("path", path).Msg("failed to write look file")
		}
	}
}
