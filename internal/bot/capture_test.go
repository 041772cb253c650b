package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func photoMessage(userID int64) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90},
			{FileID: "large", Width: 800},
		},
	}
}

func newCaptureFixture(t *testing.T) (*fakeBotAPI, *CaptureHandler, *UserSession) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(server.Close)

	tg := &fakeBotAPI{fileURL: server.URL}
	handler := NewCaptureHandler(tg)
	session := newFlowTestSession(t, tg)
	return tg, handler, session
}

func TestHandlePhoto_CollectsThreeThenPreview(t *testing.T) {
	tg, handler, session := newCaptureFixture(t)
	require.NoError(t, session.flow.transition(StateCapturing))
	ctx := context.Background()

	handler.HandlePhoto(ctx, session, photoMessage(1))
	assert.Equal(t, 1, session.flow.Buffer.Count())
	assert.Equal(t, StateCapturing, session.flow.State)
	assert.Contains(t, tg.allText(), "left")

	handler.HandlePhoto(ctx, session, photoMessage(1))
	assert.Contains(t, tg.allText(), "right")

	handler.HandlePhoto(ctx, session, photoMessage(1))
	assert.Equal(t, StatePreview, session.flow.State)
	assert.True(t, session.flow.Buffer.Full())

	// Preview prompt carries the analyze/retake keyboard
	msgs := tg.sentMessages()
	last := msgs[len(msgs)-1]
	keyboard, ok := last.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 1)
	assert.Equal(t, "preview:analyze", *keyboard.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "preview:retake", *keyboard.InlineKeyboard[0][1].CallbackData)
}

func TestHandlePhoto_RejectedOutsideCapture(t *testing.T) {
	tg, handler, session := newCaptureFixture(t)

	handler.HandlePhoto(context.Background(), session, photoMessage(1))

	assert.Zero(t, session.flow.Buffer.Count())
	assert.Contains(t, tg.allText(), MsgCaptureNotExpecting)
}

func TestHandlePhoto_RejectedInPreview(t *testing.T) {
	tg, handler, session := newCaptureFixture(t)
	require.NoError(t, session.flow.transition(StateCapturing))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		handler.HandlePhoto(ctx, session, photoMessage(1))
	}
	require.Equal(t, StatePreview, session.flow.State)

	handler.HandlePhoto(ctx, session, photoMessage(1))
	assert.Equal(t, 3, session.flow.Buffer.Count())
	assert.Contains(t, tg.allText(), "already have all three")
}

func TestHandlePhoto_DownloadFailureFailsFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	tg := &fakeBotAPI{fileURL: server.URL}
	handler := NewCaptureHandler(tg)
	session := newFlowTestSession(t, tg)
	require.NoError(t, session.flow.transition(StateCapturing))

	handler.HandlePhoto(context.Background(), session, photoMessage(1))

	assert.Equal(t, StateError, session.flow.State)
	assert.Contains(t, tg.allText(), "/reset")
}

func TestHandleRetakeCommand_FromPreview(t *testing.T) {
	_, handler, session := newCaptureFixture(t)
	require.NoError(t, session.flow.transition(StateCapturing))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		handler.HandlePhoto(ctx, session, photoMessage(1))
	}
	require.Equal(t, StatePreview, session.flow.State)

	handler.HandleRetakeCommand(session)

	assert.Equal(t, StateCapturing, session.flow.State)
	assert.Zero(t, session.flow.Buffer.Count())
	assert.Equal(t, "front", session.flow.Buffer.NextAngle())
}

func TestHandleRetakeCommand_Idle(t *testing.T) {
	tg, handler, session := newCaptureFixture(t)

	handler.HandleRetakeCommand(session)

	assert.Equal(t, StateIdle, session.flow.State)
	assert.Contains(t, tg.allText(), MsgCaptureNotExpecting)
}
