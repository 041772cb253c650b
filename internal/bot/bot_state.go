package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// sessionInboxSize bounds how many unprocessed updates a single user can queue.
const sessionInboxSize = 16

// BotState holds the per-user sessions.
type BotState struct {
	bot      *Bot
	mu       sync.Mutex
	sessions map[int64]*UserSession
}

func (b *Bot) NewBotState() BotState {
	return BotState{
		bot:      b,
		sessions: make(map[int64]*UserSession),
	}
}

// getUserSession returns the session for a user, creating and starting its
// worker on first contact.
func (bs *BotState) getUserSession(userId int64) *UserSession {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if session, ok := bs.sessions[userId]; ok {
		return session
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &UserSession{
		userId:       userId,
		sender:       bs.bot.tg,
		inbox:        make(chan SessionMessage, sessionInboxSize),
		ctx:          ctx,
		cancel:       cancel,
		lastActivity: time.Now(),
	}
	session.SetHandler(bs.bot)
	session.StartWorker()
	bs.sessions[userId] = session

	log.Info().Int64("userId", userId).Msg("new user session created")
	return session
}

// ExpireIdle stops and removes sessions that have been inactive for longer
// than maxIdle. An expired session's flow is abandoned; the attempt token
// mechanism makes any still-pending remote completion a no-op.
func (bs *BotState) ExpireIdle(maxIdle time.Duration) int {
	bs.mu.Lock()
	var expired []*UserSession
	cutoff := time.Now().Add(-maxIdle)
	for userId, session := range bs.sessions {
		if session.LastActivity().Before(cutoff) {
			expired = append(expired, session)
			delete(bs.sessions, userId)
		}
	}
	bs.mu.Unlock()

	// Stop outside the lock: Stop waits for the worker to finish its
	// current message.
	for _, session := range expired {
		session.Stop()
		log.Info().Int64("userId", session.userId).Msg("expired idle session")
	}

	return len(expired)
}

// StopAll stops every session worker. Used during shutdown.
func (bs *BotState) StopAll() {
	bs.mu.Lock()
	sessions := make([]*UserSession, 0, len(bs.sessions))
	for _, session := range bs.sessions {
		sessions = append(sessions, session)
	}
	bs.sessions = make(map[int64]*UserSession)
	bs.mu.Unlock()

	for _, session := range sessions {
		session.Stop()
	}
}
