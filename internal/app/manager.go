package app

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Liveness marks active session codes in a shared store so operators can
// see what is running. Best-effort; never on the hot path.
type Liveness interface {
	MarkActive(code string)
	Clear(code string)
}

// Settings are the process-wide game defaults applied to new sessions.
type Settings struct {
	TimePerQuestion          time.Duration
	BasePoints               int
	MaxSpeedBonus            int
	SkewTolerance            time.Duration
	GracePeriod              time.Duration
	RevealDelay              time.Duration
	CompletedRetention       time.Duration
	InterruptedRetention     time.Duration
	LeaderboardSize          int
	AllowLateJoin            bool
	ShowLeaderboardAfterEach bool
	MaxCodeRetries           int
}

func DefaultSettings() Settings {
	return Settings{
		TimePerQuestion:          30 * time.Second,
		BasePoints:               100,
		MaxSpeedBonus:            50,
		SkewTolerance:            2 * time.Second,
		GracePeriod:              2 * time.Minute,
		RevealDelay:              5 * time.Second,
		CompletedRetention:       10 * time.Minute,
		InterruptedRetention:     2 * time.Minute,
		LeaderboardSize:          10,
		AllowLateJoin:            true,
		ShowLeaderboardAfterEach: true,
		MaxCodeRetries:           10,
	}
}

// SessionManager owns the arena of active sessions indexed by code. It is
// the sole authority for session state; nothing else caches sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	quizzes     QuizRepository
	broadcaster Broadcaster
	persist     *PersistenceQueue
	settings    Settings
	clock       clockwork.Clock
	liveness    Liveness
	log         zerolog.Logger

	codes   *codeGenerator
	newCode func() string
}

type ManagerOption func(*SessionManager)

// WithClock swaps the wall clock, letting tests drive timers deterministically.
func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *SessionManager) { m.clock = clock }
}

func WithLiveness(liveness Liveness) ManagerOption {
	return func(m *SessionManager) { m.liveness = liveness }
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *SessionManager) { m.log = logger }
}

func NewSessionManager(quizzes QuizRepository, broadcaster Broadcaster, persist *PersistenceQueue, settings Settings, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		sessions:    make(map[string]*Session),
		quizzes:     quizzes,
		broadcaster: broadcaster,
		persist:     persist,
		settings:    settings,
		clock:       clockwork.NewRealClock(),
		log:         zerolog.Nop(),
		codes:       newCodeGenerator(),
	}
	m.newCode = m.codes.next
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession snapshots the quiz, draws an unused code, and registers the
// session with the caller as host. Code collisions are retried up to the
// configured budget.
func (m *SessionManager) CreateSession(ctx context.Context, hostID, hostConnectionID, quizID string) (*Session, error) {
	quiz, err := m.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, domain.ErrValidation
	}

	cfg := domain.SessionConfig{
		TimePerQuestion:          m.settings.TimePerQuestion,
		TimePerQuestionSec:       int(m.settings.TimePerQuestion / time.Second),
		BasePoints:               m.settings.BasePoints,
		MaxSpeedBonus:            m.settings.MaxSpeedBonus,
		AllowLateJoin:            m.settings.AllowLateJoin,
		ShowLeaderboardAfterEach: m.settings.ShowLeaderboardAfterEach,
	}
	deps := sessionDeps{
		clock:           m.clock,
		broadcaster:     m.broadcaster,
		persist:         m.persist,
		scheduleRemoval: m.scheduleRemoval,
		log:             m.log,
	}

	m.mu.Lock()
	var session *Session
	for attempt := 0; attempt < m.settings.MaxCodeRetries; attempt++ {
		code := m.newCode()
		if _, taken := m.sessions[code]; taken {
			continue
		}
		session = newSession(code, quiz, hostID, cfg, m.settings, deps)
		session.hostConnectionID = hostConnectionID
		m.sessions[code] = session
		break
	}
	m.mu.Unlock()

	if session == nil {
		return nil, domain.ErrCodeSpaceExhausted
	}
	if m.liveness != nil {
		m.liveness.MarkActive(session.code)
	}
	session.mu.Lock()
	snapshot := session.snapshotLocked()
	session.mu.Unlock()
	m.persist.EnqueueSession(snapshot)
	m.log.Info().Str("session", session.code).Str("quiz", quizID).Str("host", hostID).Msg("session created")
	return session, nil
}

// Get returns the active session for code, if any.
func (m *SessionManager) Get(code string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[code]
	return session, ok
}

// Remove drops a session from the registry.
func (m *SessionManager) Remove(code string) {
	m.mu.Lock()
	session, ok := m.sessions[code]
	if ok {
		delete(m.sessions, code)
	}
	m.mu.Unlock()
	if ok {
		if m.liveness != nil {
			m.liveness.Clear(code)
		}
		m.log.Info().Str("session", session.code).Msg("session removed")
	}
}

// scheduleRemoval drops the session after the retention window. The pointer
// comparison guards against a recycled code removing a newer session.
func (m *SessionManager) scheduleRemoval(s *Session, after time.Duration) {
	timer := m.clock.NewTimer(after)
	go func() {
		<-timer.Chan()
		m.mu.Lock()
		current, ok := m.sessions[s.code]
		if ok && current == s {
			delete(m.sessions, s.code)
		}
		m.mu.Unlock()
		if ok && current == s {
			if m.liveness != nil {
				m.liveness.Clear(s.code)
			}
			m.log.Info().Str("session", s.code).Msg("session removed after retention window")
		}
	}()
}
