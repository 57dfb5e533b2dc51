package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

// sessionDeps are the collaborators a session talks to. All of them are
// fire-and-forget from the session's point of view; the in-memory state is
// authoritative and never waits on them.
type sessionDeps struct {
	clock           clockwork.Clock
	broadcaster     Broadcaster
	persist         *PersistenceQueue
	scheduleRemoval func(s *Session, after time.Duration)
	log             zerolog.Logger
}

// oneShot is a cancellable timer slot. Cancellation bumps gen, so a fire
// that already left the timer goroutine is recognized as stale and becomes
// a no-op. Cancellation is idempotent.
type oneShot struct {
	timer clockwork.Timer
	gen   uint64
	done  chan struct{}
}

// Session is one live run of a quiz. Every exported method takes the
// session mutex for its whole transition, which gives the per-session
// serialized execution the lifecycle relies on; distinct sessions share no
// mutable state.
type Session struct {
	mu sync.Mutex

	code             string
	quizID           string
	quizTitle        string
	hostID           string
	hostConnectionID string
	questions        []domain.Question
	cfg              domain.SessionConfig
	settings         Settings
	createdAt        time.Time

	status             domain.SessionStatus
	currentIndex       int
	questionOpen       bool
	completePending    bool
	questionStartedAt  time.Time
	elapsedBeforePause time.Duration
	frozenRemaining    time.Duration

	participants   map[string]*domain.Participant
	currentResults map[string]domain.ScoreResult

	questionTimer oneShot
	graceTimer    oneShot
	completeTimer oneShot

	deps sessionDeps
}

func newSession(code string, quiz domain.Quiz, hostID string, cfg domain.SessionConfig, settings Settings, deps sessionDeps) *Session {
	questions := make([]domain.Question, len(quiz.Questions))
	copy(questions, quiz.Questions)
	return &Session{
		code:           code,
		quizID:         quiz.ID,
		quizTitle:      quiz.Title,
		hostID:         hostID,
		questions:      questions,
		cfg:            cfg,
		settings:       settings,
		createdAt:      deps.clock.Now(),
		status:         domain.StatusLobby,
		currentIndex:   -1,
		participants:   make(map[string]*domain.Participant),
		currentResults: make(map[string]domain.ScoreResult),
		deps:           deps,
	}
}

func (s *Session) Code() string      { return s.code }
func (s *Session) QuizTitle() string { return s.quizTitle }
func (s *Session) QuestionCount() int {
	return len(s.questions)
}

// Join registers a new participant, reconnects a known one, or reattaches
// the host. Repeated joins with the same identity never duplicate the
// participant or reset its score.
func (s *Session) Join(id Identity, connectionID, displayName, photoRef string) (domain.JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.Host() {
		if id.Subject() != s.hostID {
			return domain.JoinResult{}, domain.ErrNotHost
		}
		return s.hostRejoinLocked(connectionID), nil
	}

	participantID := id.Subject()
	if participantID == "" {
		return domain.JoinResult{}, domain.ErrValidation
	}

	if p, ok := s.participants[participantID]; ok {
		return s.reconnectLocked(p, connectionID, displayName, photoRef), nil
	}

	switch s.status {
	case domain.StatusCompleted, domain.StatusInterrupted:
		return domain.JoinResult{}, domain.ErrSessionClosed
	case domain.StatusInProgress, domain.StatusPaused:
		if !s.cfg.AllowLateJoin {
			return domain.JoinResult{}, domain.ErrLateJoinDisabled
		}
	}

	now := s.deps.clock.Now()
	p := &domain.Participant{
		ParticipantID: participantID,
		DisplayName:   displayName,
		PhotoRef:      photoRef,
		ConnectionID:  connectionID,
		Connected:     true,
		JoinedAt:      now,
	}
	s.participants[participantID] = p
	s.deps.persist.EnqueueParticipant(s.code, *p)
	s.notifyHostLocked(*p)
	s.deps.log.Info().Str("session", s.code).Str("participant", participantID).Msg("participant joined")

	res := s.joinResultLocked(p)
	res.Roster = s.rosterLocked()
	return res, nil
}

// reconnectLocked refreshes connection identity and rebuilds the
// participant's view of the current state. Score and counters are preserved.
func (s *Session) reconnectLocked(p *domain.Participant, connectionID, displayName, photoRef string) domain.JoinResult {
	p.ConnectionID = connectionID
	p.Connected = true
	if displayName != "" {
		p.DisplayName = displayName
	}
	if photoRef != "" {
		p.PhotoRef = photoRef
	}
	s.deps.persist.EnqueueParticipant(s.code, *p)
	s.notifyHostLocked(*p)
	s.deps.log.Info().Str("session", s.code).Str("participant", p.ParticipantID).Msg("participant reconnected")

	res := s.joinResultLocked(p)
	res.Reconnected = true
	return res
}

func (s *Session) hostRejoinLocked(connectionID string) domain.JoinResult {
	s.hostConnectionID = connectionID
	s.cancelLocked(&s.graceTimer)
	if s.status == domain.StatusPaused {
		s.resumeLocked()
	}
	res := s.joinResultLocked(nil)
	res.Reconnected = true
	res.Roster = s.rosterLocked()
	return res
}

func (s *Session) joinResultLocked(p *domain.Participant) domain.JoinResult {
	res := domain.JoinResult{
		SessionCode:          s.code,
		QuizTitle:            s.quizTitle,
		Status:               s.status,
		CurrentQuestionIndex: s.currentIndex,
		QuestionCount:        len(s.questions),
		TimePerQuestionSec:   s.cfg.TimePerQuestionSec,
	}
	if p != nil {
		res.Score = p.Score
		res.AlreadyAnswered = p.HasAnswered
	}
	if s.questionOpen && s.currentIndex >= 0 {
		view := domain.ViewOf(s.questions[s.currentIndex], s.currentIndex, s.cfg.TimePerQuestion)
		res.Question = &view
		res.RemainingTimeMs = s.remainingLocked().Milliseconds()
	}
	return res
}

// SubmitAnswer records a participant's answer for the open question. The
// first accepted write wins; correctness is not revealed in the reply.
func (s *Session) SubmitAnswer(participantID string, questionIndex int, selected []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != domain.StatusInProgress || !s.questionOpen {
		return domain.ErrInvalidState
	}
	if questionIndex != s.currentIndex {
		return domain.ErrInvalidState
	}
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if p.HasAnswered {
		return domain.ErrDuplicateAnswer
	}

	// Reject past the limit even if the server timer has not fired yet,
	// bounding the race between expiry and in-flight submissions.
	latency := s.elapsedLocked()
	if latency > s.cfg.TimePerQuestion+s.settings.SkewTolerance {
		return domain.ErrLateAnswer
	}

	question := s.questions[s.currentIndex]
	result := Score(question, selected, latency, s.cfg.TimePerQuestion, s.cfg.BasePoints, s.cfg.MaxSpeedBonus)

	p.HasAnswered = true
	p.CurrentAnswer = selected
	p.AnsweredCount++
	if result.Correct {
		p.Score += result.Points
		p.CorrectCount++
	}
	s.currentResults[participantID] = result

	s.deps.persist.EnqueueAnswer(domain.AnswerRecord{
		ID:                uuid.NewString(),
		SessionCode:       s.code,
		ParticipantID:     participantID,
		QuestionIndex:     s.currentIndex,
		QuestionID:        question.ID,
		SelectedOptions:   selected,
		Correct:           result.Correct,
		ResponseLatencyMs: latency.Milliseconds(),
		PointsAwarded:     result.Points,
		SpeedBonus:        result.SpeedBonus,
		SubmittedAt:       s.deps.clock.Now(),
	})
	s.deps.persist.EnqueueParticipant(s.code, *p)
	return nil
}

// Advance moves to the next question: pending timer cancelled, per-question
// answer state cleared, index incremented, timer armed. The first call
// moves the session out of the lobby.
func (s *Session) Advance(id Identity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(id); err != nil {
		return 0, err
	}
	if s.status != domain.StatusLobby && s.status != domain.StatusInProgress {
		return 0, domain.ErrInvalidState
	}
	if s.currentIndex+1 >= len(s.questions) {
		return 0, domain.ErrOutOfQuestions
	}

	s.cancelLocked(&s.questionTimer)
	s.cancelLocked(&s.completeTimer)
	for _, p := range s.participants {
		p.HasAnswered = false
		p.CurrentAnswer = nil
	}
	s.currentResults = make(map[string]domain.ScoreResult)

	s.currentIndex++
	s.questionStartedAt = s.deps.clock.Now()
	s.elapsedBeforePause = 0
	s.questionOpen = true
	if s.status == domain.StatusLobby {
		s.status = domain.StatusInProgress
		s.deps.persist.EnqueueSession(s.snapshotLocked())
	}

	view := domain.ViewOf(s.questions[s.currentIndex], s.currentIndex, s.cfg.TimePerQuestion)
	s.deps.broadcaster.BroadcastToSession(s.code, Event{Type: EventQuestionStart, Payload: QuestionStartPayload{
		Question:       view,
		QuestionCount:  len(s.questions),
		IsLastQuestion: s.currentIndex == len(s.questions)-1,
	}})

	s.armLocked(&s.questionTimer, s.cfg.TimePerQuestion, s.questionTimeout)
	s.deps.log.Info().Str("session", s.code).Int("question", s.currentIndex).Msg("question started")
	return s.currentIndex, nil
}

// Skip ends the open question immediately at the host's request.
func (s *Session) Skip(id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(id); err != nil {
		return err
	}
	if s.status != domain.StatusInProgress || !s.questionOpen {
		return domain.ErrInvalidState
	}
	s.endQuestionLocked()
	return nil
}

// End completes the session at the host's request, whatever question it is on.
func (s *Session) End(id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireHostLocked(id); err != nil {
		return err
	}
	if s.status == domain.StatusCompleted || s.status == domain.StatusInterrupted {
		return domain.ErrInvalidState
	}
	s.completeLocked()
	return nil
}

// Snapshot returns the full session state. Host only.
func (s *Session) Snapshot(id Identity) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireHostLocked(id); err != nil {
		return domain.SessionSnapshot{}, err
	}
	return s.snapshotLocked(), nil
}

// Leaderboard returns the current standings over a consistent snapshot.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked(s.settings.LeaderboardSize)
}

// Leave marks a participant as gone. The registry entry and its score stay.
func (s *Session) Leave(participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[participantID]; ok {
		s.participantGoneLocked(p)
	}
}

// HandleDisconnect reacts to a dropped transport connection.
func (s *Session) HandleDisconnect(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connectionID == s.hostConnectionID && s.hostConnectionID != "" {
		s.hostDisconnectLocked()
		return
	}
	for _, p := range s.participants {
		if p.ConnectionID == connectionID && p.Connected {
			s.participantGoneLocked(p)
			return
		}
	}
}

func (s *Session) participantGoneLocked(p *domain.Participant) {
	p.Connected = false
	p.ConnectionID = ""
	p.DisconnectedAt = s.deps.clock.Now()
	s.deps.persist.EnqueueParticipant(s.code, *p)
	s.notifyHostLocked(*p)
	s.deps.log.Info().Str("session", s.code).Str("participant", p.ParticipantID).Msg("participant disconnected")
}

// hostDisconnectLocked freezes an in-progress session and arms the grace
// timer. In the lobby the grace timer runs without a status change.
func (s *Session) hostDisconnectLocked() {
	s.hostConnectionID = ""
	switch s.status {
	case domain.StatusInProgress:
		if s.questionOpen {
			elapsed := s.elapsedLocked()
			s.elapsedBeforePause = elapsed
			s.frozenRemaining = s.cfg.TimePerQuestion - elapsed
			if s.frozenRemaining < 0 {
				s.frozenRemaining = 0
			}
		}
		s.cancelLocked(&s.questionTimer)
		s.cancelLocked(&s.completeTimer)
		s.status = domain.StatusPaused
		s.deps.persist.EnqueueSession(s.snapshotLocked())
		s.deps.broadcaster.BroadcastToSession(s.code, Event{Type: EventSessionPaused, Payload: SessionPausedPayload{
			QuestionIndex:   s.currentIndex,
			RemainingTimeMs: s.frozenRemaining.Milliseconds(),
			GracePeriodMs:   s.settings.GracePeriod.Milliseconds(),
		}})
		s.armLocked(&s.graceTimer, s.settings.GracePeriod, s.graceTimeout)
		s.deps.log.Warn().Str("session", s.code).Msg("host disconnected, session paused")
	case domain.StatusLobby:
		s.armLocked(&s.graceTimer, s.settings.GracePeriod, s.graceTimeout)
		s.deps.log.Warn().Str("session", s.code).Msg("host disconnected in lobby, grace timer armed")
	}
}

// resumeLocked brings a paused session back. The question timer restarts
// from the frozen remainder and the start timestamp is re-based, so latency
// keeps counting pre-pause plus post-resume time; the clock is never
// silently resumed stale.
func (s *Session) resumeLocked() {
	s.status = domain.StatusInProgress
	remaining := s.frozenRemaining
	if s.questionOpen {
		s.questionStartedAt = s.deps.clock.Now()
		s.armLocked(&s.questionTimer, remaining, s.questionTimeout)
	} else if s.completePending {
		// The pause landed inside the reveal window; completion still owes
		// the room, so restart the reveal delay.
		s.armLocked(&s.completeTimer, s.settings.RevealDelay, s.completeTimeout)
	}
	s.frozenRemaining = 0
	s.deps.persist.EnqueueSession(s.snapshotLocked())
	s.deps.broadcaster.BroadcastToSession(s.code, Event{Type: EventSessionResumed, Payload: SessionResumedPayload{
		QuestionIndex:   s.currentIndex,
		RemainingTimeMs: remaining.Milliseconds(),
	}})
	s.deps.log.Info().Str("session", s.code).Msg("host reconnected, session resumed")
}

func (s *Session) questionTimeout(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.questionTimer.gen {
		return
	}
	if s.status == domain.StatusInProgress && s.questionOpen {
		s.endQuestionLocked()
	}
}

func (s *Session) graceTimeout(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.graceTimer.gen {
		return
	}
	if s.status == domain.StatusPaused || (s.status == domain.StatusLobby && s.hostConnectionID == "") {
		s.interruptLocked()
	}
}

func (s *Session) completeTimeout(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.completeTimer.gen {
		return
	}
	if s.status == domain.StatusInProgress && !s.questionOpen {
		s.completeLocked()
	}
}

// endQuestionLocked closes the open question: tallies options, reveals the
// answer key, pushes private results, and on the last question schedules
// completion after the reveal delay.
func (s *Session) endQuestionLocked() {
	s.questionOpen = false
	s.cancelLocked(&s.questionTimer)

	question := s.questions[s.currentIndex]
	tally := make(map[string]int, len(question.Options))
	for _, opt := range question.Options {
		tally[opt.ID] = 0
	}
	answered := 0
	for _, p := range s.participants {
		if !p.HasAnswered {
			continue
		}
		answered++
		for _, optID := range p.CurrentAnswer {
			tally[optID]++
		}
	}

	isLast := s.currentIndex == len(s.questions)-1
	payload := QuestionEndPayload{
		QuestionIndex:    s.currentIndex,
		QuestionID:       question.ID,
		CorrectOptionIDs: question.CorrectOptionIDs(),
		Explanation:      question.Explanation,
		OptionTally:      tally,
		AnsweredCount:    answered,
		IsLastQuestion:   isLast,
	}
	if s.cfg.ShowLeaderboardAfterEach {
		lb := s.leaderboardLocked(s.settings.LeaderboardSize)
		payload.Leaderboard = &lb
	}
	s.deps.broadcaster.BroadcastToSession(s.code, Event{Type: EventQuestionEnd, Payload: payload})

	for _, p := range s.participants {
		if !p.Connected || p.ConnectionID == "" {
			continue
		}
		result := s.currentResults[p.ParticipantID]
		s.deps.broadcaster.SendToConnection(p.ConnectionID, Event{Type: EventPersonalResult, Payload: PersonalResultPayload{
			QuestionIndex: s.currentIndex,
			Answered:      p.HasAnswered,
			Correct:       result.Correct,
			PointsAwarded: result.Points,
			SpeedBonus:    result.SpeedBonus,
			TotalScore:    p.Score,
		}})
	}

	s.deps.log.Info().Str("session", s.code).Int("question", s.currentIndex).Int("answered", answered).Msg("question ended")
	if isLast {
		s.completePending = true
		s.armLocked(&s.completeTimer, s.settings.RevealDelay, s.completeTimeout)
	}
}

func (s *Session) completeLocked() {
	s.cancelAllTimersLocked()
	s.questionOpen = false
	s.completePending = false
	s.status = domain.StatusCompleted

	final := s.leaderboardLocked(0)
	s.deps.persist.EnqueueSession(s.snapshotLocked())
	s.deps.broadcaster.BroadcastToSession(s.code, Event{Type: EventSessionComplete, Payload: SessionCompletePayload{Leaderboard: final}})

	ranks := make(map[string]int, len(final.Entries))
	for _, entry := range final.Entries {
		ranks[entry.ParticipantID] = entry.Rank
	}
	for _, p := range s.participants {
		if !p.Connected || p.ConnectionID == "" {
			continue
		}
		s.deps.broadcaster.SendToConnection(p.ConnectionID, Event{Type: EventPersonalFinal, Payload: PersonalFinalPayload{
			Score:        p.Score,
			CorrectCount: p.CorrectCount,
			Rank:         ranks[p.ParticipantID],
		}})
	}

	s.deps.scheduleRemoval(s, s.settings.CompletedRetention)
	s.deps.log.Info().Str("session", s.code).Msg("session completed")
}

func (s *Session) interruptLocked() {
	s.cancelAllTimersLocked()
	s.questionOpen = false
	s.completePending = false
	s.status = domain.StatusInterrupted
	s.deps.persist.EnqueueSession(s.snapshotLocked())
	s.deps.broadcaster.BroadcastToSession(s.code, Event{Type: EventSessionInterrupted, Payload: struct{}{}})
	s.deps.scheduleRemoval(s, s.settings.InterruptedRetention)
	s.deps.log.Warn().Str("session", s.code).Msg("session interrupted after grace period")
}

func (s *Session) cancelAllTimersLocked() {
	s.cancelLocked(&s.questionTimer)
	s.cancelLocked(&s.graceTimer)
	s.cancelLocked(&s.completeTimer)
}

func (s *Session) requireHostLocked(id Identity) error {
	if !id.Host() || id.Subject() != s.hostID {
		return domain.ErrNotHost
	}
	return nil
}

// elapsedLocked is the time the open question has been running, counting
// across a pause boundary.
func (s *Session) elapsedLocked() time.Duration {
	if !s.questionOpen {
		return 0
	}
	if s.status == domain.StatusPaused {
		return s.elapsedBeforePause
	}
	return s.elapsedBeforePause + s.deps.clock.Now().Sub(s.questionStartedAt)
}

func (s *Session) remainingLocked() time.Duration {
	if !s.questionOpen {
		return 0
	}
	if s.status == domain.StatusPaused {
		return s.frozenRemaining
	}
	remaining := s.cfg.TimePerQuestion - s.elapsedLocked()
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (s *Session) leaderboardLocked(limit int) domain.Leaderboard {
	snapshot := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		snapshot = append(snapshot, *p)
	}
	return Rank(s.code, snapshot, limit, s.deps.clock.Now())
}

func (s *Session) rosterLocked() []domain.RosterEntry {
	roster := make([]domain.RosterEntry, 0, len(s.participants))
	for _, p := range s.participants {
		roster = append(roster, domain.RosterEntry{
			ParticipantID: p.ParticipantID,
			DisplayName:   p.DisplayName,
			PhotoRef:      p.PhotoRef,
			Score:         p.Score,
			Connected:     p.Connected,
		})
	}
	return roster
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	return domain.SessionSnapshot{
		Code:                 s.code,
		QuizID:               s.quizID,
		QuizTitle:            s.quizTitle,
		HostID:               s.hostID,
		Status:               s.status,
		CurrentQuestionIndex: s.currentIndex,
		QuestionCount:        len(s.questions),
		Config:               s.cfg,
		CreatedAt:            s.createdAt,
		Participants:         s.rosterLocked(),
	}
}

func (s *Session) notifyHostLocked(p domain.Participant) {
	if s.hostConnectionID == "" {
		return
	}
	connected := 0
	for _, other := range s.participants {
		if other.Connected {
			connected++
		}
	}
	s.deps.broadcaster.SendToConnection(s.hostConnectionID, Event{Type: EventParticipantUpdate, Payload: ParticipantUpdatePayload{
		ParticipantID:    p.ParticipantID,
		DisplayName:      p.DisplayName,
		Connected:        p.Connected,
		ConnectedCount:   connected,
		ParticipantCount: len(s.participants),
	}})
}

// armLocked replaces any pending timer in slot and schedules fn with the
// slot's current generation. fn runs on its own goroutine, re-acquires the
// session lock, and must treat a stale generation as a no-op.
func (s *Session) armLocked(slot *oneShot, d time.Duration, fn func(gen uint64)) {
	s.cancelLocked(slot)
	gen := slot.gen
	done := make(chan struct{})
	slot.done = done
	timer := s.deps.clock.NewTimer(d)
	slot.timer = timer
	go func() {
		select {
		case <-timer.Chan():
			fn(gen)
		case <-done:
		}
	}()
}

// cancelLocked stops a pending timer. Safe to call on an empty or already
// cancelled slot.
func (s *Session) cancelLocked(slot *oneShot) {
	slot.gen++
	if slot.timer != nil {
		stopAndDrainTimer(slot.timer)
		slot.timer = nil
	}
	if slot.done != nil {
		close(slot.done)
		slot.done = nil
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already
// fired, per the time.Timer.Stop contract.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
