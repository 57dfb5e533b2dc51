package domain

import "time"

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	StatusLobby       SessionStatus = "lobby"
	StatusInProgress  SessionStatus = "in-progress"
	StatusPaused      SessionStatus = "paused"
	StatusCompleted   SessionStatus = "completed"
	StatusInterrupted SessionStatus = "interrupted"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models a question with one or more correct options.
// Multi-select questions are answered by submitting the whole correct set.
type Question struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Explanation string   `json:"explanation,omitempty"`
	Options     []Option `json:"options"`
	Points      int      `json:"points"` // overrides the session base points when > 0
}

// CorrectOptionIDs returns the ids of every correct option.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// SessionConfig holds the per-session game settings fixed at creation.
type SessionConfig struct {
	TimePerQuestion          time.Duration `json:"-"`
	TimePerQuestionSec       int           `json:"timePerQuestionSec"`
	BasePoints               int           `json:"basePoints"`
	MaxSpeedBonus            int           `json:"maxSpeedBonus"`
	AllowLateJoin            bool          `json:"allowLateJoin"`
	ShowLeaderboardAfterEach bool          `json:"showLeaderboardAfterEach"`
}

// Participant is a quiz-taker registered in a session, keyed by a stable
// client-supplied identity. Entries survive disconnects; only session
// removal drops them.
type Participant struct {
	ParticipantID  string    `json:"participantId"`
	DisplayName    string    `json:"displayName"`
	PhotoRef       string    `json:"photoRef,omitempty"`
	ConnectionID   string    `json:"-"`
	Score          int       `json:"score"`
	CorrectCount   int       `json:"correctCount"`
	AnsweredCount  int       `json:"answeredCount"`
	CurrentAnswer  []string  `json:"-"`
	HasAnswered    bool      `json:"-"`
	Connected      bool      `json:"connected"`
	DisconnectedAt time.Time `json:"-"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// AnswerRecord is the append-only durable trace of one accepted answer.
type AnswerRecord struct {
	ID                string    `json:"id"`
	SessionCode       string    `json:"sessionCode"`
	ParticipantID     string    `json:"participantId"`
	QuestionIndex     int       `json:"questionIndex"`
	QuestionID        string    `json:"questionId"`
	SelectedOptions   []string  `json:"selectedOptions"`
	Correct           bool      `json:"correct"`
	ResponseLatencyMs int64     `json:"responseLatencyMs"`
	PointsAwarded     int       `json:"pointsAwarded"`
	SpeedBonus        int       `json:"speedBonus"`
	SubmittedAt       time.Time `json:"submittedAt"`
}

// ScoreResult is the outcome of scoring a single submission.
type ScoreResult struct {
	Correct    bool `json:"correct"`
	Points     int  `json:"points"`
	SpeedBonus int  `json:"speedBonus"`
}

// LeaderboardEntry is one ranked row. Rank is dense: entries share a rank
// only when both score and correct count are exactly equal.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Score         int    `json:"score"`
	CorrectCount  int    `json:"correctCount"`
}

// Leaderboard captures the ordered standings of a session.
type Leaderboard struct {
	SessionCode string             `json:"sessionCode"`
	Entries     []LeaderboardEntry `json:"entries"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// QuestionView is a question as shown to participants: the answer key is
// withheld until the question ends.
type QuestionView struct {
	Index       int          `json:"index"`
	ID          string       `json:"id"`
	Prompt      string       `json:"prompt"`
	Options     []OptionView `json:"options"`
	TimeLimitMs int64        `json:"timeLimitMs"`
}

// OptionView is an option stripped of its correctness flag.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ViewOf builds the participant-facing view of a question.
func ViewOf(q Question, index int, timeLimit time.Duration) QuestionView {
	opts := make([]OptionView, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, OptionView{ID: o.ID, Text: o.Text})
	}
	return QuestionView{
		Index:       index,
		ID:          q.ID,
		Prompt:      q.Prompt,
		Options:     opts,
		TimeLimitMs: timeLimit.Milliseconds(),
	}
}

// RosterEntry is the lobby-facing summary of a participant.
type RosterEntry struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	PhotoRef      string `json:"photoRef,omitempty"`
	Score         int    `json:"score"`
	Connected     bool   `json:"connected"`
}

// JoinResult is returned to a joining or reconnecting client.
type JoinResult struct {
	SessionCode          string        `json:"sessionCode"`
	QuizTitle            string        `json:"quizTitle"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	QuestionCount        int           `json:"questionCount"`
	TimePerQuestionSec   int           `json:"timePerQuestionSec"`
	Score                int           `json:"score"`
	Reconnected          bool          `json:"reconnected"`
	AlreadyAnswered      bool          `json:"alreadyAnswered"`
	RemainingTimeMs      int64         `json:"remainingTimeMs,omitempty"`
	Question             *QuestionView `json:"question,omitempty"`
	Roster               []RosterEntry `json:"roster,omitempty"`
}

// SessionSnapshot is the full externally visible state of a session. It
// doubles as the unit mirrored to the durable store on status transitions.
type SessionSnapshot struct {
	Code                 string        `json:"code"`
	QuizID               string        `json:"quizId"`
	QuizTitle            string        `json:"quizTitle"`
	HostID               string        `json:"hostId"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	QuestionCount        int           `json:"questionCount"`
	Config               SessionConfig `json:"config"`
	CreatedAt            time.Time     `json:"createdAt"`
	Participants         []RosterEntry `json:"participants"`
}
