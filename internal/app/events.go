package app

import "livequiz-service/internal/domain"

// Event is one server-originated message, either broadcast to a session
// room or delivered to a single connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Broadcaster fans events out to connected clients. Implementations must
// not block the caller; slow consumers are the transport's problem.
type Broadcaster interface {
	BroadcastToSession(code string, event Event)
	SendToConnection(connectionID string, event Event)
}

// Event types pushed by the server.
const (
	EventQuestionStart      = "question.start"
	EventQuestionEnd        = "question.end"
	EventSessionPaused      = "session.paused"
	EventSessionResumed     = "session.resumed"
	EventSessionInterrupted = "session.interrupted"
	EventSessionComplete    = "session.complete"
	EventParticipantUpdate  = "participant.update"
	EventPersonalResult     = "question.personalResult"
	EventPersonalFinal      = "session.personalFinal"
)

// QuestionStartPayload announces an open question to the room. The answer
// key is withheld.
type QuestionStartPayload struct {
	Question       domain.QuestionView `json:"question"`
	QuestionCount  int                 `json:"questionCount"`
	IsLastQuestion bool                `json:"isLastQuestion"`
}

// QuestionEndPayload reveals the answer key and aggregates after a question closes.
type QuestionEndPayload struct {
	QuestionIndex    int                 `json:"questionIndex"`
	QuestionID       string              `json:"questionId"`
	CorrectOptionIDs []string            `json:"correctOptionIds"`
	Explanation      string              `json:"explanation,omitempty"`
	OptionTally      map[string]int      `json:"optionTally"`
	AnsweredCount    int                 `json:"answeredCount"`
	Leaderboard      *domain.Leaderboard `json:"leaderboard,omitempty"`
	IsLastQuestion   bool                `json:"isLastQuestion"`
}

// SessionPausedPayload tells the room the host dropped and a grace window is running.
type SessionPausedPayload struct {
	QuestionIndex   int   `json:"questionIndex"`
	RemainingTimeMs int64 `json:"remainingTimeMs"`
	GracePeriodMs   int64 `json:"gracePeriodMs"`
}

// SessionResumedPayload tells the room the host is back. The question timer
// restarts from the frozen remainder carried in RemainingTimeMs.
type SessionResumedPayload struct {
	QuestionIndex   int   `json:"questionIndex"`
	RemainingTimeMs int64 `json:"remainingTimeMs"`
}

// SessionCompletePayload carries the final standings.
type SessionCompletePayload struct {
	Leaderboard domain.Leaderboard `json:"leaderboard"`
}

// ParticipantUpdatePayload is sent to the host when a participant joins,
// leaves, or changes connectivity.
type ParticipantUpdatePayload struct {
	ParticipantID    string `json:"participantId"`
	DisplayName      string `json:"displayName"`
	Connected        bool   `json:"connected"`
	ConnectedCount   int    `json:"connectedCount"`
	ParticipantCount int    `json:"participantCount"`
}

// PersonalResultPayload is the private per-participant outcome of one question.
type PersonalResultPayload struct {
	QuestionIndex int  `json:"questionIndex"`
	Answered      bool `json:"answered"`
	Correct       bool `json:"correct"`
	PointsAwarded int  `json:"pointsAwarded"`
	SpeedBonus    int  `json:"speedBonus"`
	TotalScore    int  `json:"totalScore"`
}

// PersonalFinalPayload is the private per-participant summary at completion.
type PersonalFinalPayload struct {
	Score        int `json:"score"`
	CorrectCount int `json:"correctCount"`
	Rank         int `json:"rank"`
}
