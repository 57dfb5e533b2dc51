package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
)

type wireEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsEnv struct {
	server    *httptest.Server
	manager   *app.SessionManager
	hostToken string
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()

	quiz := domain.Quiz{
		ID:    "quiz-1",
		Title: "Wire test",
		Questions: []domain.Question{
			{
				ID:     "q1",
				Prompt: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4", Correct: true},
				},
			},
			{
				ID:     "q2",
				Prompt: "Capital of France?",
				Options: []domain.Option{
					{ID: "o1", Text: "Paris", Correct: true},
					{ID: "o2", Text: "Lyon"},
				},
			},
		},
	}
	quizzes := memory.NewQuizCache(memory.NewStaticLoader(map[string]domain.Quiz{"quiz-1": quiz}), 5*time.Minute)

	persist := app.NewPersistenceQueue(memory.NewStore(), 128, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	persist.Run(ctx)

	hub := NewHub(zerolog.Nop())
	manager := app.NewSessionManager(quizzes, hub, persist, app.DefaultSettings())
	verifier := app.NewTokenVerifier("test-secret")
	handler := NewWSHandler(manager, hub, verifier, zerolog.Nop())

	server := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(func() {
		server.Close()
		cancel()
		persist.Close()
	})

	token, err := verifier.Issue("host-1", time.Hour)
	if err != nil {
		t.Fatalf("issue host token: %v", err)
	}
	return &wsEnv{server: server, manager: manager, hostToken: token}
}

func (env *wsEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s: %v", msgType, err)
	}
	if err := conn.WriteJSON(map[string]any{"type": msgType, "payload": json.RawMessage(raw)}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil drains frames until one of the wanted type arrives. Broadcasts
// interleave with command replies, so tests key on event types.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) wireEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var event wireEvent
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		if event.Type == eventType {
			return event
		}
		if event.Type == "error" {
			t.Fatalf("waiting for %s, got error frame: %s", eventType, event.Payload)
		}
	}
}

func decodePayload(t *testing.T, event wireEvent, into any) {
	t.Helper()
	if err := json.Unmarshal(event.Payload, into); err != nil {
		t.Fatalf("decode %s payload: %v", event.Type, err)
	}
}

func TestWSHostAndParticipantFlow(t *testing.T) {
	env := newWSEnv(t)

	host := env.dial(t)
	send(t, host, "session.create", map[string]string{"quizId": "quiz-1", "hostToken": env.hostToken})
	var created struct {
		SessionCode   string `json:"sessionCode"`
		QuizTitle     string `json:"quizTitle"`
		QuestionCount int    `json:"questionCount"`
	}
	decodePayload(t, readUntil(t, host, "session.create.ok"), &created)
	if created.SessionCode == "" || created.QuestionCount != 2 {
		t.Fatalf("unexpected create reply %+v", created)
	}

	participant := env.dial(t)
	send(t, participant, "session.join", map[string]string{
		"sessionCode":   created.SessionCode,
		"participantId": "u1",
		"displayName":   "Alice",
	})
	var joined domain.JoinResult
	decodePayload(t, readUntil(t, participant, "session.join.ok"), &joined)
	if joined.Status != domain.StatusLobby || joined.Reconnected {
		t.Fatalf("unexpected join result %+v", joined)
	}

	var update struct {
		ParticipantID string `json:"participantId"`
		Connected     bool   `json:"connected"`
	}
	decodePayload(t, readUntil(t, host, "participant.update"), &update)
	if update.ParticipantID != "u1" || !update.Connected {
		t.Fatalf("unexpected roster update %+v", update)
	}

	send(t, host, "question.next", map[string]string{"sessionCode": created.SessionCode})
	var started struct {
		Question domain.QuestionView `json:"question"`
	}
	decodePayload(t, readUntil(t, participant, "question.start"), &started)
	if started.Question.Index != 0 || started.Question.ID != "q1" {
		t.Fatalf("unexpected question %+v", started.Question)
	}
	readUntil(t, host, "question.next.ok")

	send(t, participant, "answer.submit", map[string]any{
		"sessionCode":    created.SessionCode,
		"questionIndex":  0,
		"selectedOption": "o2",
	})
	readUntil(t, participant, "answer.submit.ok")

	send(t, host, "question.skip", map[string]string{"sessionCode": created.SessionCode})
	var ended struct {
		CorrectOptionIDs []string       `json:"correctOptionIds"`
		OptionTally      map[string]int `json:"optionTally"`
		AnsweredCount    int            `json:"answeredCount"`
	}
	decodePayload(t, readUntil(t, participant, "question.end"), &ended)
	if len(ended.CorrectOptionIDs) != 1 || ended.CorrectOptionIDs[0] != "o2" {
		t.Fatalf("unexpected answer key %+v", ended.CorrectOptionIDs)
	}
	if ended.AnsweredCount != 1 || ended.OptionTally["o2"] != 1 {
		t.Fatalf("unexpected tally %+v", ended)
	}

	var personal struct {
		Correct    bool `json:"correct"`
		TotalScore int  `json:"totalScore"`
	}
	decodePayload(t, readUntil(t, participant, "question.personalResult"), &personal)
	if !personal.Correct || personal.TotalScore == 0 {
		t.Fatalf("unexpected personal result %+v", personal)
	}

	send(t, host, "session.end", map[string]string{"sessionCode": created.SessionCode})
	var complete struct {
		Leaderboard domain.Leaderboard `json:"leaderboard"`
	}
	decodePayload(t, readUntil(t, participant, "session.complete"), &complete)
	if len(complete.Leaderboard.Entries) != 1 || complete.Leaderboard.Entries[0].ParticipantID != "u1" {
		t.Fatalf("unexpected final standings %+v", complete.Leaderboard)
	}
	var final struct {
		Rank  int `json:"rank"`
		Score int `json:"score"`
	}
	decodePayload(t, readUntil(t, participant, "session.personalFinal"), &final)
	if final.Rank != 1 || final.Score != personal.TotalScore {
		t.Fatalf("unexpected final summary %+v", final)
	}
}

func TestWSCreateRejectsBadToken(t *testing.T) {
	env := newWSEnv(t)
	host := env.dial(t)
	send(t, host, "session.create", map[string]string{"quizId": "quiz-1", "hostToken": "garbage"})

	_ = host.SetReadDeadline(time.Now().Add(3 * time.Second))
	var event wireEvent
	if err := host.ReadJSON(&event); err != nil {
		t.Fatalf("read: %v", err)
	}
	if event.Type != "error" {
		t.Fatalf("expected error frame, got %s", event.Type)
	}
	var payload struct {
		Code string `json:"code"`
	}
	decodePayload(t, event, &payload)
	if payload.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %s", payload.Code)
	}
}

func TestWSJoinUnknownSession(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t)
	send(t, conn, "session.join", map[string]string{
		"sessionCode":   "NOSUCH",
		"participantId": "u1",
		"displayName":   "Alice",
	})

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var event wireEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload struct {
		Code string `json:"code"`
	}
	decodePayload(t, event, &payload)
	if event.Type != "error" || payload.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND error, got %s %s", event.Type, payload.Code)
	}
}

func TestWSDuplicateAnswerReported(t *testing.T) {
	env := newWSEnv(t)

	host := env.dial(t)
	send(t, host, "session.create", map[string]string{"quizId": "quiz-1", "hostToken": env.hostToken})
	var created struct {
		SessionCode string `json:"sessionCode"`
	}
	decodePayload(t, readUntil(t, host, "session.create.ok"), &created)

	participant := env.dial(t)
	send(t, participant, "session.join", map[string]string{
		"sessionCode":   created.SessionCode,
		"participantId": "u1",
		"displayName":   "Alice",
	})
	readUntil(t, participant, "session.join.ok")

	send(t, host, "question.next", map[string]string{"sessionCode": created.SessionCode})
	readUntil(t, participant, "question.start")

	answer := map[string]any{"sessionCode": created.SessionCode, "questionIndex": 0, "selectedOption": "o1"}
	send(t, participant, "answer.submit", answer)
	readUntil(t, participant, "answer.submit.ok")

	send(t, participant, "answer.submit", answer)
	_ = participant.SetReadDeadline(time.Now().Add(3 * time.Second))
	var event wireEvent
	if err := participant.ReadJSON(&event); err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload struct {
		Code string `json:"code"`
	}
	decodePayload(t, event, &payload)
	if event.Type != "error" || payload.Code != "DUPLICATE" {
		t.Fatalf("expected DUPLICATE error, got %s %s", event.Type, payload.Code)
	}
}

func TestWSAnswerRejectsMismatchedSessionCode(t *testing.T) {
	env := newWSEnv(t)

	host := env.dial(t)
	send(t, host, "session.create", map[string]string{"quizId": "quiz-1", "hostToken": env.hostToken})
	var created struct {
		SessionCode string `json:"sessionCode"`
	}
	decodePayload(t, readUntil(t, host, "session.create.ok"), &created)

	participant := env.dial(t)
	send(t, participant, "session.join", map[string]string{
		"sessionCode":   created.SessionCode,
		"participantId": "u1",
		"displayName":   "Alice",
	})
	readUntil(t, participant, "session.join.ok")

	send(t, host, "question.next", map[string]string{"sessionCode": created.SessionCode})
	readUntil(t, participant, "question.start")

	send(t, participant, "answer.submit", map[string]any{
		"sessionCode":    "ZZZZZZ",
		"questionIndex":  0,
		"selectedOption": "o2",
	})
	_ = participant.SetReadDeadline(time.Now().Add(3 * time.Second))
	var event wireEvent
	if err := participant.ReadJSON(&event); err != nil {
		t.Fatalf("read: %v", err)
	}
	var payload struct {
		Code string `json:"code"`
	}
	decodePayload(t, event, &payload)
	if event.Type != "error" || payload.Code != "VALIDATION" {
		t.Fatalf("expected VALIDATION error, got %s %s", event.Type, payload.Code)
	}

	// The bound session must still accept the answer afterwards.
	send(t, participant, "answer.submit", map[string]any{
		"sessionCode":    created.SessionCode,
		"questionIndex":  0,
		"selectedOption": "o2",
	})
	readUntil(t, participant, "answer.submit.ok")
}

func TestWSParticipantDropNotifiesHost(t *testing.T) {
	env := newWSEnv(t)

	host := env.dial(t)
	send(t, host, "session.create", map[string]string{"quizId": "quiz-1", "hostToken": env.hostToken})
	var created struct {
		SessionCode string `json:"sessionCode"`
	}
	decodePayload(t, readUntil(t, host, "session.create.ok"), &created)

	participant := env.dial(t)
	send(t, participant, "session.join", map[string]string{
		"sessionCode":   created.SessionCode,
		"participantId": "u1",
		"displayName":   "Alice",
	})
	readUntil(t, participant, "session.join.ok")
	readUntil(t, host, "participant.update")

	_ = participant.Close()

	var update struct {
		ParticipantID string `json:"participantId"`
		Connected     bool   `json:"connected"`
	}
	decodePayload(t, readUntil(t, host, "participant.update"), &update)
	if update.ParticipantID != "u1" || update.Connected {
		t.Fatalf("expected disconnect notification, got %+v", update)
	}

	session, ok := env.manager.Get(created.SessionCode)
	if !ok {
		t.Fatalf("session must survive a participant drop")
	}
	lb := session.Leaderboard()
	if len(lb.Entries) != 1 {
		t.Fatalf("participant entry must survive the drop, got %+v", lb.Entries)
	}
}
