package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// WSHandler upgrades connections and dispatches the real-time command
// surface against the session manager.
type WSHandler struct {
	manager  *app.SessionManager
	hub      *Hub
	verifier *app.TokenVerifier
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(manager *app.SessionManager, hub *Hub, verifier *app.TokenVerifier, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		manager:  manager,
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createPayload struct {
	QuizID    string `json:"quizId"`
	HostToken string `json:"hostToken"`
}

type createReply struct {
	SessionCode        string `json:"sessionCode"`
	QuizTitle          string `json:"quizTitle"`
	QuestionCount      int    `json:"questionCount"`
	TimePerQuestionSec int    `json:"timePerQuestionSec"`
}

type joinPayload struct {
	SessionCode   string `json:"sessionCode"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	PhotoRef      string `json:"photoRef"`
	HostToken     string `json:"hostToken"`
}

type sessionPayload struct {
	SessionCode string `json:"sessionCode"`
}

type answerPayload struct {
	SessionCode     string   `json:"sessionCode"`
	QuestionIndex   int      `json:"questionIndex"`
	SelectedOption  string   `json:"selectedOption"`
	SelectedOptions []string `json:"selectedOptions"`
}

func (p answerPayload) selected() []string {
	if len(p.SelectedOptions) > 0 {
		return p.SelectedOptions
	}
	if p.SelectedOption != "" {
		return []string{p.SelectedOption}
	}
	return nil
}

type nextReply struct {
	QuestionIndex int `json:"questionIndex"`
}

type ackReply struct {
	SessionCode string `json:"sessionCode"`
}

type errorPayload struct {
	Command string `json:"command,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the command loop until the
// connection drops, then hands the disconnect to the session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	c := h.hub.register(uuid.NewString(), conn)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for event := range c.send {
			if err := conn.WriteJSON(event); err != nil {
				h.log.Debug().Err(err).Str("connection", c.id).Msg("ws write error")
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, c, inbound)
	}

	code, _ := c.binding()
	h.hub.unregister(c)
	if code != "" {
		if session, ok := h.manager.Get(code); ok {
			session.HandleDisconnect(c.id)
		}
	}
	<-writerDone
}

// dispatch routes one inbound command. Panics are contained per command:
// the session must survive a bad frame.
func (h *WSHandler) dispatch(r *http.Request, c *client, inbound inboundMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			code, _ := c.binding()
			h.log.Error().Interface("panic", rec).Str("command", inbound.Type).Str("session", code).Msg("handler panic recovered")
			h.sendError(c, inbound.Type, domain.ErrInvalidState)
		}
	}()

	switch inbound.Type {
	case "session.create":
		h.handleCreate(r, c, inbound)
	case "session.join":
		h.handleJoin(c, inbound)
	case "question.next":
		h.handleNext(c, inbound)
	case "answer.submit":
		h.handleAnswer(c, inbound)
	case "question.skip":
		h.handleSkip(c, inbound)
	case "session.end":
		h.handleEnd(c, inbound)
	case "session.state":
		h.handleState(c, inbound)
	case "session.leave":
		h.handleLeave(c, inbound)
	default:
		h.sendError(c, inbound.Type, domain.ErrValidation)
	}
}

func (h *WSHandler) handleCreate(r *http.Request, c *client, inbound inboundMessage) {
	var payload createPayload
	if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuizID == "" {
		h.sendError(c, inbound.Type, domain.ErrValidation)
		return
	}
	identity, err := h.verifier.Verify(payload.HostToken)
	if err != nil {
		h.sendError(c, inbound.Type, domain.ErrNotHost)
		return
	}

	session, err := h.manager.CreateSession(r.Context(), identity.Subject(), c.id, payload.QuizID)
	if err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	c.bind(session.Code(), identity)
	h.hub.joinRoom(c, session.Code())

	snapshot, _ := session.Snapshot(identity)
	h.reply(c, inbound.Type, createReply{
		SessionCode:        session.Code(),
		QuizTitle:          session.QuizTitle(),
		QuestionCount:      session.QuestionCount(),
		TimePerQuestionSec: snapshot.Config.TimePerQuestionSec,
	})
}

func (h *WSHandler) handleJoin(c *client, inbound inboundMessage) {
	var payload joinPayload
	if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.SessionCode == "" {
		h.sendError(c, inbound.Type, domain.ErrValidation)
		return
	}
	session, ok := h.manager.Get(payload.SessionCode)
	if !ok {
		h.sendError(c, inbound.Type, domain.ErrSessionNotFound)
		return
	}

	var identity app.Identity
	if payload.HostToken != "" {
		verified, err := h.verifier.Verify(payload.HostToken)
		if err != nil {
			h.sendError(c, inbound.Type, domain.ErrNotHost)
			return
		}
		identity = verified
	} else {
		if payload.ParticipantID == "" || payload.DisplayName == "" {
			h.sendError(c, inbound.Type, domain.ErrValidation)
			return
		}
		identity = app.ClaimedIdentity{ID: payload.ParticipantID}
	}

	result, err := session.Join(identity, c.id, payload.DisplayName, payload.PhotoRef)
	if err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	c.bind(session.Code(), identity)
	h.hub.joinRoom(c, session.Code())
	h.reply(c, inbound.Type, result)
}

func (h *WSHandler) handleNext(c *client, inbound inboundMessage) {
	session, identity, err := h.boundSession(c, inbound.Payload)
	if err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	index, err := session.Advance(identity)
	if err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	h.reply(c, inbound.Type, nextReply{QuestionIndex: index})
}

func (h *WSHandler) handleAnswer(c *client, inbound inboundMessage) {
	var payload answerPayload
	if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
		h.sendError(c, inbound.Type, domain.ErrValidation)
		return
	}
	selected := payload.selected()
	if len(selected) == 0 {
		h.sendError(c, inbound.Type, domain.ErrValidation)
		return
	}
	code, identity := c.binding()
	if identity == nil || code == "" {
		h.sendError(c, inbound.Type, domain.ErrParticipantNotFound)
		return
	}
	if payload.SessionCode != "" && payload.SessionCode != code {
		h.sendError(c, inbound.Type, domain.ErrValidation)
		return
	}
	session, ok := h.manager.Get(code)
	if !ok {
		h.sendError(c, inbound.Type, domain.ErrSessionNotFound)
		return
	}
	// The ack reveals nothing about correctness; results arrive with question.end.
	if err := session.SubmitAnswer(identity.Subject(), payload.QuestionIndex, selected); err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	h.reply(c, inbound.Type, ackReply{SessionCode: code})
}

func (h *WSHandler) handleSkip(c *client, inbound inboundMessage) {
	session, identity, err := h.boundSession(c, inbound.Payload)
	if err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	if err := session.Skip(identity); err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	h.reply(c, inbound.Type, ackReply{SessionCode: session.Code()})
}

func (h *WSHandler) handleEnd(c *client, inbound inboundMessage) {
	session, identity, err := h.boundSession(c, inbound.Payload)
	if err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	if err := session.End(identity); err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	h.reply(c, inbound.Type, ackReply{SessionCode: session.Code()})
}

func (h *WSHandler) handleState(c *client, inbound inboundMessage) {
	session, identity, err := h.boundSession(c, inbound.Payload)
	if err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	snapshot, err := session.Snapshot(identity)
	if err != nil {
		h.sendError(c, inbound.Type, err)
		return
	}
	h.reply(c, inbound.Type, snapshot)
}

func (h *WSHandler) handleLeave(c *client, inbound inboundMessage) {
	code, identity := c.binding()
	if code == "" || identity == nil {
		return
	}
	if session, ok := h.manager.Get(code); ok {
		session.Leave(identity.Subject())
	}
}

// boundSession resolves the session a host command targets, preferring the
// payload's sessionCode and falling back to the connection binding.
func (h *WSHandler) boundSession(c *client, raw json.RawMessage) (*app.Session, app.Identity, error) {
	var payload sessionPayload
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}
	code, identity := c.binding()
	if payload.SessionCode != "" {
		code = payload.SessionCode
	}
	if code == "" {
		return nil, nil, domain.ErrValidation
	}
	if identity == nil {
		return nil, nil, domain.ErrNotHost
	}
	session, ok := h.manager.Get(code)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	return session, identity, nil
}

func (h *WSHandler) reply(c *client, command string, payload any) {
	h.hub.deliver(c, app.Event{Type: command + ".ok", Payload: payload})
}

func (h *WSHandler) sendError(c *client, command string, err error) {
	h.hub.deliver(c, app.Event{Type: "error", Payload: errorPayload{
		Command: command,
		Code:    errorCode(err),
		Message: err.Error(),
	}})
}

// errorCode maps domain errors to wire codes. Anything unrecognized is a
// state error; command failures never tear the session down.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "VALIDATION"
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		return "NOT_FOUND"
	case errors.Is(err, domain.ErrNotHost):
		return "UNAUTHORIZED"
	case errors.Is(err, domain.ErrDuplicateAnswer):
		return "DUPLICATE"
	case errors.Is(err, domain.ErrLateAnswer):
		return "LATE"
	case errors.Is(err, domain.ErrCodeSpaceExhausted):
		return "CAPACITY"
	default:
		return "STATE"
	}
}
