package domain

import "errors"

var (
	// ErrValidation is returned for malformed or incomplete commands.
	ErrValidation = errors.New("invalid command payload")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when no active session matches the code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrNotHost is returned when a non-host issues a host-only command.
	ErrNotHost = errors.New("command is restricted to the session host")
	// ErrInvalidState is returned when a command is not valid for the
	// session's current status.
	ErrInvalidState = errors.New("command invalid for session state")
	// ErrOutOfQuestions is returned when the host advances past the last question.
	ErrOutOfQuestions = errors.New("no questions remaining")
	// ErrDuplicateAnswer is returned on a second answer to the same question.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrLateAnswer is returned when an answer arrives past the time limit
	// plus the configured skew tolerance.
	ErrLateAnswer = errors.New("answer submitted after the time limit")
	// ErrSessionClosed is returned when joining a completed or interrupted session.
	ErrSessionClosed = errors.New("session is no longer joinable")
	// ErrLateJoinDisabled is returned when joining an in-progress session
	// that does not allow late joins.
	ErrLateJoinDisabled = errors.New("session does not allow joining in progress")
	// ErrCodeSpaceExhausted is returned when no unused session code could be
	// drawn within the retry budget.
	ErrCodeSpaceExhausted = errors.New("session code space exhausted")
)
