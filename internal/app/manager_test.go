package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"livequiz-service/internal/domain"
)

func TestCreateSessionCodesAreUnique(t *testing.T) {
	env := newTestEnv(t, testSettings())

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		session, err := env.manager.CreateSession(context.Background(), "host-1", "conn-host", "quiz-1")
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if !codePattern.MatchString(session.Code()) {
			t.Fatalf("code %q outside the alphabet", session.Code())
		}
		if seen[session.Code()] {
			t.Fatalf("duplicate code %q", session.Code())
		}
		seen[session.Code()] = true
	}
}

func TestCreateSessionRetriesCollidingCodes(t *testing.T) {
	env := newTestEnv(t, testSettings())
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	env.manager.newCode = func() string {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code
	}

	first, err := env.manager.CreateSession(context.Background(), "host-1", "conn-1", "quiz-1")
	if err != nil || first.Code() != "AAAAAA" {
		t.Fatalf("expected AAAAAA, got %v err=%v", first, err)
	}
	second, err := env.manager.CreateSession(context.Background(), "host-1", "conn-2", "quiz-1")
	if err != nil {
		t.Fatalf("expected retry past collision: %v", err)
	}
	if second.Code() != "BBBBBB" {
		t.Fatalf("expected BBBBBB after collision, got %q", second.Code())
	}
}

func TestCreateSessionExhaustedCodeSpace(t *testing.T) {
	env := newTestEnv(t, testSettings())
	env.manager.newCode = func() string { return "AAAAAA" }

	if _, err := env.manager.CreateSession(context.Background(), "host-1", "conn-1", "quiz-1"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := env.manager.CreateSession(context.Background(), "host-1", "conn-2", "quiz-1")
	if !errors.Is(err, domain.ErrCodeSpaceExhausted) {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
}

func TestCreateSessionUnknownQuiz(t *testing.T) {
	env := newTestEnv(t, testSettings())
	_, err := env.manager.CreateSession(context.Background(), "host-1", "conn-1", "no-such-quiz")
	if !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz lookup failure, got %v", err)
	}
}

func TestCompletedSessionRemovedAfterRetention(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session := env.createSession(t)
	joinParticipant(t, session, "u1", "conn-1", "Alice")

	if err := session.End(env.host); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, ok := env.manager.Get(session.Code()); !ok {
		t.Fatalf("completed session must stay readable during retention")
	}

	env.clock.Advance(testSettings().CompletedRetention)
	waitFor(t, "retention removal", func() bool {
		_, ok := env.manager.Get(session.Code())
		return !ok
	})
}

func TestRemoveClearsLiveness(t *testing.T) {
	liveness := &recordingLiveness{active: make(map[string]bool)}
	clockEnv := newTestEnv(t, testSettings())
	manager := NewSessionManager(clockEnv.manager.quizzes, clockEnv.broadcast, clockEnv.manager.persist, testSettings(),
		WithClock(clockEnv.clock), WithLiveness(liveness))

	session, err := manager.CreateSession(context.Background(), "host-1", "conn-1", "quiz-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !liveness.marked(session.Code()) {
		t.Fatalf("expected liveness mark on create")
	}
	manager.Remove(session.Code())
	if liveness.marked(session.Code()) {
		t.Fatalf("expected liveness clear on remove")
	}
	if _, ok := manager.Get(session.Code()); ok {
		t.Fatalf("expected session gone after remove")
	}
}

type recordingLiveness struct {
	active map[string]bool
}

func (l *recordingLiveness) MarkActive(code string) { l.active[code] = true }
func (l *recordingLiveness) Clear(code string)      { delete(l.active, code) }
func (l *recordingLiveness) marked(code string) bool {
	return l.active[code]
}

func TestStaleRemovalTimerSparesRecycledCode(t *testing.T) {
	env := newTestEnv(t, testSettings())
	session := env.createSession(t)
	if err := session.End(env.host); err != nil {
		t.Fatalf("end: %v", err)
	}

	// A newer session takes over the same code before retention fires.
	env.manager.Remove(session.Code())
	env.manager.newCode = func() string { return session.Code() }
	replacement, err := env.manager.CreateSession(context.Background(), "host-1", "conn-2", "quiz-1")
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}

	env.clock.Advance(testSettings().CompletedRetention)
	// Give the stale timer goroutine a chance to run, then confirm the
	// replacement is untouched.
	time.Sleep(20 * time.Millisecond)
	current, ok := env.manager.Get(session.Code())
	if !ok || current != replacement {
		t.Fatalf("stale retention timer must not remove the replacement session")
	}
}
