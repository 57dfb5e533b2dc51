package memory

import (
	"context"
	"sync"

	"livequiz-service/internal/domain"
)

// Store is an in-memory implementation of the durable mirror, used when no
// Postgres is configured and by tests that assert what got mirrored.
type Store struct {
	mu           sync.Mutex
	sessions     map[string]domain.SessionSnapshot
	participants map[string]map[string]domain.Participant
	answers      []domain.AnswerRecord
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]domain.SessionSnapshot),
		participants: make(map[string]map[string]domain.Participant),
	}
}

func (s *Store) UpsertSession(_ context.Context, snapshot domain.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[snapshot.Code] = snapshot
	return nil
}

func (s *Store) UpsertParticipant(_ context.Context, sessionCode string, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.participants[sessionCode]
	if !ok {
		byID = make(map[string]domain.Participant)
		s.participants[sessionCode] = byID
	}
	byID[participant.ParticipantID] = participant
	return nil
}

func (s *Store) AppendAnswer(_ context.Context, record domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, record)
	return nil
}

// Session returns the last mirrored snapshot for code.
func (s *Store) Session(code string) (domain.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.sessions[code]
	return snapshot, ok
}

// Answers returns a copy of all mirrored answer records.
func (s *Store) Answers() []domain.AnswerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AnswerRecord, len(s.answers))
	copy(out, s.answers)
	return out
}
