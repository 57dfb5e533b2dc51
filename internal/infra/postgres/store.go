package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"livequiz-service/internal/domain"
)

// Store mirrors live session state into Postgres through bun. Rows are
// written by the persistence worker only; the live path never reads them.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions"`

	Code                 string    `bun:"code,pk"`
	QuizID               string    `bun:"quiz_id"`
	QuizTitle            string    `bun:"quiz_title"`
	HostID               string    `bun:"host_id"`
	Status               string    `bun:"status"`
	CurrentQuestionIndex int       `bun:"current_question_index"`
	QuestionCount        int       `bun:"question_count"`
	Config               []byte    `bun:"config,type:jsonb"`
	CreatedAt            time.Time `bun:"created_at"`
	UpdatedAt            time.Time `bun:"updated_at"`
}

type participantRow struct {
	bun.BaseModel `bun:"table:session_participants"`

	SessionCode   string    `bun:"session_code,pk"`
	ParticipantID string    `bun:"participant_id,pk"`
	DisplayName   string    `bun:"display_name"`
	PhotoRef      string    `bun:"photo_ref"`
	Score         int       `bun:"score"`
	CorrectCount  int       `bun:"correct_count"`
	AnsweredCount int       `bun:"answered_count"`
	Connected     bool      `bun:"connected"`
	JoinedAt      time.Time `bun:"joined_at"`
	UpdatedAt     time.Time `bun:"updated_at"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:session_answers"`

	ID                string    `bun:"id,pk"`
	SessionCode       string    `bun:"session_code"`
	ParticipantID     string    `bun:"participant_id"`
	QuestionIndex     int       `bun:"question_index"`
	QuestionID        string    `bun:"question_id"`
	SelectedOptions   []byte    `bun:"selected_options,type:jsonb"`
	Correct           bool      `bun:"correct"`
	ResponseLatencyMs int64     `bun:"response_latency_ms"`
	PointsAwarded     int       `bun:"points_awarded"`
	SpeedBonus        int       `bun:"speed_bonus"`
	SubmittedAt       time.Time `bun:"submitted_at"`
}

func (s *Store) UpsertSession(ctx context.Context, snapshot domain.SessionSnapshot) error {
	cfg, err := json.Marshal(snapshot.Config)
	if err != nil {
		return fmt.Errorf("marshal session config: %w", err)
	}
	row := sessionRow{
		Code:                 snapshot.Code,
		QuizID:               snapshot.QuizID,
		QuizTitle:            snapshot.QuizTitle,
		HostID:               snapshot.HostID,
		Status:               string(snapshot.Status),
		CurrentQuestionIndex: snapshot.CurrentQuestionIndex,
		QuestionCount:        snapshot.QuestionCount,
		Config:               cfg,
		CreatedAt:            snapshot.CreatedAt,
		UpdatedAt:            time.Now(),
	}
	_, err = s.db.NewInsert().Model(&row).
		On("CONFLICT (code) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("current_question_index = EXCLUDED.current_question_index").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", snapshot.Code, err)
	}
	return nil
}

func (s *Store) UpsertParticipant(ctx context.Context, sessionCode string, p domain.Participant) error {
	row := participantRow{
		SessionCode:   sessionCode,
		ParticipantID: p.ParticipantID,
		DisplayName:   p.DisplayName,
		PhotoRef:      p.PhotoRef,
		Score:         p.Score,
		CorrectCount:  p.CorrectCount,
		AnsweredCount: p.AnsweredCount,
		Connected:     p.Connected,
		JoinedAt:      p.JoinedAt,
		UpdatedAt:     time.Now(),
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (session_code, participant_id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("photo_ref = EXCLUDED.photo_ref").
		Set("score = EXCLUDED.score").
		Set("correct_count = EXCLUDED.correct_count").
		Set("answered_count = EXCLUDED.answered_count").
		Set("connected = EXCLUDED.connected").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert participant %s/%s: %w", sessionCode, p.ParticipantID, err)
	}
	return nil
}

func (s *Store) AppendAnswer(ctx context.Context, record domain.AnswerRecord) error {
	selected, err := json.Marshal(record.SelectedOptions)
	if err != nil {
		return fmt.Errorf("marshal selected options: %w", err)
	}
	row := answerRow{
		ID:                record.ID,
		SessionCode:       record.SessionCode,
		ParticipantID:     record.ParticipantID,
		QuestionIndex:     record.QuestionIndex,
		QuestionID:        record.QuestionID,
		SelectedOptions:   selected,
		Correct:           record.Correct,
		ResponseLatencyMs: record.ResponseLatencyMs,
		PointsAwarded:     record.PointsAwarded,
		SpeedBonus:        record.SpeedBonus,
		SubmittedAt:       record.SubmittedAt,
	}
	// Answer records are append-only; a retried write must not mutate.
	_, err = s.db.NewInsert().Model(&row).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("append answer %s: %w", record.ID, err)
	}
	return nil
}
