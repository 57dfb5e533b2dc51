package app_test

import (
	"testing"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

func scoringQuestion() domain.Question {
	return domain.Question{
		ID:     "q1",
		Prompt: "What is 2 + 2?",
		Options: []domain.Option{
			{ID: "o1", Text: "3", Correct: false},
			{ID: "o2", Text: "4", Correct: true},
			{ID: "o3", Text: "5", Correct: false},
		},
	}
}

func TestScoreCorrectAnswerEarnsSpeedBonus(t *testing.T) {
	// basePoints=100, maxSpeedBonus=50, limit 30s, answered at 2s:
	// bonus = round(50 × (1 − 2000/30000)) = 47, points = 147.
	result := app.Score(scoringQuestion(), []string{"o2"}, 2*time.Second, 30*time.Second, 100, 50)
	if !result.Correct {
		t.Fatalf("expected correct answer")
	}
	if result.SpeedBonus != 47 {
		t.Fatalf("expected speed bonus 47, got %d", result.SpeedBonus)
	}
	if result.Points != 147 {
		t.Fatalf("expected 147 points, got %d", result.Points)
	}
}

func TestScoreIncorrectAnswerEarnsNothing(t *testing.T) {
	for _, latency := range []time.Duration{0, 2 * time.Second, 29 * time.Second} {
		result := app.Score(scoringQuestion(), []string{"o1"}, latency, 30*time.Second, 100, 50)
		if result.Correct || result.Points != 0 || result.SpeedBonus != 0 {
			t.Fatalf("expected zero result at %v, got %+v", latency, result)
		}
	}
}

func TestScoreSpeedBonusMonotonicAndBounded(t *testing.T) {
	prev := 51
	for latency := time.Duration(0); latency <= 31*time.Second; latency += 500 * time.Millisecond {
		result := app.Score(scoringQuestion(), []string{"o2"}, latency, 30*time.Second, 100, 50)
		if result.SpeedBonus < 0 || result.SpeedBonus > 50 {
			t.Fatalf("bonus out of range at %v: %d", latency, result.SpeedBonus)
		}
		if result.SpeedBonus > prev {
			t.Fatalf("bonus increased with latency at %v: %d > %d", latency, result.SpeedBonus, prev)
		}
		prev = result.SpeedBonus
	}
}

func TestScoreMultiSelectRequiresWholeSet(t *testing.T) {
	question := domain.Question{
		ID: "q2",
		Options: []domain.Option{
			{ID: "o1", Correct: true},
			{ID: "o2", Correct: false},
			{ID: "o3", Correct: true},
		},
	}

	if r := app.Score(question, []string{"o1"}, time.Second, 30*time.Second, 100, 50); r.Correct {
		t.Fatalf("partial selection must not score")
	}
	if r := app.Score(question, []string{"o1", "o2", "o3"}, time.Second, 30*time.Second, 100, 50); r.Correct {
		t.Fatalf("superset selection must not score")
	}
	if r := app.Score(question, []string{"o3", "o1"}, time.Second, 30*time.Second, 100, 50); !r.Correct {
		t.Fatalf("whole correct set should score regardless of order")
	}
	if r := app.Score(question, nil, time.Second, 30*time.Second, 100, 50); r.Correct {
		t.Fatalf("empty selection must not score")
	}
}

func TestScorePerQuestionPointsOverride(t *testing.T) {
	question := scoringQuestion()
	question.Points = 200
	result := app.Score(question, []string{"o2"}, 0, 30*time.Second, 100, 50)
	if result.Points != 250 {
		t.Fatalf("expected override base 200 + bonus 50, got %d", result.Points)
	}
}
