package app_test

import (
	"testing"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

func TestRankOrdersByScoreThenCorrectCountThenName(t *testing.T) {
	participants := []domain.Participant{
		{ParticipantID: "p1", DisplayName: "Cara", Score: 100, CorrectCount: 1},
		{ParticipantID: "p2", DisplayName: "Alice", Score: 250, CorrectCount: 2},
		{ParticipantID: "p3", DisplayName: "Bob", Score: 250, CorrectCount: 3},
	}

	lb := app.Rank("ABC234", participants, 0, time.Now())
	got := []string{lb.Entries[0].DisplayName, lb.Entries[1].DisplayName, lb.Entries[2].DisplayName}
	want := []string{"Bob", "Alice", "Cara"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	if lb.Entries[0].Rank != 1 || lb.Entries[1].Rank != 2 || lb.Entries[2].Rank != 3 {
		t.Fatalf("expected distinct ranks 1,2,3, got %d,%d,%d", lb.Entries[0].Rank, lb.Entries[1].Rank, lb.Entries[2].Rank)
	}
}

func TestRankSharesRankOnlyOnExactTie(t *testing.T) {
	participants := []domain.Participant{
		{ParticipantID: "p1", DisplayName: "Zoe", Score: 200, CorrectCount: 2},
		{ParticipantID: "p2", DisplayName: "Amy", Score: 200, CorrectCount: 2},
		{ParticipantID: "p3", DisplayName: "Ben", Score: 200, CorrectCount: 1},
	}

	lb := app.Rank("ABC234", participants, 0, time.Now())

	// Tied on score and correct count: name ascending, shared rank.
	if lb.Entries[0].DisplayName != "Amy" || lb.Entries[1].DisplayName != "Zoe" {
		t.Fatalf("expected Amy before Zoe, got %s then %s", lb.Entries[0].DisplayName, lb.Entries[1].DisplayName)
	}
	if lb.Entries[0].Rank != 1 || lb.Entries[1].Rank != 1 {
		t.Fatalf("expected shared rank 1, got %d and %d", lb.Entries[0].Rank, lb.Entries[1].Rank)
	}
	// Same score but fewer correct answers: no shared rank, dense next rank.
	if lb.Entries[2].DisplayName != "Ben" || lb.Entries[2].Rank != 2 {
		t.Fatalf("expected Ben at rank 2, got %s at %d", lb.Entries[2].DisplayName, lb.Entries[2].Rank)
	}
}

func TestRankTruncatesToLimit(t *testing.T) {
	participants := []domain.Participant{
		{ParticipantID: "p1", DisplayName: "A", Score: 30},
		{ParticipantID: "p2", DisplayName: "B", Score: 20},
		{ParticipantID: "p3", DisplayName: "C", Score: 10},
	}
	lb := app.Rank("ABC234", participants, 2, time.Now())
	if len(lb.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lb.Entries))
	}
	if lb.Entries[0].DisplayName != "A" || lb.Entries[1].DisplayName != "B" {
		t.Fatalf("expected top-2 A,B, got %+v", lb.Entries)
	}
}
