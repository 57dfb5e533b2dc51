package app

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"livequiz-service/internal/domain"
)

// Store mirrors live session state into a durable backend. The session
// layer never waits on it; every write flows through the PersistenceQueue.
type Store interface {
	UpsertSession(ctx context.Context, snapshot domain.SessionSnapshot) error
	UpsertParticipant(ctx context.Context, sessionCode string, participant domain.Participant) error
	AppendAnswer(ctx context.Context, record domain.AnswerRecord) error
}

type mutationKind int

const (
	mutationSession mutationKind = iota
	mutationParticipant
	mutationAnswer
)

type mutation struct {
	kind        mutationKind
	session     domain.SessionSnapshot
	sessionCode string
	participant domain.Participant
	answer      domain.AnswerRecord
}

// PersistenceQueue is the one-way outbound path from in-memory session
// state to the durable store. Enqueue never blocks; the worker retries
// failed writes with exponential backoff and logs permanent failures.
// Durable-write failures never roll back or stall live state.
type PersistenceQueue struct {
	store      Store
	ch         chan mutation
	log        zerolog.Logger
	newBackOff func() backoff.BackOff

	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewPersistenceQueue(store Store, buffer int, logger zerolog.Logger) *PersistenceQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &PersistenceQueue{
		store: store,
		ch:    make(chan mutation, buffer),
		log:   logger,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 100 * time.Millisecond
			bo.MaxElapsedTime = 30 * time.Second
			return bo
		},
	}
}

// Run drains the queue until ctx is cancelled and the channel is closed.
func (q *PersistenceQueue) Run(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case m, ok := <-q.ch:
				if !ok {
					return
				}
				q.apply(ctx, m)
			case <-ctx.Done():
				// Drain what is already queued, then stop.
				for {
					select {
					case m, ok := <-q.ch:
						if !ok {
							return
						}
						q.apply(context.Background(), m)
					default:
						return
					}
				}
			}
		}
	}()
}

// Close stops accepting mutations and waits for the worker to finish.
func (q *PersistenceQueue) Close() {
	q.stopOnce.Do(func() { close(q.ch) })
	q.wg.Wait()
}

func (q *PersistenceQueue) EnqueueSession(snapshot domain.SessionSnapshot) {
	q.enqueue(mutation{kind: mutationSession, session: snapshot})
}

func (q *PersistenceQueue) EnqueueParticipant(sessionCode string, participant domain.Participant) {
	q.enqueue(mutation{kind: mutationParticipant, sessionCode: sessionCode, participant: participant})
}

func (q *PersistenceQueue) EnqueueAnswer(record domain.AnswerRecord) {
	q.enqueue(mutation{kind: mutationAnswer, answer: record})
}

func (q *PersistenceQueue) enqueue(m mutation) {
	select {
	case q.ch <- m:
	default:
		q.log.Warn().Int("kind", int(m.kind)).Msg("persistence queue full, dropping mirror write")
	}
}

func (q *PersistenceQueue) apply(ctx context.Context, m mutation) {
	op := func() error {
		switch m.kind {
		case mutationSession:
			return q.store.UpsertSession(ctx, m.session)
		case mutationParticipant:
			return q.store.UpsertParticipant(ctx, m.sessionCode, m.participant)
		case mutationAnswer:
			return q.store.AppendAnswer(ctx, m.answer)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(q.newBackOff(), ctx)); err != nil {
		q.log.Error().Err(err).Int("kind", int(m.kind)).Msg("durable mirror write failed permanently")
	}
}
