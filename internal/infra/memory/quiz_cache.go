package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"livequiz-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizCache memoizes quiz snapshots so session creation does not hit the
// backing store for every code. Entries go stale after a jittered TTL;
// concurrent misses for the same quiz collapse into one load.
type QuizCache struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	group  singleflight.Group

	mu      sync.Mutex
	rnd     *rand.Rand
	entries map[string]cacheEntry
}

type cacheEntry struct {
	quiz    domain.Quiz
	staleAt time.Time
}

func NewQuizCache(loader QuizLoader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]cacheEntry),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.group.Do(quizID, func() (interface{}, error) {
		// Another goroutine may have filled the entry while we queued.
		if quiz, ok := c.lookup(quizID); ok {
			return quiz, nil
		}
		quiz, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		c.store(quizID, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *QuizCache) lookup(quizID string) (domain.Quiz, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[quizID]
	if !ok || !entry.staleAt.After(c.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (c *QuizCache) store(quizID string, quiz domain.Quiz) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ttl := c.ttl
	if ttl > 0 {
		// up to 10% jitter to spread expirations
		ttl += time.Duration(c.rnd.Int63n(int64(ttl)/10 + 1))
	}
	c.entries[quizID] = cacheEntry{quiz: quiz, staleAt: c.clock().Add(ttl)}
}

// StaticLoader is a loader backed by an in-memory map (tests/demos).
type StaticLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticLoader(quizzes map[string]domain.Quiz) *StaticLoader {
	return &StaticLoader{quizzes: quizzes}
}

func (l *StaticLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
