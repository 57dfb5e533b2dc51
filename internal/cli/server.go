package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"database/sql"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"livequiz-service/internal/app"
	"livequiz-service/internal/config"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	pgstore "livequiz-service/internal/infra/postgres"
	redisinfra "livequiz-service/internal/infra/redis"
	transport "livequiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "livequiz").Logger()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if redisClient != nil {
		quizzes = redisinfra.NewQuizCache(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizCache(loader, quizTTL)
	}

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bunDB := bun.NewDB(sqldb, pgdialect.New())
		defer bunDB.Close()
		store = pgstore.NewStore(bunDB)
	}

	persist := app.NewPersistenceQueue(store, 512, logger)
	persistCtx, persistCancel := context.WithCancel(context.Background())
	persist.Run(persistCtx)
	defer func() {
		persistCancel()
		persist.Close()
	}()

	settings := settingsFromConfig(cfg)
	hub := transport.NewHub(logger)

	opts := []app.ManagerOption{app.WithLogger(logger)}
	if redisClient != nil {
		opts = append(opts, app.WithLiveness(redisinfra.NewLiveness(redisClient, redisTTL)))
	}
	manager := app.NewSessionManager(quizzes, hub, persist, settings, opts...)

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = os.Getenv("AUTH_SECRET")
	}
	verifier := app.NewTokenVerifier(secret)
	wsHandler := transport.NewWSHandler(manager, hub, verifier, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting live quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func settingsFromConfig(cfg config.Config) app.Settings {
	s := app.DefaultSettings()
	s.TimePerQuestion = config.TTLDuration(cfg.Game.TimePerQuestion, s.TimePerQuestion)
	s.SkewTolerance = config.TTLDuration(cfg.Game.SkewTolerance, s.SkewTolerance)
	s.GracePeriod = config.TTLDuration(cfg.Game.GracePeriod, s.GracePeriod)
	s.RevealDelay = config.TTLDuration(cfg.Game.RevealDelay, s.RevealDelay)
	s.CompletedRetention = config.TTLDuration(cfg.Game.CompletedRetention, s.CompletedRetention)
	s.InterruptedRetention = config.TTLDuration(cfg.Game.InterruptedRetention, s.InterruptedRetention)
	if cfg.Game.BasePoints > 0 {
		s.BasePoints = cfg.Game.BasePoints
	}
	if cfg.Game.MaxSpeedBonus > 0 {
		s.MaxSpeedBonus = cfg.Game.MaxSpeedBonus
	}
	if cfg.Game.LeaderboardSize > 0 {
		s.LeaderboardSize = cfg.Game.LeaderboardSize
	}
	s.AllowLateJoin = cfg.Game.AllowLateJoin
	s.ShowLeaderboardAfterEach = cfg.Game.ShowLeaderboardAfterEach
	return s
}

// sampleQuizzes provides demo quiz data; with Postgres configured the
// loader reads real definitions instead.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
				},
				{
					ID:          "q2",
					Prompt:      "Which of these are prime?",
					Explanation: "2 and 5 are prime; 4 is not.",
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "4", Correct: false},
						{ID: "o3", Text: "5", Correct: true},
					},
				},
			},
		},
	}
}
