package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/fanout"
	"live-quiz-service/internal/infra/events"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/infra/sqlite"
	"live-quiz-service/internal/logging"
	"live-quiz-service/internal/scoring"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func setupLogging(cfg config.Config) (*slog.Logger, error) {
	return logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDependencies(ctx, cfg, log)
	defer cleanup()
	if err != nil {
		return err
	}

	opts, err := serviceOptions(cfg, log)
	if err != nil {
		return err
	}
	opts.Results = deps.results
	opts.Events = deps.events

	hub := fanout.NewHub(fanout.DefaultQueueSize, log)
	service := app.NewQuizService(deps.sessions, deps.sets, hub, opts)
	router := transport.NewRouter(transport.RouterConfig{
		Service:        service,
		WS:             transport.NewWSHandler(service, hub, cfg.Server.AllowedOrigins, log),
		Auth:           transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		PublicURL:      cfg.Server.PublicURL,
		Logger:         log,
	})
	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is empty; host endpoints are unauthenticated")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz service", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return service.RunJanitor(gctx, config.TTLDuration(cfg.Session.SweepInterval, time.Minute))
	})
	if deps.lifecycle != nil {
		g.Go(func() error {
			return events.LogConsumer(gctx, deps.lifecycle, cfg.Events.Topic, log)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type dependencies struct {
	sets      app.QuestionSetStore
	sessions  app.SessionRegistry
	results   app.ResultStore
	events    app.LifecyclePublisher
	lifecycle message.Subscriber // in-process lifecycle feed, nil with kafka
}

// buildDependencies picks the adapters from config: Postgres or SQLite or memory for
// question sets, Redis or memory for the cache and PIN registry. cleanup is always safe to call.
func buildDependencies(ctx context.Context, cfg config.Config, log *slog.Logger) (dependencies, func(), error) {
	var (
		deps     dependencies
		closers  []func()
		cacheTTL = config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return deps, cleanup, fmt.Errorf("connect redis: %w", err)
		}
	}

	var backing app.QuestionSetStore
	switch {
	case cfg.Postgres.URL != "":
		if err := runMigrations(ctx, cfg, log); err != nil {
			return deps, cleanup, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return deps, cleanup, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		backing = postgres.NewQuestionSetStore(pool)

		db := postgres.OpenBun(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		deps.results = postgres.NewResultStore(db)
		log.Info("question sets stored in postgres")
	case cfg.SQLite.Path != "":
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return deps, cleanup, err
		}
		closers = append(closers, func() { _ = store.Close() })
		backing = store
		log.Info("question sets stored in sqlite", "path", cfg.SQLite.Path)
	default:
		backing = memory.NewQuestionSetStore(sampleQuestionSets()...)
		log.Warn("no database configured; question sets are kept in memory")
	}

	if redisClient != nil {
		deps.sets = infraredis.NewQuestionSetCache(redisClient, backing, cacheTTL, log)
		deps.sessions = infraredis.NewSessionRegistry(redisClient, config.TTLDuration(cfg.Redis.TTL, 3*time.Hour), log)
	} else {
		if _, inMemory := backing.(*memory.QuestionSetStore); inMemory {
			deps.sets = backing
		} else {
			deps.sets = memory.NewQuestionSetCache(backing, cacheTTL)
		}
		deps.sessions = memory.NewSessionRegistry()
	}

	pub, sub, err := events.New(events.Config{
		KafkaBrokers: cfg.Events.KafkaBrokers,
		Topic:        cfg.Events.Topic,
		Logger:       log,
	})
	if err != nil {
		return deps, cleanup, err
	}
	closers = append(closers, func() { _ = pub.Close() })
	deps.events = pub
	deps.lifecycle = sub
	return deps, cleanup, nil
}

func serviceOptions(cfg config.Config, log *slog.Logger) (app.Options, error) {
	opts := app.Options{
		Session: app.SessionConfig{
			AnswerGrace:         config.TTLDuration(cfg.Session.AnswerGrace, 2*time.Second),
			RequireParticipants: cfg.RequireParticipants(),
			AllowLateJoin:       cfg.Session.AllowLateJoin,
		},
		RetireAfter: config.TTLDuration(cfg.Session.RetireAfter, 30*time.Minute),
		MaxIdle:     config.TTLDuration(cfg.Session.MaxIdle, 2*time.Hour),
		Logger:      log,
	}

	policy := scoring.DefaultPolicy()
	if cfg.Scoring.BasePoints != 0 {
		policy.BasePoints = cfg.Scoring.BasePoints
	}
	if cfg.Scoring.Floor != 0 {
		policy.Floor = cfg.Scoring.Floor
	}
	if cfg.Scoring.Curve != "" {
		policy.Curve = scoring.Curve(cfg.Scoring.Curve)
	}
	if err := policy.Validate(); err != nil {
		return opts, fmt.Errorf("scoring config: %w", err)
	}
	opts.Scoring = policy

	alphabet, length := cfg.Session.PINAlphabet, cfg.Session.PINLength
	if alphabet == "" {
		alphabet = app.DefaultPINAlphabet
	}
	if length == 0 {
		length = app.DefaultPINLength
	}
	pins, err := app.NewPINGenerator(alphabet, length)
	if err != nil {
		return opts, fmt.Errorf("session config: %w", err)
	}
	opts.PINs = pins
	log.Info("pin generator configured", "length", length, "space", pins.Space().String())
	return opts, nil
}

// sampleQuestionSets seeds the in-memory store so a fresh checkout can run a game
// without a database.
func sampleQuestionSets() []domain.QuestionSet {
	return []domain.QuestionSet{
		{
			ID:    "sample-arithmetic",
			Title: "Warm-up arithmetic",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "a", Text: "3"},
						{ID: "b", Text: "4"},
						{ID: "c", Text: "5"},
					},
					CorrectOptionID:  "b",
					TimeLimitSeconds: 20,
				},
				{
					ID:   "q2",
					Text: "What is 7 x 6?",
					Options: []domain.Option{
						{ID: "a", Text: "42"},
						{ID: "b", Text: "36"},
						{ID: "c", Text: "48"},
						{ID: "d", Text: "56"},
					},
					CorrectOptionID:  "a",
					TimeLimitSeconds: 20,
				},
			},
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}
