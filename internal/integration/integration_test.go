package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

func TestQuizSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.OpenBun(pgURL)
	defer db.Close()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)

	pool, err := pgxpool.Connect(ctx, pgURL)
	require.NoError(t, err)
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	require.NoError(t, err)
	defer redisClient.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sets := infraredis.NewQuestionSetCache(redisClient, postgres.NewQuestionSetStore(pool), 5*time.Minute, log)
	registry := infraredis.NewSessionRegistry(redisClient, 5*time.Minute, log)
	results := postgres.NewResultStore(db)
	service := app.NewQuizService(registry, sets, nil, app.Options{
		Session: app.DefaultSessionConfig(),
		Results: results,
		Logger:  log,
	})

	set, err := service.ConfirmQuestionSet(ctx, sampleQuestionSet())
	require.NoError(t, err)
	listed, err := service.QuestionSets(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 2, listed[0].QuestionCount)

	session, err := service.CreateSession(ctx, set.ID, "Host", "host-1")
	require.NoError(t, err)
	pinOwner, err := redisClient.Get(ctx, "quiz:pin:"+session.PIN()).Result()
	require.NoError(t, err)
	assert.Equal(t, session.ID(), pinOwner)

	_, alice, err := service.Join(ctx, session.PIN(), "Alice")
	require.NoError(t, err)
	_, bob, err := service.Join(ctx, session.PIN(), "Bob")
	require.NoError(t, err)

	require.NoError(t, service.Start(ctx, session.PIN()))
	ack, err := service.SubmitAnswer(ctx, session.PIN(), domain.AnswerSubmission{
		ParticipantID: alice.Participant.ID, QuestionIndex: 0, OptionID: "o2",
	})
	require.NoError(t, err)
	assert.True(t, ack.IsCorrect)
	_, err = service.SubmitAnswer(ctx, session.PIN(), domain.AnswerSubmission{
		ParticipantID: bob.Participant.ID, QuestionIndex: 0, OptionID: "o1",
	})
	require.NoError(t, err)

	advanced, err := service.Advance(ctx, session.PIN(), 0)
	require.NoError(t, err)
	require.True(t, advanced)
	require.NoError(t, service.End(ctx, session.PIN()))

	var archived domain.Results
	require.Eventually(t, func() bool {
		archived, err = results.LoadResults(ctx, session.ID())
		return err == nil
	}, 10*time.Second, 100*time.Millisecond)
	require.Len(t, archived.Leaderboard, 2)
	assert.Equal(t, "Alice", archived.Leaderboard[0].Nickname)
	assert.Equal(t, 1, archived.Questions[0].Correct)

	history, err := results.ResultsForQuestionSet(ctx, set.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, session.PIN(), history[0].Session.PIN)

	service.RetireSession(ctx, session.PIN())
	exists, err := redisClient.Exists(ctx, "quiz:pin:"+session.PIN()).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "retiring frees the pin")
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func sampleQuestionSet() domain.QuestionSet {
	return domain.QuestionSet{
		ID:    "arith",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "o1", Text: "3"},
					{ID: "o2", Text: "4"},
					{ID: "o3", Text: "5"},
				},
				CorrectOptionID:  "o2",
				TimeLimitSeconds: 30,
			},
			{
				ID:               "q2",
				Text:             "What is 3 * 3?",
				Options:          []domain.Option{{ID: "o1", Text: "9"}, {ID: "o2", Text: "6"}},
				CorrectOptionID:  "o1",
				TimeLimitSeconds: 30,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
