package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-session-engine/internal/engine"
	"quiz-session-engine/internal/identity"
	"quiz-session-engine/internal/infra/memory"
	pgloader "quiz-session-engine/internal/infra/postgres"
	pgmigrations "quiz-session-engine/internal/infra/postgres/migrations"
	redisinfra "quiz-session-engine/internal/infra/redis"
	"quiz-session-engine/internal/session"
	"quiz-session-engine/internal/submit"
)

// Full play-through against real backing stores, with the submission
// transport offline the whole time: the session must still finish and
// the durable tier must hold a record matching the local aggregate.
func TestPlayThroughEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisAddr, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, 7, sampleWireQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	quizRepo := redisinfra.NewQuizRepository(redisClient, pgloader.NewQuizLoader(pool), 5*time.Minute)

	volatile := memory.NewKV()
	durable := redisinfra.NewKV(redisClient, "player:42", time.Hour)
	store := session.NewStore(volatile, durable, nil)

	// Loosely typed identity blob, the way the join flow leaves it.
	blob := []byte(`{"playerId":"42","quizId":"7","name":"Alice","team":"Red"}`)
	if err := volatile.Set(ctx, session.KeyIdentity, blob); err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	resolved, err := identity.NewResolver(store, nil).Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve identity: %v", err)
	}

	// Nothing listens on this port: every submission attempt fails.
	pipeline := submit.NewPipeline("http://127.0.0.1:1", nil, store, nil, nil)

	seq := engine.NewSequencer(resolved, quizRepo, pipeline, store, nil, engine.Config{
		RevealDwell:  2 * time.Millisecond,
		AdvanceDwell: 2 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
	})
	if err := seq.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	answerWhenReady(t, seq, 0, 1) // correct
	answerWhenReady(t, seq, 1, 0) // correct (true)
	// Third question times out.

	select {
	case <-seq.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("sequencer never finished")
	}

	record, ok := seq.Record()
	if !ok {
		t.Fatal("expected finalized record")
	}
	if record.Aggregate.CorrectCount != 2 || record.Aggregate.TotalQuestions != 3 {
		t.Fatalf("unexpected aggregate %+v", record.Aggregate)
	}
	if record.Aggregate.TotalScore != engine.Aggregate(seq.Events(), 3).TotalScore {
		t.Fatalf("record score does not match local aggregate")
	}

	// A fresh store over the same redis simulates the results view
	// loading after the tab is gone.
	reloaded := session.NewStore(memory.NewKV(), durable, nil)
	persisted, err := reloaded.LoadRecord(ctx)
	if err != nil {
		t.Fatalf("load persisted record: %v", err)
	}
	if persisted.RunID != record.RunID || persisted.Aggregate != record.Aggregate {
		t.Fatalf("persisted record mismatch: %+v vs %+v", persisted, record)
	}
	if persisted.Team != "Red" {
		t.Fatalf("expected team attribution, got %+v", persisted)
	}
}

func answerWhenReady(t *testing.T, seq *engine.Sequencer, index, option int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, i, ok := seq.Current(); ok && i == index && seq.State() == engine.StateReady {
			seq.SelectAnswer(option)
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("question %d never became ready", index)
}

func sampleWireQuiz() map[string]any {
	return map[string]any{
		"id":    7,
		"title": "Warm-up",
		"questions": []map[string]any{
			{"id": 1, "text": "2+2?", "options": []string{"3", "4", "5", "22"}, "correct": "B", "timeLimit": 20, "score": 100, "type": "multiple_choice"},
			{"id": 2, "text": "Paris is in France.", "options": []string{"True", "False"}, "correct": "T", "timeLimit": 10, "score": 50, "type": "true_false"},
			{"id": 3, "text": "Closest planet?", "options": []string{"Venus", "Earth", "Mercury", "Mars"}, "correct": "C", "timeLimit": 2, "score": 100, "type": "multiple_choice"},
		},
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quizID int64, quiz map[string]any) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quizID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
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
	return fmt.Sprintf("%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
