package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/engine"
	"quiz-session-engine/internal/identity"
	"quiz-session-engine/internal/infra/memory"
	pginfra "quiz-session-engine/internal/infra/postgres"
	redisinfra "quiz-session-engine/internal/infra/redis"
	"quiz-session-engine/internal/logging"
	"quiz-session-engine/internal/session"
	"quiz-session-engine/internal/submit"
	"quiz-session-engine/internal/transport/ws"
)

// NewPlayCmd builds the subcommand that runs a full play-through.
func NewPlayCmd(configPath, apiBaseURL *string) *cobra.Command {
	var (
		playerID int64
		quizID   int64
		name     string
		team     string
		avatar   string
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play through a quiz session interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), *configPath, *apiBaseURL, playerID, quizID, name, team, avatar, verbose)
		},
	}
	cmd.Flags().Int64Var(&playerID, "player", 0, "server-assigned player id (stand-in for the join flow)")
	cmd.Flags().Int64Var(&quizID, "quiz", 1, "quiz id to play")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&team, "team", "", "team/group attribution")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar identifier")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "debug logging")
	return cmd
}

func runPlay(ctx context.Context, configPath, apiFlag string, playerID, quizID int64, name, team, avatar string, verbose bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	baseURL := apiFlag
	if baseURL == "" {
		baseURL = cfg.API.BaseURL
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := logging.New(os.Stderr, level)

	volatile := memory.NewKV()
	var durable session.KV = memory.NewKV()
	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)
		durable = redisinfra.NewKV(redisClient, fmt.Sprintf("player:%d", playerID), redisTTL)
	} else {
		log.Warn("no redis configured, durable tier is in-process only")
	}
	store := session.NewStore(volatile, durable, log)

	// The join flow normally leaves the identity blob behind; seeding it
	// here keeps the resolver as the single normalization boundary.
	if playerID > 0 {
		seed := domain.Identity{PlayerID: playerID, QuizID: quizID, Name: name, Team: team, Avatar: avatar}
		if err := store.SaveIdentity(ctx, seed); err != nil {
			return err
		}
	}
	resolved, err := identity.NewResolver(store, log).Resolve(ctx)
	if err != nil {
		return fmt.Errorf("cannot start session: %w", err)
	}

	quizSource, cleanup, err := buildQuizSource(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer cleanup()

	// Prefetch once so the pipeline can map question ids to answer
	// letters; the sequencer's own load hits the cache.
	quiz, err := quizSource.GetQuiz(ctx, resolved.QuizID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQuizLoadFailed, err)
	}
	questionByID := make(map[int64]domain.Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		questionByID[q.ID] = q
	}
	pipeline := submit.NewPipeline(baseURL, nil, store, log, func(id int64) (domain.Question, bool) {
		q, ok := questionByID[id]
		return q, ok
	})

	waitForStart(ctx, cfg, log)

	seq := engine.NewSequencer(resolved, quizSource, pipeline, store, log, engine.Config{
		RevealDwell:  config.TTLDuration(cfg.Engine.RevealDwell, time.Second),
		AdvanceDwell: config.TTLDuration(cfg.Engine.AdvanceDwell, 2*time.Second),
	})
	if err := seq.Start(ctx); err != nil {
		return err
	}
	return playLoop(ctx, seq)
}

func buildQuizSource(ctx context.Context, cfg config.Config, redisClient *goredis.Client) (engine.QuizSource, func(), error) {
	cleanup := func() {}

	var loader redisinfra.QuizLoader
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = pool.Close
		loader = pginfra.NewQuizLoader(pool)
	} else {
		quiz, err := sampleDomainQuiz()
		if err != nil {
			return nil, cleanup, err
		}
		loader = memory.NewStaticQuizLoader(map[int64]domain.Quiz{quiz.ID: quiz})
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		return redisinfra.NewQuizRepository(redisClient, loader, quizTTL), cleanup, nil
	}
	return memory.NewQuizRepository(loader, quizTTL), cleanup, nil
}

// sampleDomainQuiz pushes the demo quiz through the same wire decode
// the Postgres loader uses.
func sampleDomainQuiz() (domain.Quiz, error) {
	raw, err := json.Marshal(sampleWireQuiz())
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz, err := pginfra.DecodeWireQuiz(raw)
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// waitForStart listens briefly for a server-side start signal. The
// session paces itself locally if the channel never connects or never
// speaks; that is the normal degraded mode, not an error.
func waitForStart(ctx context.Context, cfg config.Config, log *slog.Logger) {
	if cfg.Realtime.URL == "" && cfg.Realtime.PollURL == "" {
		return
	}
	channel := ws.Connect(ctx, cfg.Realtime.URL, cfg.Realtime.PollURL,
		config.TTLDuration(cfg.Realtime.PollInterval, 2*time.Second), log)
	defer channel.Close()
	if channel.Signals() == nil {
		return
	}
	log.Info("waiting for game start signal")
	select {
	case signal, ok := <-channel.Signals():
		if ok && signal.Type == ws.SignalGameStarted {
			log.Info("game started")
		}
	case <-time.After(15 * time.Second):
		log.Warn("no start signal, pacing locally")
	case <-ctx.Done():
	}
}

func playLoop(ctx context.Context, seq *engine.Sequencer) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	prompt := color.New(color.FgHiWhite, color.Bold)
	dim := color.New(color.FgHiBlack)

	shown := -1
	poll := time.NewTicker(150 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-seq.Done():
			printResults(seq)
			return nil
		case line := <-lines:
			if index, ok := letterToIndex(line); ok {
				seq.SelectAnswer(index)
			}
		case <-poll.C:
			question, index, ok := seq.Current()
			if !ok || seq.State() != engine.StateReady || index == shown {
				continue
			}
			shown = index
			fmt.Println()
			prompt.Printf("Q%d. %s\n", index+1, question.Prompt)
			for i, option := range question.Options {
				fmt.Printf("  %s) %s\n", question.OptionLetter(i), option)
			}
			dim.Printf("  %d seconds, %d points. Type a letter and press enter.\n",
				question.TimeLimit, question.Points)
		}
	}
}

func letterToIndex(line string) (int, bool) {
	line = strings.ToUpper(strings.TrimSpace(line))
	switch line {
	case "A", "T":
		return 0, true
	case "B", "F":
		return 1, true
	case "C":
		return 2, true
	case "D":
		return 3, true
	}
	return 0, false
}

func printResults(seq *engine.Sequencer) {
	record, ok := seq.Record()
	if !ok {
		return
	}
	agg := record.Aggregate
	heading := color.New(color.FgHiGreen, color.Bold)
	fmt.Println()
	heading.Println("Session complete")
	fmt.Printf("  score:    %d\n", agg.TotalScore)
	fmt.Printf("  correct:  %d/%d (%d%%)\n", agg.CorrectCount, agg.TotalQuestions, agg.AccuracyPercent)
	fmt.Printf("  avg time: %.1fs\n", agg.AverageResponseTime)
	fmt.Printf("  run id:   %s\n", record.RunID)
}
