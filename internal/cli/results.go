package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/memory"
	redisinfra "quiz-session-engine/internal/infra/redis"
	"quiz-session-engine/internal/logging"
	"quiz-session-engine/internal/session"
)

// NewResultsCmd reads the finalized session record from the durable
// tier, the same handoff the results view consumes.
func NewResultsCmd(configPath *string) *cobra.Command {
	var playerID int64
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show the persisted record of the last finished session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(cmd.Context(), *configPath, playerID)
		},
	}
	cmd.Flags().Int64Var(&playerID, "player", 0, "player id whose record to read")
	return cmd
}

func runResults(ctx context.Context, configPath string, playerID int64) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("results require a configured durable tier (redis)")
	}
	log := logging.New(os.Stderr, slog.LevelWarn)

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	durable := redisinfra.NewKV(client, fmt.Sprintf("player:%d", playerID),
		config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))

	// A fresh volatile tier is empty, so the read falls through to the
	// durable tier exactly like a reloaded tab.
	store := session.NewStore(memory.NewKV(), durable, log)
	record, err := store.LoadRecord(ctx)
	if errors.Is(err, domain.ErrNoRecord) {
		fmt.Println("no finished session found")
		return nil
	}
	if err != nil {
		return err
	}

	heading := color.New(color.FgHiGreen, color.Bold)
	heading.Printf("%s", record.PlayerName)
	if record.Team != "" {
		fmt.Printf(" (%s)", record.Team)
	}
	fmt.Printf(" - quiz %d, finished %s\n", record.QuizID, record.CompletedAt.Format(time.RFC3339))
	agg := record.Aggregate
	fmt.Printf("  score:    %d\n", agg.TotalScore)
	fmt.Printf("  correct:  %d/%d (%d%%)\n", agg.CorrectCount, agg.TotalQuestions, agg.AccuracyPercent)
	fmt.Printf("  avg time: %.1fs\n", agg.AverageResponseTime)
	for i, event := range record.Events {
		mark := color.RedString("✗")
		if event.Correct {
			mark = color.GreenString("✓")
		}
		answer := "timeout"
		if event.Selected != nil && i < len(record.Questions) {
			answer = record.Questions[i].OptionLetter(*event.Selected)
		}
		fmt.Printf("  %s Q%d %s (%ds, %d pts)\n", mark, i+1, answer, event.ResponseTime, event.Score)
	}
	return nil
}
