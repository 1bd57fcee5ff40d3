package engine

import (
	"math"

	"quiz-session-engine/internal/domain"
)

// Score converts a committed answer into awarded points. Answering
// instantly earns the full base points; answering exactly at the limit
// earns half; a correct answer never drops below half. Timeouts never
// reach this formula: they are recorded through the nil-selection path
// and always score zero.
func Score(correct bool, responseTimeSeconds, timeLimitSeconds, basePoints int) int {
	if !correct {
		return 0
	}
	if basePoints <= 0 {
		basePoints = 1
	}
	if timeLimitSeconds <= 0 {
		return basePoints
	}
	ratio := float64(responseTimeSeconds) / float64(timeLimitSeconds)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	multiplier := 1 - 0.5*ratio
	return int(math.Round(float64(basePoints) * multiplier))
}

// Aggregate is a pure fold over the answer event sequence. It is the
// only source of session totals; nothing maintains running counters
// that could drift from the log.
func Aggregate(events []domain.AnswerEvent, totalQuestions int) domain.SessionAggregate {
	agg := domain.SessionAggregate{TotalQuestions: totalQuestions}
	if totalQuestions == 0 {
		return agg
	}
	var responseSum int
	for _, event := range events {
		agg.TotalScore += event.Score
		if event.Correct {
			agg.CorrectCount++
		}
		responseSum += event.ResponseTime
	}
	agg.AccuracyPercent = int(math.Round(100 * float64(agg.CorrectCount) / float64(totalQuestions)))
	if len(events) > 0 {
		agg.AverageResponseTime = float64(responseSum) / float64(len(events))
	}
	return agg
}
