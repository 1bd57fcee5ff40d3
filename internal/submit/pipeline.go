package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/session"
)

// strategy is one fallback payload shape: pure data plus builders, run
// by the try-in-order combinator below. The backend contract has grown
// several near-compatible shapes; each gets its own entry instead of a
// copy-pasted call site.
type strategy struct {
	name   string
	method string
	path   func(id domain.Identity, event domain.AnswerEvent) string
	body   func(id domain.Identity, event domain.AnswerEvent, q domain.Question) any
}

// Pipeline records committed answers: best-effort network delivery with
// ordered fallbacks, and an unconditional local journal entry. It never
// returns an error to the sequencer and never blocks its transitions.
type Pipeline struct {
	baseURL    string
	client     *http.Client
	store      *session.Store
	log        *slog.Logger
	now        func() time.Time
	strategies []strategy
	question   func(questionID int64) (domain.Question, bool)
}

// NewPipeline builds the pipeline. lookup resolves a question id to its
// content so payloads can carry the answer letter; it may be nil when
// only the generic shape is wanted.
func NewPipeline(baseURL string, client *http.Client, store *session.Store, log *slog.Logger, lookup func(questionID int64) (domain.Question, bool)) *Pipeline {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		baseURL:  baseURL,
		client:   client,
		store:    store,
		log:      log,
		now:      time.Now,
		question: lookup,
	}
	p.strategies = defaultStrategies()
	return p
}

func defaultStrategies() []strategy {
	return []strategy{
		{
			// Per-question sub-resource keyed by player+question.
			name:   "question-answer",
			method: http.MethodPost,
			path: func(id domain.Identity, event domain.AnswerEvent) string {
				return fmt.Sprintf("/players/%d/questions/%d/answer", id.PlayerID, event.QuestionID)
			},
			body: func(id domain.Identity, event domain.AnswerEvent, q domain.Question) any {
				return map[string]any{
					"playerId":     id.PlayerID,
					"questionId":   event.QuestionID,
					"answer":       answerLetter(event, q),
					"isCorrect":    event.Correct,
					"responseTime": event.ResponseTime,
					"score":        event.Score,
					"answeredAt":   event.SubmittedAt.Format(time.RFC3339),
				}
			},
		},
		{
			// Same sub-resource, older field names. Some backend
			// versions only accept this shape.
			name:   "question-answer-legacy",
			method: http.MethodPut,
			path: func(id domain.Identity, event domain.AnswerEvent) string {
				return fmt.Sprintf("/players/%d/questions/%d", id.PlayerID, event.QuestionID)
			},
			body: func(id domain.Identity, event domain.AnswerEvent, q domain.Question) any {
				return map[string]any{
					"player_id":     id.PlayerID,
					"question_id":   event.QuestionID,
					"answer":        answerLetter(event, q),
					"correct":       event.Correct,
					"response_time": event.ResponseTime,
					"points":        event.Score,
					"answered_at":   event.SubmittedAt.Format(time.RFC3339),
				}
			},
		},
		{
			// Generic top-level answers resource with the full event body.
			name:   "answers-create",
			method: http.MethodPost,
			path: func(domain.Identity, domain.AnswerEvent) string {
				return "/answers"
			},
			body: func(id domain.Identity, event domain.AnswerEvent, q domain.Question) any {
				return map[string]any{
					"playerId":     id.PlayerID,
					"quizId":       id.QuizID,
					"questionId":   event.QuestionID,
					"answer":       answerLetter(event, q),
					"isCorrect":    event.Correct,
					"responseTime": event.ResponseTime,
					"score":        event.Score,
					"answeredAt":   event.SubmittedAt.Format(time.RFC3339),
				}
			},
		},
	}
}

func answerLetter(event domain.AnswerEvent, q domain.Question) string {
	if event.Selected == nil {
		return ""
	}
	return q.OptionLetter(*event.Selected)
}

// Submit records one committed event. It validates identity before any
// network call, tries each payload shape until one succeeds, and always
// journals the outcome locally. Nothing here can fail the game flow.
func (p *Pipeline) Submit(ctx context.Context, event domain.AnswerEvent, id domain.Identity) {
	delivered := false
	strategyName := ""

	if !id.Valid() || event.QuestionID <= 0 {
		// Fail fast: never send garbage identifiers to the backend.
		p.log.Warn("submission skipped, identity incomplete",
			"playerId", id.PlayerID, "questionId", event.QuestionID)
	} else if p.baseURL == "" {
		p.log.Debug("no submission endpoint configured, recording locally only")
	} else {
		delivered, strategyName = p.deliver(ctx, event, id)
	}

	outcome := session.SubmissionOutcome{
		QuestionID: event.QuestionID,
		Delivered:  delivered,
		Strategy:   strategyName,
		At:         p.now(),
	}
	// The journal is the guaranteed record when the network fails; the
	// answer log itself was already written at commit time.
	if err := p.store.AppendSubmission(ctx, outcome); err != nil {
		p.log.Warn("submission journal write failed", "err", err)
	}
}

// deliver runs the fallback chain, stopping at the first success. The
// shapes are not guaranteed idempotent server-side, so remaining shapes
// are never attempted after a success.
func (p *Pipeline) deliver(ctx context.Context, event domain.AnswerEvent, id domain.Identity) (bool, string) {
	var q domain.Question
	if p.question != nil {
		q, _ = p.question(event.QuestionID)
	}
	for _, s := range p.strategies {
		if err := p.send(ctx, s, event, id, q); err != nil {
			p.log.Debug("submission attempt failed", "strategy", s.name, "err", err)
			continue
		}
		p.log.Debug("submission delivered", "strategy", s.name, "questionId", event.QuestionID)
		return true, s.name
	}
	p.log.Warn("all submission attempts failed, answer recorded locally",
		"questionId", event.QuestionID)
	return false, ""
}

func (p *Pipeline) send(ctx context.Context, s strategy, event domain.AnswerEvent, id domain.Identity, q domain.Question) error {
	payload, err := json.Marshal(s.body(id, event, q))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, s.method, p.baseURL+s.path(id, event), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
