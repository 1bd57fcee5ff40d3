package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-session-engine/internal/domain"
)

// KV is a single storage tier. Implementations live in internal/infra.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Per-concern keys. Independent keys keep partial recovery possible;
// a single oversized blob would lose everything at once.
const (
	KeyIdentity    = "session:identity"
	KeyQuiz        = "session:quiz"
	KeyAnswers     = "session:answers"
	KeyQuestions   = "session:questions"
	KeyResult      = "session:result"
	KeySubmissions = "session:submissions"
)

// SubmissionOutcome journals how one answer was recorded: delivered to
// the backend by a named strategy, or retained locally only.
type SubmissionOutcome struct {
	QuestionID int64     `json:"questionId"`
	Delivered  bool      `json:"delivered"`
	Strategy   string    `json:"strategy,omitempty"`
	At         time.Time `json:"at"`
}

// Store is the two-tier session persistence layer. Reads try the
// volatile tier first and fall back to the durable tier; writes that
// matter after a reload go to both tiers. Either tier may be cleared
// independently, so neither side is trusted alone.
type Store struct {
	volatile KV
	durable  KV
	log      *slog.Logger
	now      func() time.Time

	// Serializes the journal's read-modify-write; submissions are
	// dispatched on their own goroutines.
	journalMu sync.Mutex
}

func NewStore(volatile, durable KV, log *slog.Logger) *Store {
	return NewStoreWithClock(volatile, durable, log, time.Now)
}

// NewStoreWithClock is test-only for deterministic timestamps.
func NewStoreWithClock(volatile, durable KV, log *slog.Logger, now func() time.Time) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{volatile: volatile, durable: durable, log: log, now: now}
}

// get reads volatile first, then durable. Never the reverse: the
// volatile tier always holds the freshest copy within a tab's lifetime.
func (s *Store) get(ctx context.Context, key string) ([]byte, bool, error) {
	if data, ok, err := s.volatile.Get(ctx, key); err == nil && ok {
		return data, true, nil
	} else if err != nil {
		s.log.Warn("volatile read failed", "key", key, "err", err)
	}
	data, ok, err := s.durable.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("durable read %s: %w", key, err)
	}
	return data, ok, nil
}

// set writes both tiers. A single-tier failure is logged and tolerated;
// the write only fails when neither tier accepted it.
func (s *Store) set(ctx context.Context, key string, value []byte) error {
	verr := s.volatile.Set(ctx, key, value)
	if verr != nil {
		s.log.Warn("volatile write failed", "key", key, "err", verr)
	}
	derr := s.durable.Set(ctx, key, value)
	if derr != nil {
		s.log.Warn("durable write failed", "key", key, "err", derr)
	}
	if verr != nil && derr != nil {
		return fmt.Errorf("write %s: %w", key, derr)
	}
	return nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.set(ctx, key, data)
}

func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// LoadRawIdentity hands the undecoded identity blob to the resolver,
// which owns all coercion of untyped values.
func (s *Store) LoadRawIdentity(ctx context.Context) ([]byte, bool, error) {
	return s.get(ctx, KeyIdentity)
}

// SaveIdentity rewrites the normalized identity so later reads never
// see the raw, loosely typed blob again.
func (s *Store) SaveIdentity(ctx context.Context, id domain.Identity) error {
	return s.setJSON(ctx, KeyIdentity, id)
}

func (s *Store) LoadIdentity(ctx context.Context) (domain.Identity, bool, error) {
	var id domain.Identity
	ok, err := s.getJSON(ctx, KeyIdentity, &id)
	return id, ok, err
}

func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	return s.setJSON(ctx, KeyQuiz, quiz)
}

func (s *Store) LoadQuiz(ctx context.Context) (domain.Quiz, bool, error) {
	var quiz domain.Quiz
	ok, err := s.getJSON(ctx, KeyQuiz, &quiz)
	return quiz, ok, err
}

func (s *Store) SaveQuestions(ctx context.Context, questions []domain.Question) error {
	return s.setJSON(ctx, KeyQuestions, questions)
}

func (s *Store) LoadQuestions(ctx context.Context) ([]domain.Question, bool, error) {
	var questions []domain.Question
	ok, err := s.getJSON(ctx, KeyQuestions, &questions)
	return questions, ok, err
}

// SaveAnswers replaces the whole answer log. Callers append to their
// in-memory sequence and write the full value; partial patches from
// different call sites would clobber each other.
func (s *Store) SaveAnswers(ctx context.Context, events []domain.AnswerEvent) error {
	return s.setJSON(ctx, KeyAnswers, events)
}

func (s *Store) LoadAnswers(ctx context.Context) ([]domain.AnswerEvent, bool, error) {
	var events []domain.AnswerEvent
	ok, err := s.getJSON(ctx, KeyAnswers, &events)
	return events, ok, err
}

// AppendSubmission journals a submission outcome with a whole-record
// read-modify-write on its own key.
func (s *Store) AppendSubmission(ctx context.Context, outcome SubmissionOutcome) error {
	s.journalMu.Lock()
	defer s.journalMu.Unlock()

	var outcomes []SubmissionOutcome
	if _, err := s.getJSON(ctx, KeySubmissions, &outcomes); err != nil {
		s.log.Warn("submission journal read failed, starting fresh", "err", err)
		outcomes = nil
	}
	outcomes = append(outcomes, outcome)
	return s.setJSON(ctx, KeySubmissions, outcomes)
}

func (s *Store) LoadSubmissions(ctx context.Context) ([]SubmissionOutcome, bool, error) {
	var outcomes []SubmissionOutcome
	ok, err := s.getJSON(ctx, KeySubmissions, &outcomes)
	return outcomes, ok, err
}

// FinalizeSession writes the record the results view consumes. It must
// produce a valid (possibly zero-score) record even when upstream steps
// partially failed, so a completed play-through never hands off nothing.
func (s *Store) FinalizeSession(ctx context.Context, id domain.Identity, aggregate domain.SessionAggregate, events []domain.AnswerEvent, questions []domain.Question) (domain.PersistedSessionRecord, error) {
	if events == nil {
		events = []domain.AnswerEvent{}
	}
	if questions == nil {
		questions = []domain.Question{}
	}
	record := domain.PersistedSessionRecord{
		RunID:       uuid.NewString(),
		PlayerID:    id.PlayerID,
		PlayerName:  id.Name,
		Avatar:      id.Avatar,
		Team:        id.Team,
		QuizID:      id.QuizID,
		Aggregate:   aggregate,
		Events:      events,
		Questions:   questions,
		CompletedAt: s.now(),
	}
	if err := s.setJSON(ctx, KeyResult, record); err != nil {
		return record, err
	}
	return record, nil
}

// LoadRecord reads the finalized record from the well-known key.
func (s *Store) LoadRecord(ctx context.Context) (domain.PersistedSessionRecord, error) {
	var record domain.PersistedSessionRecord
	ok, err := s.getJSON(ctx, KeyResult, &record)
	if err != nil {
		return record, err
	}
	if !ok {
		return record, domain.ErrNoRecord
	}
	return record, nil
}
