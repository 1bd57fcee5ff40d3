package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/session"
)

// State is the sequencer's position in the play-through lifecycle.
type State int

const (
	StateLoading State = iota
	StateReady
	StateCommitted
	StateRevealed
	StateAdvancing
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateCommitted:
		return "committed"
	case StateRevealed:
		return "revealed"
	case StateAdvancing:
		return "advancing"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	}
	return "unknown"
}

// QuizSource loads quiz content (cache/backing store).
type QuizSource interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// Submitter delivers committed answer events to the backend. It must
// never block the caller's state transition; the sequencer dispatches
// it on its own goroutine and only ever observes it through logs.
type Submitter interface {
	Submit(ctx context.Context, event domain.AnswerEvent, id domain.Identity)
}

// Config carries the pacing knobs. Zero values fall back to the
// production pacing: 1s reveal, 2s advance, 1s timer tick.
type Config struct {
	RevealDwell  time.Duration
	AdvanceDwell time.Duration
	TickInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RevealDwell <= 0 {
		c.RevealDwell = time.Second
	}
	if c.AdvanceDwell <= 0 {
		c.AdvanceDwell = 2 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// Sequencer drives one player through the ordered question list:
// Loading -> Ready(i) -> Committed(i) -> Revealed(i) -> Advancing(i)
// -> Ready(i+1) | Finished. Commit is synchronous and authoritative;
// network submission is a side effect with no return path.
type Sequencer struct {
	cfg       Config
	identity  domain.Identity
	quizzes   QuizSource
	submitter Submitter
	store     *session.Store
	log       *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     State
	quiz      domain.Quiz
	index     int
	committed bool
	timer     *Countdown
	events    []domain.AnswerEvent
	record    domain.PersistedSessionRecord
	recorded  bool

	ctx  context.Context
	done chan struct{}
}

func NewSequencer(id domain.Identity, quizzes QuizSource, submitter Submitter, store *session.Store, log *slog.Logger, cfg Config) *Sequencer {
	return NewSequencerWithClock(id, quizzes, submitter, store, log, cfg, time.Now)
}

// NewSequencerWithClock is test-only for deterministic timestamps.
func NewSequencerWithClock(id domain.Identity, quizzes QuizSource, submitter Submitter, store *session.Store, log *slog.Logger, cfg Config, now func() time.Time) *Sequencer {
	if log == nil {
		log = slog.Default()
	}
	return &Sequencer{
		cfg:       cfg.withDefaults(),
		identity:  id,
		quizzes:   quizzes,
		submitter: submitter,
		store:     store,
		log:       log,
		now:       now,
		state:     StateLoading,
		done:      make(chan struct{}),
	}
}

// Start performs the one-time load and arms the first question. A load
// failure is terminal; retrying is a user action, not an engine loop.
func (s *Sequencer) Start(ctx context.Context) error {
	quiz, err := s.quizzes.GetQuiz(ctx, s.identity.QuizID)
	if err != nil {
		s.mu.Lock()
		s.state = StateError
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", domain.ErrQuizLoadFailed, err)
	}

	s.mu.Lock()
	s.quiz = quiz
	s.ctx = ctx
	s.mu.Unlock()

	// Snapshot quiz content for reload recovery; losing this only costs
	// the recovery path, never the live session.
	if err := s.store.SaveQuiz(ctx, quiz); err != nil {
		s.log.Warn("quiz snapshot not persisted", "err", err)
	}
	if err := s.store.SaveQuestions(ctx, quiz.Questions); err != nil {
		s.log.Warn("question list not persisted", "err", err)
	}

	if len(quiz.Questions) == 0 {
		s.log.Info("quiz has no questions, finishing immediately", "quizId", quiz.ID)
		s.finish()
		return nil
	}

	s.arm(0)
	return nil
}

// arm transitions into Ready(i) with a fresh full-value countdown.
func (s *Sequencer) arm(index int) {
	s.mu.Lock()
	question := s.quiz.Questions[index]
	s.index = index
	s.committed = false
	s.state = StateReady
	s.timer = NewCountdownWithInterval(question.TimeLimit, s.cfg.TickInterval, nil, s.expire)
	timer := s.timer
	s.mu.Unlock()

	s.log.Debug("question ready", "index", index, "questionId", question.ID, "timeLimit", question.TimeLimit)
	timer.Start()
}

// SelectAnswer commits the player's choice. Re-entrant calls after the
// first commit for a question are discarded, so a rapid double click
// cannot score twice.
func (s *Sequencer) SelectAnswer(option int) {
	s.commit(&option)
}

// expire is the countdown's one-shot callback.
func (s *Sequencer) expire() {
	s.commit(nil)
}

// commit turns an answer or timeout into the immutable AnswerEvent.
// First writer wins; the losing side of the click/expiry race is
// silently discarded.
func (s *Sequencer) commit(selected *int) {
	s.mu.Lock()
	index := s.index
	if s.state != StateReady || s.committed {
		s.mu.Unlock()
		s.log.Debug("duplicate commit discarded", "index", index)
		return
	}
	s.committed = true
	s.timer.Stop()

	question := s.quiz.Questions[index]
	responseTime := s.timer.Elapsed()
	correct := false
	score := 0
	if selected != nil {
		if *selected < 0 || *selected >= len(question.Options) {
			// An out-of-range pick can only come from a stale UI; treat
			// it as a wrong answer rather than dropping the question.
			s.log.Warn("selected option out of range", "index", index, "option", *selected)
		} else {
			correct = *selected == question.Correct
		}
		score = Score(correct, responseTime, question.TimeLimit, question.Points)
	} else {
		responseTime = question.TimeLimit
	}

	event := domain.AnswerEvent{
		QuestionID:   question.ID,
		Selected:     selected,
		Correct:      correct,
		ResponseTime: responseTime,
		Score:        score,
		SubmittedAt:  s.now(),
	}
	s.events = append(s.events, event)
	s.state = StateCommitted
	eventsCopy := append([]domain.AnswerEvent(nil), s.events...)
	ctx := s.ctx
	s.mu.Unlock()

	s.log.Info("answer committed",
		"index", index, "questionId", question.ID,
		"timeout", selected == nil, "correct", correct, "score", score)

	// Local record first: the answer log is the source of truth whether
	// or not the network ever succeeds.
	if err := s.store.SaveAnswers(ctx, eventsCopy); err != nil {
		s.log.Warn("answer log not persisted", "err", err)
	}

	// Fire-and-forget delivery; the transition below never waits on it.
	go s.submitter.Submit(ctx, event, s.identity)

	go s.dwell()
}

// dwell walks the two fixed pacing states and advances.
func (s *Sequencer) dwell() {
	s.setState(StateRevealed)
	time.Sleep(s.cfg.RevealDwell)
	s.setState(StateAdvancing)
	time.Sleep(s.cfg.AdvanceDwell)

	s.mu.Lock()
	next := s.index + 1
	last := next >= len(s.quiz.Questions)
	s.mu.Unlock()

	if last {
		s.finish()
		return
	}
	s.arm(next)
}

func (s *Sequencer) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// finish aggregates, persists the finalized record, and closes the
// session. It is reachable even when every question timed out or every
// submission failed; nothing here depends on network success.
func (s *Sequencer) finish() {
	s.mu.Lock()
	if s.state == StateFinished {
		s.mu.Unlock()
		return
	}
	s.state = StateFinished
	events := append([]domain.AnswerEvent(nil), s.events...)
	questions := s.quiz.Questions
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	aggregate := Aggregate(events, len(questions))
	record, err := s.store.FinalizeSession(ctx, s.identity, aggregate, events, questions)
	if err != nil {
		s.log.Warn("finalized record not fully persisted", "err", err)
	}

	s.mu.Lock()
	s.record = record
	s.recorded = true
	s.mu.Unlock()

	s.log.Info("session finished",
		"totalScore", aggregate.TotalScore,
		"correct", aggregate.CorrectCount,
		"questions", aggregate.TotalQuestions)
	close(s.done)
}

// State returns the current lifecycle state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the active question and its index. ok is false before
// loading completes or after the session finished.
func (s *Sequencer) Current() (domain.Question, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLoading || s.state == StateError || s.state == StateFinished {
		return domain.Question{}, 0, false
	}
	return s.quiz.Questions[s.index], s.index, true
}

// Remaining exposes the live countdown value for display.
func (s *Sequencer) Remaining() (seconds int, percent float64) {
	s.mu.Lock()
	timer := s.timer
	s.mu.Unlock()
	if timer == nil {
		return 0, 0
	}
	return timer.Remaining(), timer.Percent()
}

// Events returns a copy of the committed answer sequence.
func (s *Sequencer) Events() []domain.AnswerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AnswerEvent(nil), s.events...)
}

// Aggregate recomputes the session totals from the event log.
func (s *Sequencer) Aggregate() domain.SessionAggregate {
	s.mu.Lock()
	events := append([]domain.AnswerEvent(nil), s.events...)
	total := len(s.quiz.Questions)
	s.mu.Unlock()
	return Aggregate(events, total)
}

// Record returns the finalized session record once Finished is reached.
func (s *Sequencer) Record() (domain.PersistedSessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record, s.recorded
}

// Done closes when the sequencer reaches its terminal Finished state.
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}
