package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-engine/internal/domain"
)

// QuizLoader loads quiz JSONB from Postgres. Rows hold the backend's
// wire shape, which is normalized into domain types on the way out.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	quiz, err := DecodeWireQuiz(raw)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("decode quiz %d: %w", quizID, err)
	}
	quiz.ID = quizID
	return quiz, nil
}

// wireQuiz mirrors the quiz-fetch API payload: questions carry a
// correct-option letter (A-D, or T/F for true-false) rather than an index.
type wireQuiz struct {
	ID        int64          `json:"id"`
	Title     string         `json:"title"`
	Questions []wireQuestion `json:"questions"`
}

type wireQuestion struct {
	ID        int64    `json:"id"`
	Text      string   `json:"text"`
	Options   []string `json:"options"`
	Correct   string   `json:"correct"`
	TimeLimit int      `json:"timeLimit"`
	Score     int      `json:"score"`
	Type      string   `json:"type"`
}

// DecodeWireQuiz converts the backend wire shape into domain types.
func DecodeWireQuiz(raw []byte) (domain.Quiz, error) {
	var wire wireQuiz
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.Quiz{}, err
	}
	quiz := domain.Quiz{ID: wire.ID, Title: wire.Title}
	for _, wq := range wire.Questions {
		question, err := decodeWireQuestion(wq)
		if err != nil {
			return domain.Quiz{}, err
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	return quiz, nil
}

func decodeWireQuestion(wq wireQuestion) (domain.Question, error) {
	kind := domain.MultipleChoice
	if strings.EqualFold(wq.Type, "true_false") || strings.EqualFold(wq.Type, "trueFalse") {
		kind = domain.TrueFalse
	}
	correct, err := letterIndex(wq.Correct, kind)
	if err != nil {
		return domain.Question{}, fmt.Errorf("question %d: %w", wq.ID, err)
	}
	if len(wq.Options) < 2 {
		return domain.Question{}, fmt.Errorf("question %d: need at least two options", wq.ID)
	}
	if correct >= len(wq.Options) {
		return domain.Question{}, fmt.Errorf("question %d: correct option out of range", wq.ID)
	}
	limit := wq.TimeLimit
	if limit <= 0 {
		limit = 20
	}
	points := wq.Score
	if points <= 0 {
		points = 1
	}
	return domain.Question{
		ID:        wq.ID,
		Prompt:    wq.Text,
		Options:   wq.Options,
		Correct:   correct,
		TimeLimit: limit,
		Points:    points,
		Kind:      kind,
	}, nil
}

func letterIndex(letter string, kind domain.QuestionKind) (int, error) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if kind == domain.TrueFalse {
		switch letter {
		case "T", "A":
			return 0, nil
		case "F", "B":
			return 1, nil
		}
		return 0, fmt.Errorf("bad true-false answer %q", letter)
	}
	if len(letter) == 1 && letter[0] >= 'A' && letter[0] <= 'D' {
		return int(letter[0] - 'A'), nil
	}
	return 0, fmt.Errorf("bad answer letter %q", letter)
}
