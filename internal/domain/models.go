package domain

import "time"

// QuestionKind distinguishes the two supported question formats.
type QuestionKind string

const (
	MultipleChoice QuestionKind = "multipleChoice"
	TrueFalse      QuestionKind = "trueFalse"
)

// Identity is the normalized (player, quiz) identity for one play-through.
// All ids are server-assigned integers; the resolver is the only place
// that parses raw storage values into this type.
type Identity struct {
	PlayerID int64  `json:"playerId"`
	QuizID   int64  `json:"quizId"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Team     string `json:"team,omitempty"`
}

// Valid reports whether the identity is usable for a submission.
func (id Identity) Valid() bool {
	return id.PlayerID > 0 && id.QuizID > 0
}

// Question models a single timed question. Immutable once loaded.
type Question struct {
	ID        int64        `json:"id"`
	Prompt    string       `json:"prompt"`
	Options   []string     `json:"options"`   // 2-4 entries, order is significant
	Correct   int          `json:"correct"`   // index into Options
	TimeLimit int          `json:"timeLimit"` // seconds
	Points    int          `json:"points"`    // defaults to 1 if zero
	Kind      QuestionKind `json:"kind"`
}

// OptionLetter converts an option index to the wire letter the answer
// API expects (A-D for multiple choice, T/F for true-false).
func (q Question) OptionLetter(index int) string {
	if q.Kind == TrueFalse {
		if index == 0 {
			return "T"
		}
		return "F"
	}
	if index < 0 || index > 3 {
		return ""
	}
	return string(rune('A' + index))
}

// Quiz is the ordered question list for one session.
type Quiz struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// AnswerEvent is the immutable record of one committed answer or
// timeout. Selected is nil when the countdown expired before a choice.
type AnswerEvent struct {
	QuestionID   int64     `json:"questionId"`
	Selected     *int      `json:"selected"` // nil => timeout
	Correct      bool      `json:"correct"`
	ResponseTime int       `json:"responseTime"` // whole seconds
	Score        int       `json:"score"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// TimedOut reports whether this event was produced by timer expiry.
func (e AnswerEvent) TimedOut() bool {
	return e.Selected == nil
}

// SessionAggregate is derived from the answer event sequence. It is
// recomputed on demand and never maintained incrementally.
type SessionAggregate struct {
	TotalScore          int     `json:"totalScore"`
	CorrectCount        int     `json:"correctCount"`
	TotalQuestions      int     `json:"totalQuestions"`
	AccuracyPercent     int     `json:"accuracyPercent"`
	AverageResponseTime float64 `json:"averageResponseTime"`
}

// PersistedSessionRecord is the finalized snapshot handed to the
// results view. Written once by the persistence layer, read-only after.
type PersistedSessionRecord struct {
	RunID       string           `json:"runId"`
	PlayerID    int64            `json:"playerId"`
	PlayerName  string           `json:"playerName,omitempty"`
	Avatar      string           `json:"avatar,omitempty"`
	Team        string           `json:"team,omitempty"`
	QuizID      int64            `json:"quizId"`
	Aggregate   SessionAggregate `json:"aggregate"`
	Events      []AnswerEvent    `json:"events"`
	Questions   []Question       `json:"questions"`
	CompletedAt time.Time        `json:"completedAt"`
}
