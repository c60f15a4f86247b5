// Package quiz implements the quiz-taking workflow: quizzes built from
// MCQ questions, time-bounded scored sessions, and the background sweep
// that expires overdue sessions.
package quiz

import (
	"context"
	"fmt"
	"time"

	"github.com/studyable/studyhub/internal/apperr"
)

// Difficulty is the closed difficulty set.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ParseDifficulty validates a difficulty received at the boundary.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(s); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown difficulty %q", apperr.ErrValidation, s)
}

// Question is a multiple-choice question. Options C and D are optional;
// Correct is always one of the options the question actually has.
type Question struct {
	ID          int64      `json:"id"`
	Text        string     `json:"question_text"`
	OptionA     string     `json:"option_a"`
	OptionB     string     `json:"option_b"`
	OptionC     *string    `json:"option_c,omitempty"`
	OptionD     *string    `json:"option_d,omitempty"`
	Correct     string     `json:"correct_option"`
	Explanation string     `json:"explanation,omitempty"`
	Hint        string     `json:"hint,omitempty"`
	Difficulty  Difficulty `json:"difficulty_level"`
	CreatedBy   int64      `json:"user_id,omitempty"`
}

// HasOption reports whether the question offers the given letter.
func (q Question) HasOption(letter string) bool {
	switch letter {
	case "A", "B":
		return true
	case "C":
		return q.OptionC != nil
	case "D":
		return q.OptionD != nil
	}
	return false
}

// Validate checks option letters and the correct answer.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: question text is empty", apperr.ErrValidation)
	}
	if q.OptionA == "" || q.OptionB == "" {
		return fmt.Errorf("%w: options A and B are required", apperr.ErrValidation)
	}
	if q.OptionD != nil && q.OptionC == nil {
		return fmt.Errorf("%w: option D requires option C", apperr.ErrValidation)
	}
	if !q.HasOption(q.Correct) {
		return fmt.Errorf("%w: correct option %q is not offered", apperr.ErrValidation, q.Correct)
	}
	if _, err := ParseDifficulty(string(q.Difficulty)); err != nil {
		return err
	}
	return nil
}

// Quiz is a shareable, read-only-at-session-time quiz definition.
type Quiz struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Difficulty  Difficulty `json:"difficulty_level"`
	Active      bool       `json:"is_active"`
	Public      bool       `json:"is_public"`
	OwnerID     int64      `json:"user_id"`
	SubjectID   *int64     `json:"subject_id,omitempty"`
	CommunityID *int64     `json:"community_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Session is one user's pass through a quiz.
//
// Lifecycle: Active -> Completed (user finished) or Active -> Expired
// (timeout sweep finished it). Both terminal states set Completed; the
// Expired flag records which transition happened.
type Session struct {
	ID               int64            `json:"id"`
	UserID           int64            `json:"user_id"`
	QuizID           int64            `json:"quiz_id"`
	StartedAt        time.Time        `json:"session_start"`
	EndedAt          *time.Time       `json:"session_end,omitempty"`
	Completed        bool             `json:"is_completed"`
	Expired          bool             `json:"is_expired"`
	Answers          map[int64]string `json:"current_answers"`
	Score            *int             `json:"score,omitempty"`
	TimeTakenSeconds *int             `json:"time_taken_seconds,omitempty"`
}

// Active reports whether the session still accepts answers (ignoring
// the timeout, which the engine checks against the clock).
func (s Session) Active() bool {
	return !s.Completed
}

// Result is the outcome of a finished session.
type Result struct {
	SessionID        int64 `json:"session_id"`
	Score            int   `json:"score"`
	TotalQuestions   int   `json:"total_questions"`
	TimeTakenSeconds int   `json:"time_taken_seconds"`
	Expired          bool  `json:"expired"`
}

// Percentage derives the score percentage at read time. ok is false
// for a quiz with zero questions, where the value is undefined and
// must render as "not available".
func (r Result) Percentage() (float64, bool) {
	if r.TotalQuestions == 0 {
		return 0, false
	}
	return float64(r.Score) / float64(r.TotalQuestions) * 100, true
}

// Store persists quizzes, questions, and sessions.
//
// FinishSession is the per-session compare-and-set: it must flip the
// completion flag only if the session is still active, reporting
// whether this call won the transition.
type Store interface {
	CreateQuiz(ctx context.Context, q Quiz) (Quiz, error)
	GetQuiz(ctx context.Context, id int64) (Quiz, error)
	CreateQuestion(ctx context.Context, q Question) (Question, error)
	LinkQuestion(ctx context.Context, quizID, questionID int64, displayOrder int) error
	QuizQuestions(ctx context.Context, quizID int64) ([]Question, error)

	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	ActiveSession(ctx context.Context, userID, quizID int64) (Session, bool, error)
	SaveAnswer(ctx context.Context, sessionID, questionID int64, option string) error
	FinishSession(ctx context.Context, sessionID int64, score int, endedAt time.Time, timeTakenSeconds int, expired bool) (Session, bool, error)
	ActiveSessionsStartedBefore(ctx context.Context, cutoff time.Time) ([]Session, error)
}
