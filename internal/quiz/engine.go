package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/notify"
)

// SessionPolicy controls how many active sessions one user may hold on
// the same quiz.
type SessionPolicy string

const (
	// PolicySingleActive rejects a second active session per (user, quiz).
	PolicySingleActive SessionPolicy = "single-active"
	// PolicyUnlimited allows any number of concurrent sessions.
	PolicyUnlimited SessionPolicy = "unlimited"
)

const defaultTimeout = 30 * time.Minute

// EngineConfig holds dependencies for the session engine.
type EngineConfig struct {
	Store   Store
	Events  notify.Publisher
	Timeout time.Duration // session expiry window (default 30m)
	Policy  SessionPolicy // default single-active
}

// Engine runs the quiz session state machine. The quiz definition is
// read-only from here: many concurrent sessions read it unlocked.
type Engine struct {
	store   Store
	events  notify.Publisher
	timeout time.Duration
	policy  SessionPolicy
	now     func() time.Time
}

// NewEngine creates a session engine.
func NewEngine(cfg EngineConfig) *Engine {
	events := cfg.Events
	if events == nil {
		events = notify.NopPublisher{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicySingleActive
	}
	return &Engine{
		store:   cfg.Store,
		events:  events,
		timeout: timeout,
		policy:  policy,
		now:     time.Now,
	}
}

// Start opens a new session on an active quiz.
func (e *Engine) Start(ctx context.Context, userID, quizID int64) (Session, error) {
	quiz, err := e.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Session{}, err
	}
	if !quiz.Active {
		return Session{}, fmt.Errorf("%w: quiz %d is inactive", apperr.ErrNotFound, quizID)
	}

	if e.policy == PolicySingleActive {
		existing, found, err := e.store.ActiveSession(ctx, userID, quizID)
		if err != nil {
			return Session{}, err
		}
		if found && e.now().Before(existing.StartedAt.Add(e.timeout)) {
			return Session{}, fmt.Errorf("%w: user %d already has active session %d on quiz %d",
				apperr.ErrConflict, userID, existing.ID, quizID)
		}
	}

	return e.store.CreateSession(ctx, Session{
		UserID:    userID,
		QuizID:    quizID,
		StartedAt: e.now(),
		Answers:   map[int64]string{},
	})
}

// Submit records an answer. Last write wins per question. Valid only
// while the session is active and inside the timeout window.
func (e *Engine) Submit(ctx context.Context, actorID, sessionID, questionID int64, option string) error {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != actorID {
		return fmt.Errorf("%w: session %d does not belong to user %d", apperr.ErrForbidden, sessionID, actorID)
	}
	if !session.Active() {
		return fmt.Errorf("%w: session %d is finished", apperr.ErrSessionClosed, sessionID)
	}
	if !e.now().Before(session.StartedAt.Add(e.timeout)) {
		return fmt.Errorf("%w: session %d has run out of time", apperr.ErrSessionClosed, sessionID)
	}

	questions, err := e.store.QuizQuestions(ctx, session.QuizID)
	if err != nil {
		return err
	}
	var question *Question
	for i := range questions {
		if questions[i].ID == questionID {
			question = &questions[i]
			break
		}
	}
	if question == nil {
		return fmt.Errorf("%w: question %d is not part of quiz %d", apperr.ErrValidation, questionID, session.QuizID)
	}
	if !question.HasOption(option) {
		return fmt.Errorf("%w: question %d has no option %q", apperr.ErrValidation, questionID, option)
	}

	return e.store.SaveAnswer(ctx, sessionID, questionID, option)
}

// Complete transitions a session to Completed and returns its result.
// Idempotent: a second call returns the stored result unchanged, and a
// completion racing the timeout sweep loses cleanly to it.
func (e *Engine) Complete(ctx context.Context, actorID, sessionID int64) (Result, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if session.UserID != actorID {
		return Result{}, fmt.Errorf("%w: session %d does not belong to user %d", apperr.ErrForbidden, sessionID, actorID)
	}
	return e.finish(ctx, session, false, e.now())
}

// Sweep expires every active session past its time budget, scoring the
// answers recorded so far. Run periodically in the background.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.timeout)
	overdue, err := e.store.ActiveSessionsStartedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, session := range overdue {
		endedAt := session.StartedAt.Add(e.timeout)
		if _, err := e.finish(ctx, session, true, endedAt); err != nil {
			slog.Warn("session expiry failed", "session_id", session.ID, "error", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		slog.Info("expired overdue sessions", "count", expired)
	}
	return expired, nil
}

// finish performs the terminal transition. The store's compare-and-set
// decides the winner between a user completion and the sweep; the loser
// reads back whatever the winner wrote.
func (e *Engine) finish(ctx context.Context, session Session, expired bool, endedAt time.Time) (Result, error) {
	questions, err := e.store.QuizQuestions(ctx, session.QuizID)
	if err != nil {
		return Result{}, err
	}

	if session.Completed {
		return e.storedResult(session, len(questions)), nil
	}

	score := Score(questions, session.Answers)
	timeTaken := int(endedAt.Sub(session.StartedAt) / time.Second)

	updated, won, err := e.store.FinishSession(ctx, session.ID, score, endedAt, timeTaken, expired)
	if err != nil {
		return Result{}, err
	}
	if !won {
		return e.storedResult(updated, len(questions)), nil
	}

	result := Result{
		SessionID:        session.ID,
		Score:            score,
		TotalQuestions:   len(questions),
		TimeTakenSeconds: timeTaken,
		Expired:          expired,
	}

	quizTitle := ""
	if quiz, err := e.store.GetQuiz(ctx, session.QuizID); err == nil {
		quizTitle = quiz.Title
	}
	e.events.Dispatch(notify.QuizResultEvent(session.UserID, session.QuizID, quizTitle, score, len(questions)))

	return result, nil
}

func (e *Engine) storedResult(session Session, total int) Result {
	r := Result{
		SessionID:      session.ID,
		TotalQuestions: total,
		Expired:        session.Expired,
	}
	if session.Score != nil {
		r.Score = *session.Score
	}
	if session.TimeTakenSeconds != nil {
		r.TimeTakenSeconds = *session.TimeTakenSeconds
	}
	return r
}

// Score counts one point per answered question whose stored option
// matches the question's correct option. Unanswered questions score
// zero; there is no partial credit and no negative marking.
func Score(questions []Question, answers map[int64]string) int {
	score := 0
	for _, q := range questions {
		if answers[q.ID] == q.Correct {
			score++
		}
	}
	return score
}
