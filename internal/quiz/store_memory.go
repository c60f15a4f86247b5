package quiz

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/studyable/studyhub/internal/apperr"
)

type link struct {
	questionID   int64
	displayOrder int
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu           sync.Mutex
	nextQuiz     int64
	nextQuestion int64
	nextSession  int64
	quizzes      map[int64]Quiz
	questions    map[int64]Question
	links        map[int64][]link
	sessions     map[int64]*Session
}

// NewMemoryStore creates an empty in-memory quiz store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quizzes:   make(map[int64]Quiz),
		questions: make(map[int64]Question),
		links:     make(map[int64][]link),
		sessions:  make(map[int64]*Session),
	}
}

func (s *MemoryStore) CreateQuiz(_ context.Context, q Quiz) (Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextQuiz++
	q.ID = s.nextQuiz
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	s.quizzes[q.ID] = q
	return q, nil
}

func (s *MemoryStore) GetQuiz(_ context.Context, id int64) (Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quizzes[id]
	if !ok {
		return Quiz{}, fmt.Errorf("%w: quiz %d", apperr.ErrNotFound, id)
	}
	return q, nil
}

func (s *MemoryStore) CreateQuestion(_ context.Context, q Question) (Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextQuestion++
	q.ID = s.nextQuestion
	s.questions[q.ID] = q
	return q, nil
}

func (s *MemoryStore) LinkQuestion(_ context.Context, quizID, questionID int64, displayOrder int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quizzes[quizID]; !ok {
		return fmt.Errorf("%w: quiz %d", apperr.ErrNotFound, quizID)
	}
	if _, ok := s.questions[questionID]; !ok {
		return fmt.Errorf("%w: question %d", apperr.ErrNotFound, questionID)
	}
	for _, l := range s.links[quizID] {
		if l.questionID == questionID {
			return fmt.Errorf("%w: question %d already linked to quiz %d", apperr.ErrConflict, questionID, quizID)
		}
	}
	s.links[quizID] = append(s.links[quizID], link{questionID: questionID, displayOrder: displayOrder})
	return nil
}

func (s *MemoryStore) QuizQuestions(_ context.Context, quizID int64) ([]Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	links := append([]link{}, s.links[quizID]...)
	sort.Slice(links, func(i, j int) bool { return links[i].displayOrder < links[j].displayOrder })

	questions := make([]Question, 0, len(links))
	for _, l := range links {
		questions = append(questions, s.questions[l.questionID])
	}
	return questions, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, sess Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSession++
	sess.ID = s.nextSession
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	if sess.Answers == nil {
		sess.Answers = map[int64]string{}
	}
	stored := sess
	s.sessions[sess.ID] = &stored
	return sess, nil
}

func (s *MemoryStore) GetSession(_ context.Context, id int64) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: session %d", apperr.ErrNotFound, id)
	}
	return copySession(*sess), nil
}

func (s *MemoryStore) ActiveSession(_ context.Context, userID, quizID int64) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.QuizID == quizID && !sess.Completed {
			return copySession(*sess), true, nil
		}
	}
	return Session{}, false, nil
}

func (s *MemoryStore) SaveAnswer(_ context.Context, sessionID, questionID int64, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: session %d", apperr.ErrNotFound, sessionID)
	}
	if sess.Completed {
		return fmt.Errorf("%w: session %d is finished", apperr.ErrSessionClosed, sessionID)
	}
	sess.Answers[questionID] = option
	return nil
}

func (s *MemoryStore) FinishSession(_ context.Context, sessionID int64, score int, endedAt time.Time, timeTakenSeconds int, expired bool) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, false, fmt.Errorf("%w: session %d", apperr.ErrNotFound, sessionID)
	}
	if sess.Completed {
		return copySession(*sess), false, nil
	}
	sess.Completed = true
	sess.Expired = expired
	sess.EndedAt = &endedAt
	sess.Score = &score
	sess.TimeTakenSeconds = &timeTakenSeconds
	return copySession(*sess), true, nil
}

func (s *MemoryStore) ActiveSessionsStartedBefore(_ context.Context, cutoff time.Time) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	overdue := []Session{}
	for _, sess := range s.sessions {
		if !sess.Completed && sess.StartedAt.Before(cutoff) {
			overdue = append(overdue, copySession(*sess))
		}
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].ID < overdue[j].ID })
	return overdue, nil
}

func copySession(s Session) Session {
	answers := make(map[int64]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	s.Answers = answers
	return s
}
