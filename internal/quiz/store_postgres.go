package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyable/studyhub/internal/apperr"
)

// PostgresStore is a PostgreSQL-backed Store over mcq_quiz,
// mcq_question, mcq_quiz_question_link, and quiz_session.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed quiz store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateQuiz(ctx context.Context, q Quiz) (Quiz, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO mcq_quiz (title, description, difficulty_level, is_active, is_public, user_id, subject_id, community_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		q.Title, nullIfEmpty(q.Description), q.Difficulty, q.Active, q.Public, q.OwnerID, q.SubjectID, q.CommunityID,
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		return Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) GetQuiz(ctx context.Context, id int64) (Quiz, error) {
	q := Quiz{ID: id}
	var description *string
	err := s.pool.QueryRow(ctx,
		`SELECT title, description, difficulty_level, is_active, is_public, user_id, subject_id, community_id, created_at
		 FROM mcq_quiz WHERE id = $1`,
		id,
	).Scan(&q.Title, &description, &q.Difficulty, &q.Active, &q.Public, &q.OwnerID, &q.SubjectID, &q.CommunityID, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quiz{}, fmt.Errorf("%w: quiz %d", apperr.ErrNotFound, id)
	}
	if err != nil {
		return Quiz{}, fmt.Errorf("get quiz: %w", err)
	}
	if description != nil {
		q.Description = *description
	}
	return q, nil
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, q Question) (Question, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO mcq_question (question_text, option_a, option_b, option_c, option_d, correct_option,
		                           explanation, hint, difficulty_level, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.Correct,
		nullIfEmpty(q.Explanation), nullIfEmpty(q.Hint), q.Difficulty, nullIfZero(q.CreatedBy),
	).Scan(&q.ID)
	if err != nil {
		return Question{}, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) LinkQuestion(ctx context.Context, quizID, questionID int64, displayOrder int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO mcq_quiz_question_link (quiz_id, question_id, display_order)
		 VALUES ($1, $2, $3)`,
		quizID, questionID, displayOrder,
	)
	if err != nil {
		return fmt.Errorf("link question: %w", err)
	}
	return nil
}

func (s *PostgresStore) QuizQuestions(ctx context.Context, quizID int64) ([]Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT q.id, q.question_text, q.option_a, q.option_b, q.option_c, q.option_d,
		        q.correct_option, COALESCE(q.explanation, ''), COALESCE(q.hint, ''), q.difficulty_level
		 FROM mcq_question q
		 JOIN mcq_quiz_question_link l ON l.question_id = q.id
		 WHERE l.quiz_id = $1
		 ORDER BY l.display_order ASC, q.id ASC`,
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("quiz questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
			&q.Correct, &q.Explanation, &q.Hint, &q.Difficulty); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return questions, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess Session) (Session, error) {
	answers, err := marshalAnswers(sess.Answers)
	if err != nil {
		return Session{}, err
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO quiz_session (user_id, quiz_id, session_start, current_answers)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, session_start`,
		sess.UserID, sess.QuizID, sess.StartedAt, answers,
	).Scan(&sess.ID, &sess.StartedAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id int64) (Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, quiz_id, session_start, session_end, is_completed, is_expired,
		        current_answers, score, time_taken_seconds
		 FROM quiz_session WHERE id = $1`,
		id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: session %d", apperr.ErrNotFound, id)
	}
	return sess, err
}

func (s *PostgresStore) ActiveSession(ctx context.Context, userID, quizID int64) (Session, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, quiz_id, session_start, session_end, is_completed, is_expired,
		        current_answers, score, time_taken_seconds
		 FROM quiz_session
		 WHERE user_id = $1 AND quiz_id = $2 AND NOT is_completed
		 ORDER BY session_start DESC
		 LIMIT 1`,
		userID, quizID,
	)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

func (s *PostgresStore) SaveAnswer(ctx context.Context, sessionID, questionID int64, option string) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE quiz_session
		 SET current_answers = jsonb_set(COALESCE(current_answers, '{}'::jsonb), ARRAY[$2::text], to_jsonb($3::text), true),
		     updated_at = NOW()
		 WHERE id = $1 AND NOT is_completed`,
		sessionID, strconv.FormatInt(questionID, 10), option,
	)
	if err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return err
		}
		return fmt.Errorf("%w: session %d is finished", apperr.ErrSessionClosed, sessionID)
	}
	return nil
}

func (s *PostgresStore) FinishSession(ctx context.Context, sessionID int64, score int, endedAt time.Time, timeTakenSeconds int, expired bool) (Session, bool, error) {
	// Compare-and-set on is_completed: only the first of a user
	// completion and the timeout sweep flips it; the loser reads back
	// what the winner wrote.
	row := s.pool.QueryRow(ctx,
		`UPDATE quiz_session
		 SET is_completed = true, is_expired = $5, session_end = $2, score = $3,
		     time_taken_seconds = $4, updated_at = NOW()
		 WHERE id = $1 AND NOT is_completed
		 RETURNING id, user_id, quiz_id, session_start, session_end, is_completed, is_expired,
		           current_answers, score, time_taken_seconds`,
		sessionID, endedAt, score, timeTakenSeconds, expired,
	)
	sess, err := scanSession(row)
	if err == nil {
		return sess, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Session{}, false, fmt.Errorf("finish session: %w", err)
	}

	sess, err = s.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, false, err
	}
	return sess, false, nil
}

func (s *PostgresStore) ActiveSessionsStartedBefore(ctx context.Context, cutoff time.Time) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, quiz_id, session_start, session_end, is_completed, is_expired,
		        current_answers, score, time_taken_seconds
		 FROM quiz_session
		 WHERE NOT is_completed AND session_start < $1
		 ORDER BY id ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("overdue sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	var answers []byte
	err := row.Scan(&sess.ID, &sess.UserID, &sess.QuizID, &sess.StartedAt, &sess.EndedAt,
		&sess.Completed, &sess.Expired, &answers, &sess.Score, &sess.TimeTakenSeconds)
	if err != nil {
		return Session{}, err
	}
	sess.Answers, err = unmarshalAnswers(answers)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func marshalAnswers(answers map[int64]string) ([]byte, error) {
	byKey := make(map[string]string, len(answers))
	for id, option := range answers {
		byKey[strconv.FormatInt(id, 10)] = option
	}
	data, err := json.Marshal(byKey)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	return data, nil
}

func unmarshalAnswers(data []byte) (map[int64]string, error) {
	answers := map[int64]string{}
	if len(data) == 0 {
		return answers, nil
	}
	var byKey map[string]string
	if err := json.Unmarshal(data, &byKey); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	for key, option := range byKey {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unmarshal answers: bad question id %q", key)
		}
		answers[id] = option
	}
	return answers, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullIfZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
