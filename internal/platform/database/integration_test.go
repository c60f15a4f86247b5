package database_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/studyable/studyhub/internal/annotation"
	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
	"github.com/studyable/studyhub/internal/notify"
	"github.com/studyable/studyhub/internal/platform/database"
	"github.com/studyable/studyhub/internal/quiz"
	"github.com/studyable/studyhub/internal/version"
)

// startPostgres runs a throwaway PostgreSQL container for the test.
func startPostgres(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode (requires Docker)")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("studyhub_test"),
		postgres.WithUsername("study"),
		postgres.WithPassword("study"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("container connection string: %v", err)
	}

	db, err := database.New(ctx, connStr, 5, 1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestMigrateAndSessionRoundTrip(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	if err := database.Migrate(db.Pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// A second run must be a no-op, not an error.
	if err := database.Migrate(db.Pool); err != nil {
		t.Fatalf("repeat Migrate() error = %v", err)
	}

	var userID int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO app_user (username, email, display_name) VALUES ($1, $2, $3) RETURNING id`,
		"aida", "aida@example.com", "Aida").Scan(&userID)
	if err != nil {
		t.Fatalf("inserting user: %v", err)
	}

	store := quiz.NewPostgresStore(db.Pool)

	q, err := store.CreateQuiz(ctx, quiz.Quiz{
		Title:      "Fractions",
		Difficulty: quiz.DifficultyEasy,
		Active:     true,
		OwnerID:    userID,
	})
	if err != nil {
		t.Fatalf("CreateQuiz() error = %v", err)
	}

	question, err := store.CreateQuestion(ctx, quiz.Question{
		Text:       "What is 1/2 + 1/4?",
		OptionA:    "3/4",
		OptionB:    "2/6",
		Correct:    "A",
		Difficulty: quiz.DifficultyEasy,
		CreatedBy:  userID,
	})
	if err != nil {
		t.Fatalf("CreateQuestion() error = %v", err)
	}
	if err := store.LinkQuestion(ctx, q.ID, question.ID, 1); err != nil {
		t.Fatalf("LinkQuestion() error = %v", err)
	}

	sess, err := store.CreateSession(ctx, quiz.Session{
		UserID:    userID,
		QuizID:    q.ID,
		StartedAt: time.Now(),
		Answers:   map[int64]string{},
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err := store.SaveAnswer(ctx, sess.ID, question.ID, "A"); err != nil {
		t.Fatalf("SaveAnswer() error = %v", err)
	}
	got, err := store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Answers[question.ID] != "A" {
		t.Errorf("Answers = %v, want the saved option round-tripped through jsonb", got.Answers)
	}

	endedAt := time.Now()
	finished, won, err := store.FinishSession(ctx, sess.ID, 1, endedAt, 60, false)
	if err != nil {
		t.Fatalf("FinishSession() error = %v", err)
	}
	if !won {
		t.Fatal("FinishSession() won = false on an active session")
	}
	if finished.Score == nil || *finished.Score != 1 {
		t.Errorf("Score = %v, want 1", finished.Score)
	}

	// A racing second finish loses the compare-and-set and reads back
	// the stored transition.
	_, won, err = store.FinishSession(ctx, sess.ID, 0, endedAt, 61, true)
	if err != nil {
		t.Fatalf("repeat FinishSession() error = %v", err)
	}
	if won {
		t.Error("repeat FinishSession() won = true, want the first transition kept")
	}
	got, err = store.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Expired || got.Score == nil || *got.Score != 1 {
		t.Errorf("session after losing finish = %+v, want the winner's values", got)
	}
}

func TestContentStoresRoundTrip(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	if err := database.Migrate(db.Pool); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var userID int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO app_user (username, email, display_name) VALUES ($1, $2, $3) RETURNING id`,
		"bert", "bert@example.com", "Bert").Scan(&userID)
	if err != nil {
		t.Fatalf("inserting user: %v", err)
	}

	var summaryID int64
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO summary (title, full_markdown, user_id, is_public) VALUES ($1, $2, $3, TRUE) RETURNING id`,
		"Algebra", "# Algebra").Scan(&summaryID)
	if err != nil {
		t.Fatalf("inserting summary: %v", err)
	}
	ref := content.Ref{Kind: content.KindSummary, ID: summaryID}

	res, err := content.NewPostgresStore(db.Pool).Lookup(ctx, ref)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if res.OwnerID != userID || !res.Public || res.CommunityID != nil {
		t.Errorf("Lookup() = %+v, want owner %d, public, no community", res, userID)
	}

	annotations := annotation.NewPostgresStore(db.Pool)

	comment, err := annotations.InsertComment(ctx, annotation.Comment{
		AuthorID: userID,
		Ref:      ref,
		Body:     "clear walkthrough",
	})
	if err != nil {
		t.Fatalf("InsertComment() error = %v", err)
	}
	got, err := annotations.GetComment(ctx, comment.ID)
	if err != nil {
		t.Fatalf("GetComment() error = %v", err)
	}
	if got.AuthorID != userID || got.Body != "clear walkthrough" || got.Ref != ref {
		t.Errorf("GetComment() = %+v, want the inserted comment back", got)
	}
	if got.Edited || got.Deleted {
		t.Errorf("GetComment() flags = edited %v deleted %v, want fresh comment", got.Edited, got.Deleted)
	}

	edited, err := annotations.UpdateCommentBody(ctx, comment.ID, "clearer walkthrough")
	if err != nil {
		t.Fatalf("UpdateCommentBody() error = %v", err)
	}
	if edited.Body != "clearer walkthrough" || !edited.Edited {
		t.Errorf("UpdateCommentBody() = %+v, want updated body with edited flag", edited)
	}

	stats, err := annotations.GetAnalytics(ctx, ref)
	if err != nil {
		t.Fatalf("GetAnalytics() error = %v", err)
	}
	if stats.Comments != 1 {
		t.Errorf("comment_count after insert = %d, want 1", stats.Comments)
	}

	deleted, err := annotations.SoftDeleteComment(ctx, comment.ID)
	if err != nil {
		t.Fatalf("SoftDeleteComment() error = %v", err)
	}
	if !deleted {
		t.Fatal("SoftDeleteComment() = false on a live comment")
	}
	deleted, err = annotations.SoftDeleteComment(ctx, comment.ID)
	if err != nil {
		t.Fatalf("repeat SoftDeleteComment() error = %v", err)
	}
	if deleted {
		t.Error("repeat SoftDeleteComment() = true, want tombstone left alone")
	}

	if err := annotations.AddCounter(ctx, ref, annotation.MetricView, 3); err != nil {
		t.Fatalf("AddCounter() error = %v", err)
	}
	stats, err = annotations.GetAnalytics(ctx, ref)
	if err != nil {
		t.Fatalf("GetAnalytics() error = %v", err)
	}
	if stats.Comments != 0 {
		t.Errorf("comment_count after delete = %d, want 0", stats.Comments)
	}
	if stats.Views != 3 {
		t.Errorf("view_count = %d, want 3", stats.Views)
	}

	versions := version.NewPostgresStore(db.Pool)

	for n, payload := range map[int]string{1: `{"title":"Algebra"}`, 2: `{"title":"Algebra II"}`} {
		if _, err := versions.Insert(ctx, version.Version{
			Ref:       ref,
			Number:    n,
			AuthorID:  userID,
			Payload:   json.RawMessage(payload),
			CreatedAt: time.Now(),
		}); err != nil {
			t.Fatalf("Insert() v%d error = %v", n, err)
		}
	}
	_, err = versions.Insert(ctx, version.Version{
		Ref:       ref,
		Number:    2,
		AuthorID:  userID,
		Payload:   json.RawMessage(`{"title":"dup"}`),
		CreatedAt: time.Now(),
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("Insert() duplicate number error = %v, want ErrConflict", err)
	}

	max, err := versions.MaxNumber(ctx, ref)
	if err != nil {
		t.Fatalf("MaxNumber() error = %v", err)
	}
	if max != 2 {
		t.Errorf("MaxNumber() = %d, want 2", max)
	}
	v2, err := versions.Get(ctx, ref, 2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(v2.Payload) != `{"title":"Algebra II"}` {
		t.Errorf("Payload = %s, want the stored snapshot", v2.Payload)
	}

	pruned, err := versions.Prune(ctx, ref, 1)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("Prune() = %d, want 1", pruned)
	}
	if _, err := versions.Get(ctx, ref, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get() pruned version error = %v, want ErrNotFound", err)
	}

	notifications := notify.NewPostgresStore(db.Pool)

	ev := notify.Event{
		ID:          uuid.New(),
		Type:        notify.TypeCommentReply,
		RecipientID: userID,
		Ref:         &ref,
		Message:     "Bert replied to your comment",
		CreatedAt:   time.Now(),
	}
	first, err := notifications.Insert(ctx, ev)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	// A retried delivery of the same event must land on the same row.
	second, err := notifications.Insert(ctx, ev)
	if err != nil {
		t.Fatalf("repeat Insert() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("repeat Insert() row = %d, want %d", second.ID, first.ID)
	}
	if second.Ref == nil || *second.Ref != ref {
		t.Errorf("notification ref = %v, want %s", second.Ref, ref)
	}

	unread, err := notifications.UnreadCount(ctx, userID)
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if unread != 1 {
		t.Errorf("UnreadCount() = %d, want 1", unread)
	}
	read, err := notifications.MarkRead(ctx, first.ID)
	if err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if !read.Read {
		t.Error("MarkRead() left is_read false")
	}
	unread, err = notifications.UnreadCount(ctx, userID)
	if err != nil {
		t.Fatalf("UnreadCount() error = %v", err)
	}
	if unread != 0 {
		t.Errorf("UnreadCount() after MarkRead = %d, want 0", unread)
	}
}

func TestHealthCheck(t *testing.T) {
	db := startPostgres(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
