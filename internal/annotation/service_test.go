package annotation_test

import (
	"errors"
	"testing"

	"github.com/studyable/studyhub/internal/annotation"
	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
	"github.com/studyable/studyhub/internal/notify"
)

var (
	summaryRef = content.Ref{Kind: content.KindSummary, ID: 1}
	quizRef    = content.Ref{Kind: content.KindQuiz, ID: 2}
)

type fixture struct {
	svc    *annotation.Service
	store  *annotation.MemoryStore
	users  *annotation.MemoryUsers
	events *notify.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	contentStore := content.NewMemoryStore()
	contentStore.Put(summaryRef, content.Resolution{OwnerID: 1, Public: true})
	contentStore.Put(quizRef, content.Resolution{OwnerID: 2, Public: true})
	registry := content.NewRegistry(contentStore, contentStore)

	store := annotation.NewMemoryStore()
	users := annotation.NewMemoryUsers()
	users.Add(1, "Aida", false)
	users.Add(2, "Ben", false)
	users.Add(3, "Mod", true)

	events := notify.NewMemoryStore()
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{Store: events, QueueSize: 1})

	return &fixture{
		svc:    annotation.NewService(store, registry, users, dispatcher),
		store:  store,
		users:  users,
		events: events,
	}
}

func (f *fixture) commentCount(t *testing.T, ref content.Ref) int64 {
	t.Helper()
	a, err := f.store.GetAnalytics(t.Context(), ref)
	if err != nil {
		t.Fatalf("GetAnalytics() error = %v", err)
	}
	return a.Comments
}

func TestPostComment_MaintainsCount(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	c1, err := f.svc.PostComment(ctx, 1, summaryRef, "first", nil)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	if _, err := f.svc.PostComment(ctx, 2, summaryRef, "second", nil); err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	if got := f.commentCount(t, summaryRef); got != 2 {
		t.Errorf("comment_count = %d, want 2", got)
	}

	if err := f.svc.SoftDeleteComment(ctx, 1, c1.ID); err != nil {
		t.Fatalf("SoftDeleteComment() error = %v", err)
	}
	if got := f.commentCount(t, summaryRef); got != 1 {
		t.Errorf("comment_count after delete = %d, want 1", got)
	}

	// Idempotent: a repeat delete must not decrement again.
	if err := f.svc.SoftDeleteComment(ctx, 1, c1.ID); err != nil {
		t.Fatalf("second SoftDeleteComment() error = %v", err)
	}
	if got := f.commentCount(t, summaryRef); got != 1 {
		t.Errorf("comment_count after repeat delete = %d, want 1", got)
	}

	live, err := f.store.LiveCommentCount(ctx, summaryRef)
	if err != nil {
		t.Fatalf("LiveCommentCount() error = %v", err)
	}
	if live != f.commentCount(t, summaryRef) {
		t.Errorf("counter %d diverged from live count %d", f.commentCount(t, summaryRef), live)
	}
}

func TestPostComment_EmptyBody(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.PostComment(t.Context(), 1, summaryRef, "   ", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("PostComment(blank) error = %v, want ErrValidation", err)
	}
}

func TestPostComment_ParentOnDifferentRef(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	parent, err := f.svc.PostComment(ctx, 1, summaryRef, "on the summary", nil)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}

	_, err = f.svc.PostComment(ctx, 2, quizRef, "reply on the wrong item", &parent.ID)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("PostComment(cross-ref reply) error = %v, want ErrValidation", err)
	}
}

func TestPostComment_DeletedParent(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	parent, err := f.svc.PostComment(ctx, 1, summaryRef, "to be removed", nil)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	if err := f.svc.SoftDeleteComment(ctx, 1, parent.ID); err != nil {
		t.Fatalf("SoftDeleteComment() error = %v", err)
	}

	_, err = f.svc.PostComment(ctx, 2, summaryRef, "too late", &parent.ID)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("PostComment(deleted parent) error = %v, want ErrValidation", err)
	}
}

func TestEditComment_AuthorOnly(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	c, err := f.svc.PostComment(ctx, 1, summaryRef, "draft", nil)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}

	if _, err := f.svc.EditComment(ctx, 2, c.ID, "hijacked"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("EditComment(other user) error = %v, want ErrForbidden", err)
	}
	// Moderators may delete but not edit.
	if _, err := f.svc.EditComment(ctx, 3, c.ID, "mod edit"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("EditComment(moderator) error = %v, want ErrForbidden", err)
	}

	updated, err := f.svc.EditComment(ctx, 1, c.ID, "final")
	if err != nil {
		t.Fatalf("EditComment(author) error = %v", err)
	}
	if updated.Body != "final" || !updated.Edited {
		t.Errorf("EditComment() = %+v, want body final and edited flag", updated)
	}
}

func TestSoftDeleteComment_Moderator(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	c, err := f.svc.PostComment(ctx, 1, summaryRef, "spam", nil)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}

	if err := f.svc.SoftDeleteComment(ctx, 2, c.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("SoftDeleteComment(stranger) error = %v, want ErrForbidden", err)
	}
	if err := f.svc.SoftDeleteComment(ctx, 3, c.ID); err != nil {
		t.Errorf("SoftDeleteComment(moderator) error = %v", err)
	}
}

func TestThread_TombstonesDeletedParents(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	parent, err := f.svc.PostComment(ctx, 1, summaryRef, "parent", nil)
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	if _, err := f.svc.PostComment(ctx, 2, summaryRef, "reply", &parent.ID); err != nil {
		t.Fatalf("PostComment(reply) error = %v", err)
	}
	if err := f.svc.SoftDeleteComment(ctx, 1, parent.ID); err != nil {
		t.Fatalf("SoftDeleteComment() error = %v", err)
	}

	comments, _, err := f.svc.Thread(ctx, summaryRef, 10, 0)
	if err != nil {
		t.Fatalf("Thread() error = %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("Thread() = %d top-level comments, want tombstoned parent", len(comments))
	}
	got := comments[0]
	if !got.Deleted || got.Body != "" {
		t.Errorf("tombstone = %+v, want Deleted with empty body", got)
	}
	if len(got.Replies) != 1 || got.Replies[0].Body != "reply" {
		t.Errorf("Replies = %+v, want the live reply", got.Replies)
	}
}

func TestRate_UpsertSingleRow(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	first, err := f.svc.Rate(ctx, 1, summaryRef, 3, "ok")
	if err != nil {
		t.Fatalf("Rate() error = %v", err)
	}
	second, err := f.svc.Rate(ctx, 1, summaryRef, 5, "actually great")
	if err != nil {
		t.Fatalf("Rate() again error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("re-rating created row %d, want update of %d", second.ID, first.ID)
	}

	ratings, total, err := f.svc.ListRatings(ctx, summaryRef, 10, 0)
	if err != nil {
		t.Fatalf("ListRatings() error = %v", err)
	}
	if total != 1 || len(ratings) != 1 {
		t.Fatalf("ListRatings() total = %d, want a single row", total)
	}
	if ratings[0].Value != 5 || ratings[0].Review != "actually great" {
		t.Errorf("stored rating = %+v, want the replacement values", ratings[0])
	}
}

func TestRate_RangeValidation(t *testing.T) {
	f := newFixture(t)
	for _, v := range []int{0, 6, -1} {
		if _, err := f.svc.Rate(t.Context(), 1, summaryRef, v, ""); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Rate(%d) error = %v, want ErrValidation", v, err)
		}
	}
}

func TestRatingStats(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	for userID, value := range map[int64]int{1: 5, 2: 4, 3: 5} {
		if _, err := f.svc.Rate(ctx, userID, summaryRef, value, ""); err != nil {
			t.Fatalf("Rate() error = %v", err)
		}
	}

	stats, err := f.svc.RatingStats(ctx, summaryRef)
	if err != nil {
		t.Fatalf("RatingStats() error = %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	want := (5.0 + 4.0 + 5.0) / 3.0
	if stats.Average < want-0.001 || stats.Average > want+0.001 {
		t.Errorf("Average = %f, want %f", stats.Average, want)
	}
	if stats.Distribution[5] != 2 || stats.Distribution[4] != 1 {
		t.Errorf("Distribution = %v, want 5:2 4:1", stats.Distribution)
	}
}

func TestRecordLike_FloorAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	if err := f.svc.RecordLike(ctx, summaryRef, 1); err != nil {
		t.Fatalf("RecordLike(+1) error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := f.svc.RecordLike(ctx, summaryRef, -1); err != nil {
			t.Fatalf("RecordLike(-1) error = %v", err)
		}
	}

	a, err := f.svc.Analytics(ctx, summaryRef)
	if err != nil {
		t.Fatalf("Analytics() error = %v", err)
	}
	if a.Likes != 0 {
		t.Errorf("Likes = %d, want floor at 0", a.Likes)
	}
}

func TestRecordLike_DeltaValidation(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.RecordLike(t.Context(), summaryRef, 2); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("RecordLike(+2) error = %v, want ErrValidation", err)
	}
}

func TestRecord_UnknownRef(t *testing.T) {
	f := newFixture(t)
	missing := content.Ref{Kind: content.KindFile, ID: 404}
	if err := f.svc.RecordView(t.Context(), missing); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("RecordView(missing) error = %v, want ErrNotFound", err)
	}
}

func TestTopContent(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		if err := f.svc.RecordView(ctx, summaryRef); err != nil {
			t.Fatalf("RecordView() error = %v", err)
		}
	}

	top, err := f.svc.TopContent(ctx, content.KindSummary, annotation.MetricView, 5)
	if err != nil {
		t.Fatalf("TopContent() error = %v", err)
	}
	if len(top) != 1 || top[0].Views != 3 {
		t.Errorf("TopContent() = %+v, want the summary with 3 views", top)
	}
}

func TestReconcileCommentCounts(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	if _, err := f.svc.PostComment(ctx, 1, summaryRef, "kept", nil); err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}
	// Force drift: the counter claims more comments than exist.
	if err := f.store.SetCommentCount(ctx, summaryRef, 10); err != nil {
		t.Fatalf("SetCommentCount() error = %v", err)
	}

	repaired, err := f.svc.ReconcileCommentCounts(ctx)
	if err != nil {
		t.Fatalf("ReconcileCommentCounts() error = %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired = %d, want 1", repaired)
	}
	if got := f.commentCount(t, summaryRef); got != 1 {
		t.Errorf("comment_count after reconcile = %d, want 1", got)
	}

	// A clean second pass repairs nothing.
	repaired, err = f.svc.ReconcileCommentCounts(ctx)
	if err != nil {
		t.Fatalf("ReconcileCommentCounts() error = %v", err)
	}
	if repaired != 0 {
		t.Errorf("repaired on clean pass = %d, want 0", repaired)
	}
}
