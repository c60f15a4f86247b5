package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/studyable/studyhub/internal/aicache"
	"github.com/studyable/studyhub/internal/annotation"
	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
	"github.com/studyable/studyhub/internal/notify"
	"github.com/studyable/studyhub/internal/quiz"
	"github.com/studyable/studyhub/internal/version"
)

// api bundles the service layer behind the JSON endpoints. Caller
// identity comes from the X-User-ID header set by the auth proxy in
// front of this service.
type api struct {
	annotations   *annotation.Service
	versions      *version.Engine
	quizzes       *quiz.Engine
	notifications *notify.Service
	aiResults     *aicache.Cache
	users         annotation.UserDirectory
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/comments", a.postComment)
	mux.HandleFunc("GET /api/comments", a.listComments)
	mux.HandleFunc("PATCH /api/comments/{id}", a.editComment)
	mux.HandleFunc("DELETE /api/comments/{id}", a.deleteComment)

	mux.HandleFunc("PUT /api/ratings", a.putRating)
	mux.HandleFunc("DELETE /api/ratings/{id}", a.deleteRating)
	mux.HandleFunc("GET /api/ratings", a.listRatings)
	mux.HandleFunc("GET /api/ratings/stats", a.ratingStats)

	mux.HandleFunc("POST /api/analytics/{metric}", a.recordMetric)
	mux.HandleFunc("GET /api/analytics", a.getAnalytics)
	mux.HandleFunc("GET /api/analytics/top", a.topContent)

	mux.HandleFunc("POST /api/versions", a.createVersion)
	mux.HandleFunc("GET /api/versions", a.listVersions)
	mux.HandleFunc("GET /api/versions/{number}", a.getVersion)
	mux.HandleFunc("GET /api/versions/compare", a.compareVersions)
	mux.HandleFunc("POST /api/versions/prune", a.pruneVersions)

	mux.HandleFunc("POST /api/quiz-sessions", a.startSession)
	mux.HandleFunc("POST /api/quiz-sessions/{id}/answers", a.submitAnswer)
	mux.HandleFunc("POST /api/quiz-sessions/{id}/complete", a.completeSession)

	mux.HandleFunc("GET /api/notifications", a.listNotifications)
	mux.HandleFunc("POST /api/notifications/{id}/read", a.markRead)
	mux.HandleFunc("POST /api/notifications/read-all", a.markAllRead)
	mux.HandleFunc("GET /api/notifications/unread-count", a.unreadCount)

	mux.HandleFunc("GET /api/files/{id}/ai/{type}", a.lookupAIResult)
	mux.HandleFunc("PUT /api/files/{id}/ai/{type}", a.storeAIResult)
	mux.HandleFunc("DELETE /api/files/{id}/ai", a.invalidateAIResults)
}

func (a *api) lookupAIResult(w http.ResponseWriter, r *http.Request) {
	fileID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	typ, err := aicache.ParseProcessingType(r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := a.aiResults.Lookup(r.Context(), fileID, typ)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *api) storeAIResult(w http.ResponseWriter, r *http.Request) {
	fileID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	typ, err := aicache.ParseProcessingType(r.PathValue("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		ProviderFileID string `json:"provider_file_id"`
		Result         string `json:"result"`
	}
	if !decode(w, r, &req) {
		return
	}
	entry, err := a.aiResults.Store(r.Context(), aicache.Entry{
		PhysicalFileID: fileID,
		Type:           typ,
		ProviderFileID: req.ProviderFileID,
		Result:         req.Result,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *api) invalidateAIResults(w http.ResponseWriter, r *http.Request) {
	fileID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.aiResults.InvalidateFile(r.Context(), fileID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) postComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		Ref      string `json:"ref"`
		Body     string `json:"body"`
		ParentID *int64 `json:"parent_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	ref, err := content.ParseRef(req.Ref)
	if err != nil {
		writeError(w, err)
		return
	}
	comment, err := a.annotations.PostComment(r.Context(), userID, ref, req.Body, req.ParentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (a *api) listComments(w http.ResponseWriter, r *http.Request) {
	ref, err := content.ParseRef(r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, offset := pageParams(r)
	comments, total, err := a.annotations.Thread(r.Context(), ref, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments, "total": total})
}

func (a *api) editComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if !decode(w, r, &req) {
		return
	}
	comment, err := a.annotations.EditComment(r.Context(), userID, commentID, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (a *api) deleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	commentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.annotations.SoftDeleteComment(r.Context(), userID, commentID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) putRating(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		Ref    string `json:"ref"`
		Value  int    `json:"value"`
		Review string `json:"review"`
	}
	if !decode(w, r, &req) {
		return
	}
	ref, err := content.ParseRef(req.Ref)
	if err != nil {
		writeError(w, err)
		return
	}
	rating, err := a.annotations.Rate(r.Context(), userID, ref, req.Value, req.Review)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (a *api) deleteRating(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	ratingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := a.annotations.DeleteRating(r.Context(), userID, ratingID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) listRatings(w http.ResponseWriter, r *http.Request) {
	ref, err := content.ParseRef(r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, offset := pageParams(r)
	ratings, total, err := a.annotations.ListRatings(r.Context(), ref, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ratings": ratings, "total": total})
}

func (a *api) ratingStats(w http.ResponseWriter, r *http.Request) {
	ref, err := content.ParseRef(r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := a.annotations.RatingStats(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *api) recordMetric(w http.ResponseWriter, r *http.Request) {
	ref, err := content.ParseRef(r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	switch r.PathValue("metric") {
	case "view":
		err = a.annotations.RecordView(r.Context(), ref)
	case "share":
		err = a.annotations.RecordShare(r.Context(), ref)
	case "like":
		err = a.annotations.RecordLike(r.Context(), ref, 1)
	case "unlike":
		err = a.annotations.RecordLike(r.Context(), ref, -1)
	default:
		writeError(w, apperr.ErrValidation)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getAnalytics(w http.ResponseWriter, r *http.Request) {
	ref, err := content.ParseRef(r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	analytics, err := a.annotations.Analytics(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (a *api) topContent(w http.ResponseWriter, r *http.Request) {
	kind, err := content.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	metric, err := annotation.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _ := pageParams(r)
	top, err := a.annotations.TopContent(r.Context(), kind, metric, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"top": top})
}

func (a *api) createVersion(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		Ref     string          `json:"ref"`
		Payload json.RawMessage `json:"payload"`
	}
	if !decode(w, r, &req) {
		return
	}
	ref, err := content.ParseRef(req.Ref)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := a.versions.Create(r.Context(), ref, userID, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (a *api) listVersions(w http.ResponseWriter, r *http.Request) {
	ref, err := content.ParseRef(r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, offset := pageParams(r)
	versions, total, err := a.versions.List(r.Context(), ref, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions, "total": total})
}

func (a *api) getVersion(w http.ResponseWriter, r *http.Request) {
	ref, err := content.ParseRef(r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	number, ok := pathID(w, r, "number")
	if !ok {
		return
	}
	v, err := a.versions.Get(r.Context(), ref, int(number))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *api) compareVersions(w http.ResponseWriter, r *http.Request) {
	ref, err := content.ParseRef(r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err)
		return
	}
	numberA, errA := strconv.Atoi(r.URL.Query().Get("a"))
	numberB, errB := strconv.Atoi(r.URL.Query().Get("b"))
	if errA != nil || errB != nil {
		writeError(w, apperr.ErrValidation)
		return
	}
	diff, err := a.versions.Compare(r.Context(), ref, numberA, numberB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (a *api) pruneVersions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	// Retention is destructive; moderators and admins only.
	moderator, err := a.users.IsModerator(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !moderator {
		writeError(w, fmt.Errorf("%w: user %d may not prune version history", apperr.ErrForbidden, userID))
		return
	}

	var req struct {
		Ref  string `json:"ref"`
		Keep int    `json:"keep"`
	}
	if !decode(w, r, &req) {
		return
	}
	ref, err := content.ParseRef(req.Ref)
	if err != nil {
		writeError(w, err)
		return
	}
	pruned, err := a.versions.Prune(r.Context(), ref, req.Keep)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pruned": pruned})
}

func (a *api) startSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req struct {
		QuizID int64 `json:"quiz_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	session, err := a.quizzes.Start(r.Context(), userID, req.QuizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *api) submitAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		QuestionID int64  `json:"question_id"`
		Option     string `json:"option"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := a.quizzes.Submit(r.Context(), userID, sessionID, req.QuestionID, req.Option); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) completeSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := a.quizzes.Complete(r.Context(), userID, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"result": result}
	if pct, ok := result.Percentage(); ok {
		resp["percentage"] = pct
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	f := notify.Filter{Limit: limit, Offset: offset}
	if v := r.URL.Query().Get("unread"); v != "" {
		unread := v == "true" || v == "1"
		f.Unread = &unread
	}
	if v := r.URL.Query().Get("type"); v != "" {
		typ, err := notify.ParseType(v)
		if err != nil {
			writeError(w, err)
			return
		}
		f.Type = &typ
	}
	notifications, total, err := a.notifications.List(r.Context(), userID, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications, "total": total})
}

func (a *api) markRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	notificationID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := a.notifications.MarkRead(r.Context(), userID, notificationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *api) markAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	updated, err := a.notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (a *api) unreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	count, err := a.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": count})
}

func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid X-User-ID"})
		return 0, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrSessionClosed):
		status = http.StatusGone
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrTransient):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
