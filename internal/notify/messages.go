package notify

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/studyable/studyhub/internal/content"
)

const previewRunes = 50

// CommentReplyEvent notifies the parent comment's author about a reply.
func CommentReplyEvent(recipientID, actorID int64, actorName string, target content.Ref, replyText string) Event {
	if actorName == "" {
		actorName = "Someone"
	}
	return Event{
		ID:          uuid.New(),
		Type:        TypeCommentReply,
		RecipientID: recipientID,
		ActorID:     &actorID,
		Ref:         &target,
		Message:     fmt.Sprintf("%s replied to your comment: %s", actorName, preview(replyText)),
	}
}

// QuizResultEvent notifies a user about their completed quiz score.
func QuizResultEvent(recipientID, quizID int64, quizTitle string, score, total int) Event {
	ref := content.Ref{Kind: content.KindQuiz, ID: quizID}
	if quizTitle == "" {
		quizTitle = "Quiz"
	}
	msg := fmt.Sprintf("Quiz '%s' completed! Score: %d/%d", quizTitle, score, total)
	if total > 0 {
		pct := int(float64(score)/float64(total)*100 + 0.5)
		msg = fmt.Sprintf("%s (%d%%)", msg, pct)
	}
	return Event{
		ID:          uuid.New(),
		Type:        TypeQuizResult,
		RecipientID: recipientID,
		Ref:         &ref,
		Message:     msg,
	}
}

// NewContentEvent notifies a community member about newly shared content.
func NewContentEvent(recipientID, actorID, communityID int64, communityName string, target content.Ref, title string) Event {
	return Event{
		ID:          uuid.New(),
		Type:        TypeNewContent,
		RecipientID: recipientID,
		ActorID:     &actorID,
		Ref:         &target,
		CommunityID: &communityID,
		Message:     fmt.Sprintf("New %s '%s' was added to %s", target.Kind, title, communityName),
	}
}

// ActivityEvent notifies a content owner about a new top-level comment.
func ActivityEvent(recipientID, actorID int64, actorName string, target content.Ref, commentText string) Event {
	if actorName == "" {
		actorName = "Someone"
	}
	return Event{
		ID:          uuid.New(),
		Type:        TypeMention,
		RecipientID: recipientID,
		ActorID:     &actorID,
		Ref:         &target,
		Message:     fmt.Sprintf("%s commented on your %s: %s", actorName, target.Kind, preview(commentText)),
	}
}

// preview truncates a message body to a short rune-safe excerpt.
func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewRunes {
		return s
	}
	return string(runes[:previewRunes]) + "..."
}
