// Package content implements the registry for polymorphic content
// references. A Ref is a (kind, id) pair pointing into one of several
// tables; the store cannot enforce referential integrity across kinds,
// so every polymorphic write resolves its target here first.
package content

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/studyable/studyhub/internal/apperr"
)

// Kind identifies which table a Ref points into. The set is closed;
// unknown values are rejected at the boundary, never coerced.
type Kind string

const (
	KindFile        Kind = "file"
	KindSummary     Kind = "summary"
	KindQuiz        Kind = "quiz"
	KindComment     Kind = "comment"
	KindQuizSession Kind = "quiz_session"
)

// Kinds lists every valid content kind.
func Kinds() []Kind {
	return []Kind{KindFile, KindSummary, KindQuiz, KindComment, KindQuizSession}
}

// ParseKind validates a kind received at the boundary.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	for _, valid := range Kinds() {
		if k == valid {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown content kind %q", apperr.ErrValidation, s)
}

// Ref identifies a commentable/ratable/versioned item.
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// NewRef builds a validated Ref.
func NewRef(kind Kind, id int64) (Ref, error) {
	r := Ref{Kind: kind, ID: id}
	if err := r.Validate(); err != nil {
		return Ref{}, err
	}
	return r, nil
}

// Validate checks the kind is known and the id is positive.
func (r Ref) Validate() error {
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}
	if r.ID <= 0 {
		return fmt.Errorf("%w: content id must be positive, got %d", apperr.ErrValidation, r.ID)
	}
	return nil
}

// String renders the ref as "kind/id".
func (r Ref) String() string {
	return string(r.Kind) + "/" + strconv.FormatInt(r.ID, 10)
}

// ParseRef parses a "kind/id" pair.
func ParseRef(s string) (Ref, error) {
	kindStr, idStr, ok := strings.Cut(s, "/")
	if !ok {
		return Ref{}, fmt.Errorf("%w: malformed content ref %q", apperr.ErrValidation, s)
	}
	kind, err := ParseKind(kindStr)
	if err != nil {
		return Ref{}, err
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: malformed content id %q", apperr.ErrValidation, idStr)
	}
	return NewRef(kind, id)
}
