package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
)

// Engine creates and reads versions. Number allocation for a ref is the
// read-max/insert-next sequence; the engine serializes it with a per-ref
// lock, and the store's uniqueness invariant catches races from other
// processes. A detected race is retried once before Conflict surfaces.
type Engine struct {
	registry *content.Registry
	store    Store
	schemas  *schemaSet
	refLocks keyedMutex
}

// NewEngine creates a versioning engine.
func NewEngine(registry *content.Registry, store Store) (*Engine, error) {
	schemas, err := newSchemaSet()
	if err != nil {
		return nil, err
	}
	return &Engine{registry: registry, store: store, schemas: schemas}, nil
}

// Create snapshots the given payload as the next version of ref.
func (e *Engine) Create(ctx context.Context, ref content.Ref, authorID int64, payload json.RawMessage) (Version, error) {
	if _, err := e.registry.Resolve(ctx, ref); err != nil {
		return Version{}, err
	}
	if err := e.schemas.validate(ref.Kind, payload); err != nil {
		return Version{}, err
	}

	unlock := e.refLocks.lock(ref.String())
	defer unlock()

	const attempts = 2
	var lastErr error
	for i := 0; i < attempts; i++ {
		max, err := e.store.MaxNumber(ctx, ref)
		if err != nil {
			return Version{}, fmt.Errorf("next version number for %s: %w", ref, err)
		}
		v, err := e.store.Insert(ctx, Version{
			Ref:       ref,
			Number:    max + 1,
			AuthorID:  authorID,
			Payload:   payload,
			CreatedAt: time.Now(),
		})
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return Version{}, err
		}
		lastErr = err
	}
	return Version{}, lastErr
}

// Get returns a single version.
func (e *Engine) Get(ctx context.Context, ref content.Ref, number int) (Version, error) {
	if err := ref.Validate(); err != nil {
		return Version{}, err
	}
	return e.store.Get(ctx, ref, number)
}

// List returns versions newest-first plus the total count.
func (e *Engine) List(ctx context.Context, ref content.Ref, limit, offset int) ([]Version, int, error) {
	if err := ref.Validate(); err != nil {
		return nil, 0, err
	}
	return e.store.List(ctx, ref, limit, offset)
}

// FieldChange describes one changed field between two versions.
type FieldChange struct {
	Old any `json:"old_value"`
	New any `json:"new_value"`
}

// Comparison is the result of diffing two versions of the same ref.
type Comparison struct {
	Ref      content.Ref            `json:"ref"`
	NumberA  int                    `json:"version_a"`
	NumberB  int                    `json:"version_b"`
	Changed  map[string]FieldChange `json:"field_changes"`
}

// Compare diffs two versions field by field.
func (e *Engine) Compare(ctx context.Context, ref content.Ref, numberA, numberB int) (Comparison, error) {
	va, err := e.Get(ctx, ref, numberA)
	if err != nil {
		return Comparison{}, err
	}
	vb, err := e.Get(ctx, ref, numberB)
	if err != nil {
		return Comparison{}, err
	}

	var dataA, dataB map[string]any
	if err := json.Unmarshal(va.Payload, &dataA); err != nil {
		return Comparison{}, fmt.Errorf("decode version %d payload: %w", numberA, err)
	}
	if err := json.Unmarshal(vb.Payload, &dataB); err != nil {
		return Comparison{}, fmt.Errorf("decode version %d payload: %w", numberB, err)
	}

	cmp := Comparison{
		Ref:     ref,
		NumberA: numberA,
		NumberB: numberB,
		Changed: make(map[string]FieldChange),
	}
	fields := make(map[string]struct{}, len(dataA)+len(dataB))
	for f := range dataA {
		fields[f] = struct{}{}
	}
	for f := range dataB {
		fields[f] = struct{}{}
	}
	for f := range fields {
		oldVal, newVal := dataA[f], dataB[f]
		if !jsonEqual(oldVal, newVal) {
			cmp.Changed[f] = FieldChange{Old: oldVal, New: newVal}
		}
	}
	return cmp, nil
}

// Prune removes all but the newest keep versions. Administrative only;
// regular callers never delete history.
func (e *Engine) Prune(ctx context.Context, ref content.Ref, keep int) (int, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}
	if keep < 1 {
		return 0, fmt.Errorf("%w: must keep at least one version", apperr.ErrValidation)
	}
	return e.store.Prune(ctx, ref, keep)
}

func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
