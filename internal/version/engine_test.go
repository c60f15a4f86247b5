package version_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
	"github.com/studyable/studyhub/internal/version"
)

func newTestEngine(t *testing.T, refs ...content.Ref) (*version.Engine, *version.MemoryStore) {
	t.Helper()
	contentStore := content.NewMemoryStore()
	for _, ref := range refs {
		contentStore.Put(ref, content.Resolution{OwnerID: 1, Public: true})
	}
	store := version.NewMemoryStore()
	engine, err := version.NewEngine(content.NewRegistry(contentStore, contentStore), store)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine, store
}

func summaryPayload(title string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"title":%q,"full_markdown":"# body"}`, title))
}

func TestCreate_SequentialNumbers(t *testing.T) {
	ref := content.Ref{Kind: content.KindSummary, ID: 1}
	engine, _ := newTestEngine(t, ref)
	ctx := t.Context()

	for want := 1; want <= 3; want++ {
		v, err := engine.Create(ctx, ref, 1, summaryPayload(fmt.Sprintf("rev %d", want)))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if v.Number != want {
			t.Errorf("Number = %d, want %d", v.Number, want)
		}
	}
}

func TestCreate_IndependentSequences(t *testing.T) {
	refA := content.Ref{Kind: content.KindSummary, ID: 1}
	refB := content.Ref{Kind: content.KindSummary, ID: 2}
	engine, _ := newTestEngine(t, refA, refB)
	ctx := t.Context()

	if _, err := engine.Create(ctx, refA, 1, summaryPayload("a1")); err != nil {
		t.Fatalf("Create(refA) error = %v", err)
	}
	v, err := engine.Create(ctx, refB, 1, summaryPayload("b1"))
	if err != nil {
		t.Fatalf("Create(refB) error = %v", err)
	}
	if v.Number != 1 {
		t.Errorf("refB first Number = %d, want 1", v.Number)
	}
}

func TestCreate_UnknownRef(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := t.Context()

	_, err := engine.Create(ctx, content.Ref{Kind: content.KindSummary, ID: 9}, 1, summaryPayload("x"))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Create(unknown ref) error = %v, want ErrNotFound", err)
	}
}

func TestCreate_PayloadSchema(t *testing.T) {
	ref := content.Ref{Kind: content.KindSummary, ID: 1}
	engine, _ := newTestEngine(t, ref)
	ctx := t.Context()

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"title":"t","full_markdown":"m"}`, false},
		{"missing markdown", `{"title":"t"}`, true},
		{"not an object", `[1,2]`, true},
		{"malformed", `{`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Create(ctx, ref, 1, json.RawMessage(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("Create() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreate_GapFreeUnderConcurrency(t *testing.T) {
	ref := content.Ref{Kind: content.KindQuiz, ID: 1}
	engine, _ := newTestEngine(t, ref)
	ctx := t.Context()

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := json.RawMessage(fmt.Sprintf(`{"title":"q%d","difficulty_level":"Easy"}`, i))
			if _, err := engine.Create(ctx, ref, 1, payload); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Create() error = %v", err)
	}

	versions, total, err := engine.List(ctx, ref, writers+1, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != writers {
		t.Fatalf("total = %d, want %d", total, writers)
	}
	seen := make(map[int]bool)
	for _, v := range versions {
		seen[v.Number] = true
	}
	for n := 1; n <= writers; n++ {
		if !seen[n] {
			t.Errorf("version number %d missing; sequence has a gap", n)
		}
	}
}

func TestCompare(t *testing.T) {
	ref := content.Ref{Kind: content.KindSummary, ID: 1}
	engine, _ := newTestEngine(t, ref)
	ctx := t.Context()

	if _, err := engine.Create(ctx, ref, 1, json.RawMessage(`{"title":"old","full_markdown":"same"}`)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := engine.Create(ctx, ref, 1, json.RawMessage(`{"title":"new","full_markdown":"same","tags":["x"]}`)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	cmp, err := engine.Compare(ctx, ref, 1, 2)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(cmp.Changed) != 2 {
		t.Fatalf("Changed has %d fields, want 2 (title, tags): %v", len(cmp.Changed), cmp.Changed)
	}
	title, ok := cmp.Changed["title"]
	if !ok {
		t.Fatal("title change missing")
	}
	if title.Old != "old" || title.New != "new" {
		t.Errorf("title change = %+v, want old->new", title)
	}
	if _, ok := cmp.Changed["full_markdown"]; ok {
		t.Error("unchanged field full_markdown reported as changed")
	}
}

func TestCompare_MissingVersion(t *testing.T) {
	ref := content.Ref{Kind: content.KindSummary, ID: 1}
	engine, _ := newTestEngine(t, ref)
	ctx := t.Context()

	if _, err := engine.Create(ctx, ref, 1, summaryPayload("only")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := engine.Compare(ctx, ref, 1, 2); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Compare() error = %v, want ErrNotFound", err)
	}
}

func TestPrune(t *testing.T) {
	ref := content.Ref{Kind: content.KindSummary, ID: 1}
	engine, _ := newTestEngine(t, ref)
	ctx := t.Context()

	for i := 1; i <= 5; i++ {
		if _, err := engine.Create(ctx, ref, 1, summaryPayload(fmt.Sprintf("rev %d", i))); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	pruned, err := engine.Prune(ctx, ref, 2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if pruned != 3 {
		t.Errorf("Prune() = %d, want 3", pruned)
	}

	versions, total, err := engine.List(ctx, ref, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 {
		t.Fatalf("total after prune = %d, want 2", total)
	}
	if versions[0].Number != 5 || versions[1].Number != 4 {
		t.Errorf("kept versions = %d, %d; want 5, 4", versions[0].Number, versions[1].Number)
	}

	// The sequence continues from the retained maximum.
	v, err := engine.Create(ctx, ref, 1, summaryPayload("rev 6"))
	if err != nil {
		t.Fatalf("Create() after prune error = %v", err)
	}
	if v.Number != 6 {
		t.Errorf("Number after prune = %d, want 6", v.Number)
	}
}

func TestPrune_KeepValidation(t *testing.T) {
	ref := content.Ref{Kind: content.KindSummary, ID: 1}
	engine, _ := newTestEngine(t, ref)

	if _, err := engine.Prune(t.Context(), ref, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Prune(keep=0) error = %v, want ErrValidation", err)
	}
}
