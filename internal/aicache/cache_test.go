package aicache_test

import (
	"errors"
	"testing"

	"github.com/studyable/studyhub/internal/aicache"
	"github.com/studyable/studyhub/internal/apperr"
)

func TestParseProcessingType(t *testing.T) {
	tests := []struct {
		in      string
		want    aicache.ProcessingType
		wantErr bool
	}{
		{"summary", aicache.ProcessingSummary, false},
		{"mcq_generation", aicache.ProcessingMCQ, false},
		{"Summary", "", true},
		{"translation", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := aicache.ParseProcessingType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProcessingType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("ParseProcessingType(%q) error = %v, want ErrValidation", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseProcessingType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStore_UpsertKeepsIdentity(t *testing.T) {
	cache := aicache.NewCache(aicache.NewMemoryStore(), nil)
	ctx := t.Context()

	first, err := cache.Store(ctx, aicache.Entry{
		PhysicalFileID: 7,
		Type:           aicache.ProcessingSummary,
		Result:         "draft",
	})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	second, err := cache.Store(ctx, aicache.Entry{
		PhysicalFileID: 7,
		Type:           aicache.ProcessingSummary,
		ProviderFileID: "files/abc",
		Result:         "final",
	})
	if err != nil {
		t.Fatalf("repeat Store() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created row %d, want %d", second.ID, first.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("upsert changed CreatedAt from %v to %v", first.CreatedAt, second.CreatedAt)
	}
	if second.Result != "final" || second.ProviderFileID != "files/abc" {
		t.Errorf("upsert kept stale payload: %+v", second)
	}

	got, err := cache.Lookup(ctx, 7, aicache.ProcessingSummary)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got.Result != "final" {
		t.Errorf("Lookup() Result = %q, want the replaced result", got.Result)
	}
}

func TestStore_Validation(t *testing.T) {
	cache := aicache.NewCache(aicache.NewMemoryStore(), nil)
	ctx := t.Context()

	_, err := cache.Store(ctx, aicache.Entry{PhysicalFileID: 7, Type: "translation", Result: "x"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Store(bad type) error = %v, want ErrValidation", err)
	}

	_, err = cache.Store(ctx, aicache.Entry{Type: aicache.ProcessingSummary, Result: "x"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Store(no file id) error = %v, want ErrValidation", err)
	}
}

func TestLookup_Miss(t *testing.T) {
	cache := aicache.NewCache(aicache.NewMemoryStore(), nil)

	_, err := cache.Lookup(t.Context(), 404, aicache.ProcessingMCQ)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Lookup(miss) error = %v, want ErrNotFound", err)
	}
}

func TestInvalidateFile(t *testing.T) {
	cache := aicache.NewCache(aicache.NewMemoryStore(), nil)
	ctx := t.Context()

	for _, typ := range []aicache.ProcessingType{aicache.ProcessingSummary, aicache.ProcessingMCQ} {
		if _, err := cache.Store(ctx, aicache.Entry{PhysicalFileID: 7, Type: typ, Result: "r"}); err != nil {
			t.Fatalf("Store(%s) error = %v", typ, err)
		}
	}
	if _, err := cache.Store(ctx, aicache.Entry{PhysicalFileID: 8, Type: aicache.ProcessingSummary, Result: "keep"}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	if err := cache.InvalidateFile(ctx, 7); err != nil {
		t.Fatalf("InvalidateFile() error = %v", err)
	}

	if _, err := cache.Lookup(ctx, 7, aicache.ProcessingSummary); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Lookup(invalidated summary) error = %v, want ErrNotFound", err)
	}
	if _, err := cache.Lookup(ctx, 7, aicache.ProcessingMCQ); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Lookup(invalidated mcq) error = %v, want ErrNotFound", err)
	}
	if _, err := cache.Lookup(ctx, 8, aicache.ProcessingSummary); err != nil {
		t.Errorf("Lookup(other file) error = %v, want it untouched", err)
	}
}
