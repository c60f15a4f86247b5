package quiz_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/quiz"
)

const fractionsYAML = `slug: fractions-basics
title: Fractions Basics
description: Adding and comparing fractions.
difficulty: Easy
public: true
questions:
  - text: What is 1/2 + 1/4?
    option_a: 3/4
    option_b: 2/6
    correct: A
  - text: Which is larger?
    option_a: 1/3
    option_b: 1/2
    option_c: They are equal
    correct: B
    difficulty: Medium
`

func writeBankDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	return dir
}

func TestNewBank_LoadsQuizzes(t *testing.T) {
	dir := writeBankDir(t, map[string]string{
		"math/fractions.yaml": fractionsYAML,
		"notes.txt":           "not a quiz",
		"readme.yaml":         "just: metadata\nwithout: a slug\n",
	})

	bank, err := quiz.NewBank(dir)
	if err != nil {
		t.Fatalf("NewBank() error = %v", err)
	}

	if got := len(bank.All()); got != 1 {
		t.Fatalf("loaded %d quizzes, want 1", got)
	}
	def, ok := bank.Get("fractions-basics")
	if !ok {
		t.Fatal("Get(fractions-basics) not found")
	}
	if def.Title != "Fractions Basics" || !def.Public {
		t.Errorf("quiz = %+v, want title and public from the file", def)
	}
	if len(def.Questions) != 2 {
		t.Fatalf("loaded %d questions, want 2", len(def.Questions))
	}
	if def.Questions[1].OptionC == nil || *def.Questions[1].OptionC != "They are equal" {
		t.Errorf("OptionC = %v, want the third option", def.Questions[1].OptionC)
	}
}

func TestNewBank_SkipsInvalidYAML(t *testing.T) {
	dir := writeBankDir(t, map[string]string{
		"broken.yaml": "slug: [unclosed",
		"good.yaml":   fractionsYAML,
	})

	bank, err := quiz.NewBank(dir)
	if err != nil {
		t.Fatalf("NewBank() error = %v", err)
	}
	if got := len(bank.All()); got != 1 {
		t.Errorf("loaded %d quizzes, want the broken file skipped", got)
	}
}

func TestBankSeed(t *testing.T) {
	dir := writeBankDir(t, map[string]string{"fractions.yaml": fractionsYAML})
	bank, err := quiz.NewBank(dir)
	if err != nil {
		t.Fatalf("NewBank() error = %v", err)
	}

	store := quiz.NewMemoryStore()
	seeded, err := bank.Seed(t.Context(), store, 1)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if seeded != 1 {
		t.Fatalf("Seed() = %d, want 1", seeded)
	}

	q, err := store.GetQuiz(t.Context(), 1)
	if err != nil {
		t.Fatalf("GetQuiz() error = %v", err)
	}
	if !q.Active || q.OwnerID != 1 || q.Difficulty != quiz.DifficultyEasy {
		t.Errorf("seeded quiz = %+v, want active, owner 1, Easy", q)
	}

	questions, err := store.QuizQuestions(t.Context(), q.ID)
	if err != nil {
		t.Fatalf("QuizQuestions() error = %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("seeded %d questions, want 2", len(questions))
	}
	// Per-question difficulty overrides the quiz default.
	if questions[0].Difficulty != quiz.DifficultyEasy || questions[1].Difficulty != quiz.DifficultyMedium {
		t.Errorf("difficulties = %v, %v; want Easy, Medium", questions[0].Difficulty, questions[1].Difficulty)
	}
}

func TestBankSeed_RejectsBadDefinition(t *testing.T) {
	bad := `slug: broken-quiz
title: Broken
difficulty: Easy
questions:
  - text: Pick one
    option_a: up
    option_b: down
    correct: D
`
	dir := writeBankDir(t, map[string]string{"broken.yaml": bad})
	bank, err := quiz.NewBank(dir)
	if err != nil {
		t.Fatalf("NewBank() error = %v", err)
	}

	if _, err := bank.Seed(t.Context(), quiz.NewMemoryStore(), 1); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Seed() error = %v, want ErrValidation", err)
	}
}
