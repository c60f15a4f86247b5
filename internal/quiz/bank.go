package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// BankQuestion is one question as declared in a bank YAML file.
type BankQuestion struct {
	Text        string  `yaml:"text"`
	OptionA     string  `yaml:"option_a"`
	OptionB     string  `yaml:"option_b"`
	OptionC     *string `yaml:"option_c"`
	OptionD     *string `yaml:"option_d"`
	Correct     string  `yaml:"correct"`
	Explanation string  `yaml:"explanation"`
	Hint        string  `yaml:"hint"`
	Difficulty  string  `yaml:"difficulty"`
}

// BankQuiz is one quiz definition loaded from the bank.
type BankQuiz struct {
	Slug        string         `yaml:"slug"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Difficulty  string         `yaml:"difficulty"`
	Public      bool           `yaml:"public"`
	Questions   []BankQuestion `yaml:"questions"`
}

// Bank loads and caches quiz definitions from a directory of YAML files.
type Bank struct {
	rootDir string
	quizzes map[string]BankQuiz
	mu      sync.RWMutex
}

// NewBank creates a quiz bank and loads all definitions under rootDir.
func NewBank(rootDir string) (*Bank, error) {
	b := &Bank{
		rootDir: rootDir,
		quizzes: make(map[string]BankQuiz),
	}

	if err := b.loadAll(); err != nil {
		return nil, fmt.Errorf("loading quiz bank: %w", err)
	}

	slog.Info("quiz bank loaded", "quizzes", len(b.quizzes))
	return b, nil
}

// Get returns a quiz definition by slug.
func (b *Bank) Get(slug string) (BankQuiz, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quizzes[slug]
	return q, ok
}

// All returns all loaded quiz definitions.
func (b *Bank) All() []BankQuiz {
	b.mu.RLock()
	defer b.mu.RUnlock()
	quizzes := make([]BankQuiz, 0, len(b.quizzes))
	for _, q := range b.quizzes {
		quizzes = append(quizzes, q)
	}
	return quizzes
}

func (b *Bank) loadAll() error {
	return filepath.Walk(b.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}
		return b.loadQuiz(path)
	})
}

func (b *Bank) loadQuiz(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var quiz BankQuiz
	if err := yaml.Unmarshal(data, &quiz); err != nil {
		slog.Warn("skipping invalid quiz YAML", "path", path, "error", err)
		return nil
	}

	if quiz.Slug == "" {
		return nil // Not a quiz file
	}

	b.mu.Lock()
	b.quizzes[quiz.Slug] = quiz
	b.mu.Unlock()

	return nil
}

// Seed inserts every bank quiz into the store under ownerID, validating
// each question first. Already-present quizzes are not detected; Seed is
// meant for fresh databases and test fixtures.
func (b *Bank) Seed(ctx context.Context, store Store, ownerID int64) (int, error) {
	seeded := 0
	for _, def := range b.All() {
		if err := b.seedOne(ctx, store, ownerID, def); err != nil {
			return seeded, fmt.Errorf("seeding quiz %q: %w", def.Slug, err)
		}
		seeded++
	}
	return seeded, nil
}

func (b *Bank) seedOne(ctx context.Context, store Store, ownerID int64, def BankQuiz) error {
	difficulty, err := ParseDifficulty(def.Difficulty)
	if err != nil {
		return err
	}

	quiz, err := store.CreateQuiz(ctx, Quiz{
		Title:       def.Title,
		Description: def.Description,
		Difficulty:  difficulty,
		Active:      true,
		Public:      def.Public,
		OwnerID:     ownerID,
	})
	if err != nil {
		return err
	}

	for i, bq := range def.Questions {
		qd := difficulty
		if bq.Difficulty != "" {
			if qd, err = ParseDifficulty(bq.Difficulty); err != nil {
				return err
			}
		}
		question := Question{
			Text:        bq.Text,
			OptionA:     bq.OptionA,
			OptionB:     bq.OptionB,
			OptionC:     bq.OptionC,
			OptionD:     bq.OptionD,
			Correct:     bq.Correct,
			Explanation: bq.Explanation,
			Hint:        bq.Hint,
			Difficulty:  qd,
			CreatedBy:   ownerID,
		}
		if err := question.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
		created, err := store.CreateQuestion(ctx, question)
		if err != nil {
			return err
		}
		if err := store.LinkQuestion(ctx, quiz.ID, created.ID, i+1); err != nil {
			return err
		}
	}
	return nil
}
