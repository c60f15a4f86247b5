// Command quiz-import loads quizzes from an Excel workbook into the
// database. Each sheet is one quiz: row 1 holds title, description and
// difficulty; every following row is one question in the form
// text, option A, option B, option C, option D, correct letter,
// optional difficulty.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/studyable/studyhub/internal/platform/config"
	"github.com/studyable/studyhub/internal/platform/database"
	"github.com/studyable/studyhub/internal/quiz"
)

func main() {
	var (
		path    = flag.String("file", "", "workbook to import (required)")
		ownerID = flag.Int64("owner", 0, "user id that will own the quizzes (required)")
		public  = flag.Bool("public", false, "mark imported quizzes public")
		dbURL   = flag.String("db", "", "database URL (default STUDY_DATABASE_URL)")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *path == "" || *ownerID <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	url := *dbURL
	if url == "" {
		cfg, err := config.Load()
		if err != nil {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		url = cfg.Database.URL
	}

	ctx := context.Background()
	db, err := database.New(ctx, url, 5, 1)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := quiz.NewPostgresStore(db.Pool)
	imported, err := importWorkbook(ctx, store, *path, *ownerID, *public)
	if err != nil {
		slog.Error("import failed", "error", err)
		os.Exit(1)
	}
	slog.Info("import finished", "quizzes", imported)
}

func importWorkbook(ctx context.Context, store quiz.Store, path string, ownerID int64, public bool) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	imported := 0
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return imported, fmt.Errorf("reading sheet %q: %w", sheet, err)
		}
		if err := importSheet(ctx, store, sheet, rows, ownerID, public); err != nil {
			return imported, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		imported++
	}
	return imported, nil
}

func importSheet(ctx context.Context, store quiz.Store, sheet string, rows [][]string, ownerID int64, public bool) error {
	if len(rows) < 2 {
		return fmt.Errorf("needs a header row and at least one question")
	}

	header := rows[0]
	title := cell(header, 0)
	if title == "" {
		title = sheet
	}
	difficulty, err := quiz.ParseDifficulty(defaultStr(cell(header, 2), string(quiz.DifficultyMedium)))
	if err != nil {
		return err
	}

	q, err := store.CreateQuiz(ctx, quiz.Quiz{
		Title:       title,
		Description: cell(header, 1),
		Difficulty:  difficulty,
		Active:      true,
		Public:      public,
		OwnerID:     ownerID,
	})
	if err != nil {
		return err
	}

	for i, row := range rows[1:] {
		question, err := parseQuestionRow(row, difficulty, ownerID)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		created, err := store.CreateQuestion(ctx, question)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		if err := store.LinkQuestion(ctx, q.ID, created.ID, i+1); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	slog.Info("quiz imported", "title", title, "questions", len(rows)-1)
	return nil
}

func parseQuestionRow(row []string, quizDifficulty quiz.Difficulty, ownerID int64) (quiz.Question, error) {
	difficulty := quizDifficulty
	if d := cell(row, 6); d != "" {
		parsed, err := quiz.ParseDifficulty(d)
		if err != nil {
			return quiz.Question{}, err
		}
		difficulty = parsed
	}

	question := quiz.Question{
		Text:       cell(row, 0),
		OptionA:    cell(row, 1),
		OptionB:    cell(row, 2),
		OptionC:    optCell(row, 3),
		OptionD:    optCell(row, 4),
		Correct:    strings.ToUpper(cell(row, 5)),
		Difficulty: difficulty,
		CreatedBy:  ownerID,
	}
	if err := question.Validate(); err != nil {
		return quiz.Question{}, err
	}
	return question, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func optCell(row []string, i int) *string {
	v := cell(row, i)
	if v == "" {
		return nil
	}
	return &v
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
