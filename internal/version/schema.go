package version

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/studyable/studyhub/internal/apperr"
	"github.com/studyable/studyhub/internal/content"
)

// Snapshot payloads are opaque to the store but not to the engine: each
// kind has a JSON schema describing the minimum shape a snapshot must
// carry so a later restore has something to work with.
const (
	baseSchema = `{
		"type": "object"
	}`

	summarySchema = `{
		"type": "object",
		"required": ["title", "full_markdown"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"full_markdown": {"type": "string"}
		}
	}`

	quizSchema = `{
		"type": "object",
		"required": ["title", "difficulty_level"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"difficulty_level": {"enum": ["Easy", "Medium", "Hard"]},
			"is_active": {"type": "boolean"},
			"is_public": {"type": "boolean"}
		}
	}`

	fileSchema = `{
		"type": "object",
		"required": ["file_name"],
		"properties": {
			"file_name": {"type": "string", "minLength": 1},
			"file_type": {"type": "string"},
			"file_size_bytes": {"type": "integer", "minimum": 0},
			"mime_type": {"type": "string"}
		}
	}`
)

type schemaSet struct {
	byKind map[content.Kind]*gojsonschema.Schema
}

func newSchemaSet() (*schemaSet, error) {
	sources := map[content.Kind]string{
		content.KindFile:        fileSchema,
		content.KindSummary:     summarySchema,
		content.KindQuiz:        quizSchema,
		content.KindComment:     baseSchema,
		content.KindQuizSession: baseSchema,
	}

	set := &schemaSet{byKind: make(map[content.Kind]*gojsonschema.Schema, len(sources))}
	for kind, src := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("compile %s snapshot schema: %w", kind, err)
		}
		set.byKind[kind] = schema
	}
	return set, nil
}

func (s *schemaSet) validate(kind content.Kind, payload []byte) error {
	schema, ok := s.byKind[kind]
	if !ok {
		return fmt.Errorf("%w: no snapshot schema for kind %q", apperr.ErrValidation, kind)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: snapshot payload is not valid JSON: %v", apperr.ErrValidation, err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("%w: snapshot payload: %s", apperr.ErrValidation, first.String())
	}
	return nil
}
