package quiz

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"sentinel-community/internal/storage"
)

type questionFile struct {
	Questions []storage.Question `json:"questions"`
}

// LoadQuestions reads the question bank. Legacy type names are folded into the three supported kinds.
func LoadQuestions(path string) ([]storage.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	var file questionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}

	questions := make([]storage.Question, 0, len(file.Questions))
	seen := make(map[int]bool, len(file.Questions))
	for i, q := range file.Questions {
		if q.QuestionID == 0 {
			q.QuestionID = i + 1
		}
		if seen[q.QuestionID] {
			return nil, fmt.Errorf("question %d: duplicate id", q.QuestionID)
		}
		seen[q.QuestionID] = true
		q.Type = NormalizeType(q.Type)
		if err := validateQuestion(q); err != nil {
			return nil, fmt.Errorf("question %d: %w", q.QuestionID, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func NormalizeType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case storage.QuestionMultipleChoice:
		return storage.QuestionMultipleChoice
	case storage.QuestionTrueFalse:
		return storage.QuestionTrueFalse
	case storage.QuestionFillBlank, "code", "direct_message":
		return storage.QuestionFillBlank
	default:
		return kind
	}
}

func validateQuestion(q storage.Question) error {
	if strings.TrimSpace(q.Question) == "" || strings.TrimSpace(q.Answer) == "" {
		return fmt.Errorf("question and answer are required")
	}
	switch q.Type {
	case storage.QuestionMultipleChoice:
		if len(q.Options) < 2 || len(q.Options) > 20 {
			return fmt.Errorf("multiple choice needs 2 to 20 options")
		}
		if _, ok := correctChoice(q); !ok {
			return fmt.Errorf("answer %q is not one of the options", q.Answer)
		}
	case storage.QuestionTrueFalse:
		if _, ok := parseBool(q.Answer); !ok {
			return fmt.Errorf("true/false answer must be true or false")
		}
	case storage.QuestionFillBlank:
	default:
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	return nil
}
