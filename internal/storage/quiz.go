package storage

import (
	"context"
	"encoding/json"
	"time"
)

const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionFillBlank      = "fill_blank"
	QuestionTrueFalse      = "true_false"
)

type Question struct {
	QuestionID int      `json:"id"`
	Question   string   `json:"question"`
	Type       string   `json:"type"`
	Options    []string `json:"options,omitempty"`
	Answer     string   `json:"answer"`
}

type questionRow struct {
	QuestionID int    `db:"question_id"`
	Question   string `db:"question"`
	Type       string `db:"type"`
	Options    string `db:"options"`
	Answer     string `db:"answer"`
}

type QuizAnswer struct {
	UserID      string
	QuestionID  int
	AnswerGiven string
	Correct     bool
	AnsweredAt  time.Time
}

// SeedQuestions mirrors the question bank into the store, refreshing rows that already exist.
func (s *Store) SeedQuestions(ctx context.Context, questions []Question) error {
	for _, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		err = s.Exec(ctx, `
			INSERT INTO quiz_questions (question_id, question, type, options, answer)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(question_id) DO UPDATE SET
				question = excluded.question,
				type = excluded.type,
				options = excluded.options,
				answer = excluded.answer
		`, q.QuestionID, q.Question, q.Type, string(options), q.Answer)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListQuestions(ctx context.Context) ([]Question, error) {
	var rows []questionRow
	if err := s.Fetch(ctx, &rows, `SELECT question_id, question, type, options, answer FROM quiz_questions ORDER BY question_id`); err != nil {
		return nil, err
	}
	questions := make([]Question, 0, len(rows))
	for _, row := range rows {
		q := Question{QuestionID: row.QuestionID, Question: row.Question, Type: row.Type, Answer: row.Answer}
		if err := json.Unmarshal([]byte(row.Options), &q.Options); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (s *Store) AddQuizAnswer(ctx context.Context, answer QuizAnswer) error {
	answeredAt := answer.AnsweredAt
	if answeredAt.IsZero() {
		answeredAt = s.clock.Now()
	}
	return s.Exec(ctx, `
		INSERT INTO quiz_answers (user_id, question_id, answer_given, correct, answered_at)
		VALUES (?, ?, ?, ?, ?)
	`, answer.UserID, answer.QuestionID, answer.AnswerGiven, boolToInt(answer.Correct), answeredAt.Unix())
}

// QuizAnswerStats returns total and correct attempts for a user.
func (s *Store) QuizAnswerStats(ctx context.Context, userID string) (int, int, error) {
	var stats struct {
		Total   int `db:"total"`
		Correct int `db:"correct"`
	}
	err := s.FetchOne(ctx, &stats, `
		SELECT COUNT(*) AS total, COALESCE(SUM(correct), 0) AS correct
		FROM quiz_answers WHERE user_id = ?
	`, userID)
	return stats.Total, stats.Correct, err
}
