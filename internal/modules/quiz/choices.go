package quiz

import (
	"strings"

	"sentinel-community/internal/storage"
)

const (
	EmojiTrue  = "✅"
	EmojiFalse = "❌"
)

// ChoiceEmoji is the regional indicator for option i (🇦, 🇧, ...).
func ChoiceEmoji(i int) string {
	return string(rune(0x1F1E6 + i))
}

func choiceEmojis(q storage.Question) []string {
	switch q.Type {
	case storage.QuestionMultipleChoice:
		out := make([]string, len(q.Options))
		for i := range q.Options {
			out[i] = ChoiceEmoji(i)
		}
		return out
	case storage.QuestionTrueFalse:
		return []string{EmojiTrue, EmojiFalse}
	}
	return nil
}

// correctChoice maps the stored answer to the reaction that wins.
// Multiple choice answers may be the option text or its letter.
func correctChoice(q storage.Question) (string, bool) {
	switch q.Type {
	case storage.QuestionMultipleChoice:
		answer := strings.TrimSpace(q.Answer)
		for i, option := range q.Options {
			if strings.EqualFold(strings.TrimSpace(option), answer) {
				return ChoiceEmoji(i), true
			}
		}
		if len(answer) == 1 {
			idx := int(strings.ToUpper(answer)[0]) - 'A'
			if idx >= 0 && idx < len(q.Options) {
				return ChoiceEmoji(idx), true
			}
		}
	case storage.QuestionTrueFalse:
		value, ok := parseBool(q.Answer)
		if !ok {
			return "", false
		}
		if value {
			return EmojiTrue, true
		}
		return EmojiFalse, true
	}
	return "", false
}

func parseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "vrai", "yes":
		return true, true
	case "false", "faux", "no":
		return false, true
	}
	return false, false
}

func matchesText(q storage.Question, given string) bool {
	return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(q.Answer))
}

// revealAnswer is the human form of the answer shown on timeout.
func revealAnswer(q storage.Question) string {
	if q.Type == storage.QuestionMultipleChoice {
		if emoji, ok := correctChoice(q); ok {
			for i := range q.Options {
				if ChoiceEmoji(i) == emoji {
					return q.Options[i]
				}
			}
		}
	}
	return q.Answer
}

func isChoice(q storage.Question, emoji string) bool {
	for _, candidate := range choiceEmojis(q) {
		if candidate == emoji {
			return true
		}
	}
	return false
}
