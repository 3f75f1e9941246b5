package utils

import (
	"regexp"
	"unicode"
)

var customEmojiRegex = regexp.MustCompile(`<a?:[A-Za-z0-9_~]+:\d+>`)

// CountEmojis counts custom emoji tags plus pictographic runes, treating
// variation selectors, joiners and skin tone modifiers as part of the previous emoji.
func CountEmojis(content string) int {
	count := len(customEmojiRegex.FindAllStringIndex(content, -1))
	content = customEmojiRegex.ReplaceAllString(content, "")

	joined := false
	regional := 0
	for _, r := range content {
		switch {
		case r == 0x200D:
			joined = true
			continue
		case r == 0xFE0F || r == 0x20E3 || (r >= 0x1F3FB && r <= 0x1F3FF):
			continue
		case r >= 0x1F1E6 && r <= 0x1F1FF:
			// Two regional indicators form one flag.
			regional++
			if regional%2 == 1 {
				count++
			}
			joined = false
			continue
		}
		regional = 0
		if isPictographic(r) {
			if !joined {
				count++
			}
		}
		joined = false
	}
	return count
}

func isPictographic(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	case r == 0x00A9 || r == 0x00AE || r == 0x203C || r == 0x2049:
		return true
	}
	return unicode.Is(unicode.So, r) && r > 0x2100
}
