package translate

import (
	"fmt"
	"strings"
)

// SystemPrompt returns the instruction used by text-translation backends
// that chain a transcriber with a chat model.
func SystemPrompt(sourceLang, targetLang string) string {
	src := sourceLang
	if src == "" {
		src = "the detected language"
	}
	return fmt.Sprintf(
		"You are a professional interpreter. Translate the user's message from %s to %s. "+
			"Reply with the translation only, without quotes, notes or explanations. "+
			"Keep names, numbers and punctuation intact.",
		src, targetLang,
	)
}

// CleanTranslation strips wrapping quotes and whitespace chat models tend to
// add around a bare translation.
func CleanTranslation(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			s = strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}
