package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

var controlRuns = regexp.MustCompile(`[\x00-\x1F]+`)

// SanitizeJSON decodes a model completion that is expected to hold a JSON
// document. Markdown fences, stray backslashes and control characters are
// removed first. When strict decoding fails the text is read as a Python
// style literal, then once more with every line trimmed.
func SanitizeJSON(raw string) (any, error) {
	s := raw
	if strings.HasPrefix(s, "```json") {
		s = strings.Replace(s, "```json", "", 1)
	}
	if strings.HasSuffix(s, "```") {
		s = strings.Replace(s, "```", "", 1)
	}
	s = strings.ReplaceAll(s, `\`, "")
	s = controlRuns.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(strings.TrimSpace(s), "\r\n", "\n")

	var out any
	err := json.Unmarshal([]byte(s), &out)
	if err == nil {
		return out, nil
	}

	if converted, ok := pythonLiteralToJSON(s); ok {
		var lit any
		if json.Unmarshal([]byte(converted), &lit) == nil {
			switch lit.(type) {
			case map[string]any, []any:
				return lit, nil
			}
		}
	}

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	if err := json.Unmarshal([]byte(strings.Join(kept, "\n")), &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "could not parse json string")
	}
	return out, nil
}

// pythonLiteralToJSON rewrites single quoted strings and the True, False and
// None keywords. Tuples become lists. It reports false on unbalanced quotes.
func pythonLiteralToJSON(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case c == quote:
				quote = 0
				b.WriteByte('"')
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			b.WriteByte('"')
		case '(':
			b.WriteByte('[')
		case ')':
			b.WriteByte(']')
		default:
			if word, ok := keywordAt(s, i); ok {
				b.WriteString(pythonKeywords[word])
				i += len(word) - 1
				continue
			}
			b.WriteByte(c)
		}
	}
	return b.String(), quote == 0
}

var pythonKeywords = map[string]string{
	"True":  "true",
	"False": "false",
	"None":  "null",
}

func keywordAt(s string, i int) (string, bool) {
	if i > 0 && isIdentByte(s[i-1]) {
		return "", false
	}
	for word := range pythonKeywords {
		end := i + len(word)
		if end > len(s) || s[i:end] != word {
			continue
		}
		if end < len(s) && isIdentByte(s[end]) {
			continue
		}
		return word, true
	}
	return "", false
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
