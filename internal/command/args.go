package command

import (
	"strings"
	"unicode"
)

// SplitLine splits a console line into the command name and the rest of the
// line. The split happens at the first run of whitespace; the rest keeps its
// inner spacing.
func SplitLine(line string) (name, rest string) {
	line = strings.TrimSpace(line)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimLeftFunc(line[i:], unicode.IsSpace)
}

// SplitArgs splits s into words at whitespace. Single or double quotes keep
// a word together, and a closing quote always ends the word. A backslash
// takes the next character literally, so \" puts a quote inside a word.
func SplitArgs(s string) []string {
	var (
		args    []string
		word    strings.Builder
		quote   rune
		escaped bool
	)
	flush := func() {
		if word.Len() > 0 {
			args = append(args, word.String())
			word.Reset()
		}
	}

	for _, r := range s {
		switch {
		case escaped:
			word.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case quote != 0:
			if r == quote {
				quote = 0
				flush()
			} else {
				word.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
		case unicode.IsSpace(r):
			flush()
		default:
			word.WriteRune(r)
		}
	}
	if escaped {
		word.WriteRune('\\')
	}
	flush()
	return args
}
