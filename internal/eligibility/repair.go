package eligibility

import (
	"fmt"
	"strings"
)

var pythonLiterals = map[string]string{
	"True":  "true",
	"False": "false",
	"None":  "null",
}

// RepairJSON makes one best-effort pass over generated JSON text. It fixes
// trailing commas, raw control characters inside strings, Python style
// literals, and unterminated strings or brackets at the end of the input.
// The output is not guaranteed to parse.
func RepairJSON(text string) string {
	var (
		out      strings.Builder
		stack    []byte
		inString bool
		escaped  bool
	)
	out.Grow(len(text) + 8)

	for i := 0; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
				out.WriteByte(c)
			case c == '\\':
				escaped = true
				out.WriteByte(c)
			case c == '"':
				inString = false
				out.WriteByte(c)
			case c < 0x20:
				out.WriteString(escapeControl(c))
			default:
				out.WriteByte(c)
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out.WriteByte(c)
		case c == '{' || c == '[':
			stack = append(stack, c)
			out.WriteByte(c)
		case c == '}' || c == ']':
			trimTrailingComma(&out)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			out.WriteByte(c)
		case isIdentStart(c):
			j := i
			for j < len(text) && isIdentPart(text[j]) {
				j++
			}
			word := text[i:j]
			if lit, ok := pythonLiterals[word]; ok {
				word = lit
			}
			out.WriteString(word)
			i = j - 1
		default:
			out.WriteByte(c)
		}
	}

	if inString {
		if escaped {
			s := out.String()
			out.Reset()
			out.WriteString(s[:len(s)-1])
		}
		out.WriteByte('"')
	}
	if len(stack) > 0 {
		trimTrailingComma(&out)
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i] == '{' {
				out.WriteByte('}')
			} else {
				out.WriteByte(']')
			}
		}
	}
	return out.String()
}

func escapeControl(c byte) string {
	switch c {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	case '\b':
		return `\b`
	case '\f':
		return `\f`
	default:
		return fmt.Sprintf(`\u%04x`, c)
	}
}

// trimTrailingComma drops a comma (and the whitespace after it) at the end
// of the output written so far.
func trimTrailingComma(out *strings.Builder) {
	s := out.String()
	trimmed := strings.TrimRight(s, " \t\r\n")
	if !strings.HasSuffix(trimmed, ",") {
		return
	}
	out.Reset()
	out.WriteString(trimmed[:len(trimmed)-1])
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
