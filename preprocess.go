package pl

import (
	"fmt"
	"strings"
)

// Preprocess resolves #include, #define and #pragma directives and
// strips comments, returning the expanded text, a LineMap that can
// translate an expanded line back to its original source locus, and the
// collected #pragma key/value pairs (§4.1).
func Preprocess(text string, resolver IncludeResolver) (string, *LineMap, map[string]string, error) {
	p := &preprocessor{
		resolver: resolver,
		defines:  map[string]string{},
		pragmas:  map[string]string{},
		lineMap:  NewLineMap(),
		visiting: map[string]bool{},
	}
	out, err := p.run(text, "<source>")
	if err != nil {
		return "", nil, nil, err
	}
	return out, p.lineMap, p.pragmas, nil
}

type preprocessor struct {
	resolver    IncludeResolver
	defines     map[string]string
	pragmas     map[string]string
	lineMap     *LineMap
	visiting    map[string]bool
	outLine     int
}

func (p *preprocessor) run(text, file string) (string, error) {
	stripped, err := stripComments(text)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	lines := strings.Split(stripped, "\n")
	for i, line := range lines {
		sourceLine := i + 1
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "#include"):
			expanded, err := p.include(trimmed, sourceLine)
			if err != nil {
				return "", err
			}
			out.WriteString(expanded)
			if i != len(lines)-1 {
				out.WriteString("\n")
			}
			continue

		case strings.HasPrefix(trimmed, "#define"):
			if err := p.define(trimmed, sourceLine); err != nil {
				return "", err
			}
			p.outLine++
			out.WriteString("\n")
			continue

		case strings.HasPrefix(trimmed, "#pragma"):
			if err := p.pragma(trimmed, sourceLine); err != nil {
				return "", err
			}
			p.outLine++
			out.WriteString("\n")
			continue
		}

		p.outLine++
		p.lineMap.Record(p.outLine, file, sourceLine)
		out.WriteString(p.substituteDefines(line))
		if i != len(lines)-1 {
			out.WriteString("\n")
		}
	}
	return out.String(), nil
}

func (p *preprocessor) include(directive string, line int) (string, error) {
	path, ok := parseQuoted(directive, "#include")
	if !ok {
		return "", NewErrorAt(KindPreprocess, line, "malformed #include directive").WithHint(`expected #include "path"`)
	}
	if p.visiting[path] {
		return "", NewErrorAt(KindPreprocess, line, fmt.Sprintf("cyclic include of %q", path))
	}
	if p.resolver == nil {
		return "", NewErrorAt(KindPreprocess, line, fmt.Sprintf("cannot resolve include %q: no resolver configured", path))
	}
	text, ok := p.resolver.Resolve(path)
	if !ok {
		return "", NewErrorAt(KindPreprocess, line, fmt.Sprintf("unresolved include %q", path))
	}

	p.visiting[path] = true
	defer delete(p.visiting, path)

	return p.run(text, path)
}

func (p *preprocessor) define(directive string, line int) error {
	rest := strings.TrimSpace(strings.TrimPrefix(directive, "#define"))
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) == 0 || parts[0] == "" {
		return NewErrorAt(KindPreprocess, line, "malformed #define directive")
	}
	name := parts[0]
	replacement := ""
	if len(parts) == 2 {
		replacement = strings.TrimSpace(parts[1])
	}
	p.defines[name] = replacement
	return nil
}

func (p *preprocessor) pragma(directive string, line int) error {
	rest := strings.TrimSpace(strings.TrimPrefix(directive, "#pragma"))
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) == 0 || parts[0] == "" {
		return NewErrorAt(KindPreprocess, line, "malformed #pragma directive")
	}
	key := parts[0]
	value := ""
	if len(parts) == 2 {
		value = strings.TrimSpace(parts[1])
	}
	p.pragmas[key] = value
	return nil
}

// substituteDefines does whole-token textual replacement: only full
// identifier matches are rewritten, never substrings or function-style
// invocations (the language has no function-like macros, §4.1).
func (p *preprocessor) substituteDefines(line string) string {
	if len(p.defines) == 0 {
		return line
	}
	var out strings.Builder
	i := 0
	runes := []rune(line)
	for i < len(runes) {
		if isAlpha(runes[i]) {
			start := i
			for i < len(runes) && isAlnum(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			if repl, ok := p.defines[word]; ok {
				out.WriteString(repl)
			} else {
				out.WriteString(word)
			}
			continue
		}
		out.WriteRune(runes[i])
		i++
	}
	return out.String()
}

func parseQuoted(directive, prefix string) (string, bool) {
	rest := strings.TrimSpace(strings.TrimPrefix(directive, prefix))
	if len(rest) < 2 || rest[0] != '"' {
		return "", false
	}
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		return "", false
	}
	return rest[1 : end+1], true
}

// stripComments removes // line comments and /* block */ comments while
// preserving line numbers: a multi-line block comment collapses to the
// same number of newlines it consumed, so every later line number still
// points at the user's original source.
func stripComments(text string) (string, error) {
	var out strings.Builder
	runes := []rune(text)
	i := 0
	inString := false
	for i < len(runes) {
		c := runes[i]
		if inString {
			out.WriteRune(c)
			if c == '\\' && i+1 < len(runes) {
				i++
				out.WriteRune(runes[i])
			} else if c == '"' {
				inString = false
			}
			i++
			continue
		}
		switch {
		case c == '"':
			inString = true
			out.WriteRune(c)
			i++
		case c == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			closed := false
			for i+1 < len(runes) {
				if runes[i] == '*' && runes[i+1] == '/' {
					i += 2
					closed = true
					break
				}
				if runes[i] == '\n' {
					out.WriteRune('\n')
				}
				i++
			}
			if !closed {
				return "", NewError(KindPreprocess, "unterminated block comment")
			}
		default:
			out.WriteRune(c)
			i++
		}
	}
	return out.String(), nil
}
