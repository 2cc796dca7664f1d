package pl

import "strings"

// FormatFunc renders one pattern's own line of output given the
// already formatted text of its value; the caller supplies it so
// printing stays decoupled from how a Value is actually read.
type FormatFunc func(p Pattern, formatted string) string

// treePrinter accumulates an indented, branch-drawn dump of a pattern
// tree. It is the same accumulate-padding-then-write shape as the
// teacher's generic tree_printer.go, re-cut for Pattern instead of a
// parametrized token type since this package only ever prints one kind
// of tree.
type treePrinter struct {
	padStr []string
	output strings.Builder
	format FormatFunc
	read   func(Pattern) (Value, error)
}

func newTreePrinter(format FormatFunc, read func(Pattern) (Value, error)) *treePrinter {
	return &treePrinter{format: format, read: read}
}

func (tp *treePrinter) indent(s string)   { tp.padStr = append(tp.padStr, s) }
func (tp *treePrinter) unindent()         { tp.padStr = tp.padStr[:len(tp.padStr)-1] }
func (tp *treePrinter) padding()          {
	for _, item := range tp.padStr {
		tp.write(item)
	}
}
func (tp *treePrinter) write(s string)  { tp.output.WriteString(s) }
func (tp *treePrinter) writel(s string) { tp.write(s); tp.output.WriteRune('\n') }
func (tp *treePrinter) pwritel(s string) {
	tp.padding()
	tp.writel(s)
}

var literalSanitizer = strings.NewReplacer(
	`"`, `\"`,
	`\`, `\\`,
	string('\n'), `\n`,
	string('\r'), `\r`,
	string('\t'), `\t`,
)

func escapeLiteral(s string) string { return literalSanitizer.Replace(s) }

func (tp *treePrinter) printPattern(p Pattern, isLast bool) {
	branch := "├─ "
	cont := "│  "
	if isLast {
		branch = "└─ "
		cont = "   "
	}

	formatted, err := FormattedValue(p, tp.read)
	if err != nil {
		formatted = "<error: " + err.Error() + ">"
	}
	line := tp.format(p, escapeLiteral(formatted))

	tp.padding()
	tp.write(branch)
	tp.writel(line)

	children := Children(p)
	tp.indent(cont)
	for i, c := range children {
		tp.printPattern(c, i == len(children)-1)
	}
	tp.unindent()
}

// DumpTree renders a pattern tree as an indented, branch-drawn string
// for debugging and CLI output, one root per top-level call.
func DumpTree(tree *Tree, source ByteSource, cfg Config) string {
	ev := &evaluator{source: source, cfg: cfg}
	format := func(p Pattern, formatted string) string {
		return p.TypeName() + " " + p.DisplayName() + " = " + formatted
	}
	tp := newTreePrinter(format, ev.readPatternValue)
	for i, r := range tree.Roots {
		tp.printPattern(r, i == len(tree.Roots)-1)
	}
	return tp.output.String()
}
