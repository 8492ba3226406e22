package timecode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// offsetExpr is the participle grammar for human-entered times.
// Examples: "90", "1:16", "1:16.02", "-0:00.5", "[01:16:02]", "+00:12:34"
type offsetExpr struct {
	Sign  string        `parser:"@(\"+\" | \"-\")?"`
	Open  bool          `parser:"@\"[\"?"`
	Head  string        `parser:"@Int"`
	Tail  []*offsetPart `parser:"@@*"`
	Close bool          `parser:"@\"]\"?"`
}

type offsetPart struct {
	Sep   string `parser:"@(\":\" | \".\")"`
	Value string `parser:"@Int"`
}

var offsetLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[\[\]:.+\-]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var offsetParser = participle.MustBuild[offsetExpr](
	participle.Lexer(offsetLexer),
	participle.Elide("Whitespace"),
)

// ParseOffset parses a signed time expression. Supported forms:
//   - "SS" or "SS.F" (seconds, optional fraction)
//   - "MM:SS" or "MM:SS.FF"
//   - "MM:SS:CC" (the document's field order, brackets optional)
//
// The placeholder literal is not accepted; an offset always has a value.
func ParseOffset(s string) (Timecode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time expression")
	}

	parsed, err := offsetParser.ParseString("", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time expression %q: %w", s, err)
	}
	if parsed.Open != parsed.Close {
		return 0, fmt.Errorf("invalid time expression %q: unbalanced brackets", s)
	}

	t, err := parsed.value()
	if err != nil {
		return 0, fmt.Errorf("invalid time expression %q: %w", s, err)
	}
	if parsed.Sign == "-" {
		t = -t
	}
	return t, nil
}

func (e *offsetExpr) value() (Timecode, error) {
	fields := []string{e.Head}
	seps := make([]string, 0, len(e.Tail))
	for _, p := range e.Tail {
		seps = append(seps, p.Sep)
		fields = append(fields, p.Value)
	}

	var fraction string
	if n := len(seps); n > 0 && seps[n-1] == "." {
		fraction = fields[len(fields)-1]
		fields = fields[:len(fields)-1]
		seps = seps[:n-1]
	}
	for _, sep := range seps {
		if sep != ":" {
			return 0, fmt.Errorf("fraction must be the last field")
		}
	}

	nums := make([]int64, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, err
		}
		nums[i] = n
	}

	switch {
	case e.Open && (len(nums) != 3 || fraction != ""):
		return 0, fmt.Errorf("bracketed time must be [MM:SS:CC]")
	case len(nums) == 3 && fraction != "":
		return 0, fmt.Errorf("MM:SS:CC cannot take a fraction")
	case len(nums) > 3:
		return 0, fmt.Errorf("too many fields")
	}

	var t Timecode
	switch len(nums) {
	case 1:
		t = New(0, nums[0], 0)
	case 2:
		t = New(nums[0], nums[1], 0)
	case 3:
		return New(nums[0], nums[1], nums[2]), nil
	}
	return t + fractionCentis(fraction), nil
}

// fractionCentis converts decimal fraction digits to centiseconds,
// truncating anything past the second digit.
func fractionCentis(digits string) Timecode {
	switch len(digits) {
	case 0:
		return 0
	case 1:
		return Timecode(digits[0]-'0') * 10
	default:
		return Timecode(digits[0]-'0')*10 + Timecode(digits[1]-'0')
	}
}
