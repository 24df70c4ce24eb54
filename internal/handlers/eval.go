package handlers

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/normanking/switchboard/internal/dispatch"
)

// Both errors describe the query, so they match dispatch.ErrBadInput.
var (
	// ErrDivisionByZero is returned when an expression divides by zero.
	ErrDivisionByZero = dispatch.InputError(errors.New("division by zero"))

	// ErrBadExpression is returned for expressions that cannot be evaluated.
	ErrBadExpression = dispatch.InputError(errors.New("invalid expression"))
)

const maxExpressionLen = 256

var (
	expressionPattern = regexp.MustCompile(`[\d(][\d\s+\-*/^().]*[\d)]`)
	operatorPattern   = regexp.MustCompile(`\d\s*\)?\s*[+\-*/^]\s*\(?\s*\d`)
	allowedExpression = regexp.MustCompile(`^[\d\s+\-*/^().]+$`)
)

// findExpression extracts the first arithmetic expression from text,
// keeping a leading minus sign.
func findExpression(text string) (string, bool) {
	for _, loc := range expressionPattern.FindAllStringIndex(text, -1) {
		candidate := text[loc[0]:loc[1]]
		if !operatorPattern.MatchString(candidate) {
			continue
		}
		if negated(text, loc[0]) {
			candidate = "-" + candidate
		}
		return strings.TrimSpace(candidate), true
	}
	return "", false
}

// negated reports whether the expression starting at i is preceded by a
// unary minus, i.e. a '-' at the start of text or after whitespace or '('.
func negated(text string, i int) bool {
	if i == 0 || text[i-1] != '-' {
		return false
	}
	return i == 1 || strings.ContainsRune(" \t\n(", rune(text[i-2]))
}

// evaluate computes an arithmetic expression in a library-less Lua state.
// Only digits, whitespace, parentheses, '.', and + - * / ^ are accepted.
func evaluate(expr string) (float64, error) {
	if len(expr) > maxExpressionLen || !allowedExpression.MatchString(expr) {
		return 0, fmt.Errorf("%w: %q", ErrBadExpression, expr)
	}

	// "--" starts a Lua comment.
	expr = strings.ReplaceAll(expr, "-", " -")

	L := lua.NewState(lua.Options{SkipOpenLibs: true, CallStackSize: 64, RegistrySize: 1024})
	defer L.Close()

	if err := L.DoString("return " + expr); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadExpression, strings.TrimSpace(expr))
	}

	n, ok := L.Get(-1).(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadExpression, strings.TrimSpace(expr))
	}

	v := float64(n)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrDivisionByZero
	}
	return v, nil
}

// formatNumber renders integers without a fraction and everything else
// rounded to six decimals.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	r := math.Round(v*1e6) / 1e6
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
