package handlers

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/normanking/switchboard/internal/dispatch"
)

// MathName is the registered name of the arithmetic handler.
const MathName = "Math"

var quickMath = map[string]string{
	"2+2":    "2 + 2 = 4",
	"2+3":    "2 + 3 = 5",
	"3+3":    "3 + 3 = 6",
	"5*3":    "5 × 3 = 15",
	"10/2":   "10 ÷ 2 = 5",
	"2*8":    "2 × 8 = 16",
	"100-50": "100 - 50 = 50",
}

var (
	sqrtPattern = regexp.MustCompile(`sqrt\(\s*(\d+(?:\.\d+)?)\s*\)`)
	powPattern  = regexp.MustCompile(`pow\(\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*\)`)
	trigPattern = regexp.MustCompile(`\b(sin|cos|tan)\(\s*(-?\d+(?:\.\d+)?)\s*\)`)

	mathKeywords = newWordSet(
		"calculate", "calculation", "calc", "compute", "sum", "product",
		"difference", "quotient", "square root", "power", "sine", "cosine",
		"tangent", "logarithm",
	)
)

// Math answers arithmetic questions: a table of instant answers, + - * / ^
// expressions, sqrt, pow, and trigonometry in degrees.
type Math struct{}

var _ dispatch.Handler = Math{}

// NewMath creates the arithmetic handler.
func NewMath() Math { return Math{} }

func (Math) Name() string           { return MathName }
func (Math) Specialization() string { return "Mathematics and calculations" }

func (Math) CanHandle(query string) bool {
	q := dispatch.NormalizeQuery(query)
	if _, ok := quickMath[q]; ok {
		return true
	}
	if operatorPattern.MatchString(q) || sqrtPattern.MatchString(q) ||
		powPattern.MatchString(q) || trigPattern.MatchString(q) {
		return true
	}
	return mathKeywords.match(q)
}

func (Math) Process(_ context.Context, query string) (string, error) {
	q := dispatch.NormalizeQuery(query)

	if answer, ok := quickMath[q]; ok {
		return answer, nil
	}

	if m := sqrtPattern.FindStringSubmatch(q); m != nil {
		n, _ := strconv.ParseFloat(m[1], 64)
		return fmt.Sprintf("√%s = %s", m[1], formatNumber(math.Sqrt(n))), nil
	}

	if m := powPattern.FindStringSubmatch(q); m != nil {
		base, _ := strconv.ParseFloat(m[1], 64)
		exp, _ := strconv.ParseFloat(m[2], 64)
		v := math.Pow(base, exp)
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return "", fmt.Errorf("%w: pow(%s, %s)", ErrBadExpression, m[1], m[2])
		}
		return fmt.Sprintf("%s ^ %s = %s", m[1], m[2], formatNumber(v)), nil
	}

	if m := trigPattern.FindStringSubmatch(q); m != nil {
		return trig(m[1], m[2])
	}

	if expr, ok := findExpression(q); ok {
		v, err := evaluate(expr)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", prettyExpression(expr), formatNumber(v)), nil
	}

	return "I can evaluate expressions like 2+3, (4+5)*2, sqrt(16), pow(2, 8) or sin(30).", nil
}

// ScoringBonus favours queries that carry an operator or ask to calculate.
func (Math) ScoringBonus(query string) float64 {
	q := strings.ToLower(query)
	if strings.ContainsAny(q, "+-*/=") || strings.Contains(q, "calc") {
		return 1.0
	}
	return 0
}

// ConfidenceBonus trusts plain arithmetic.
func (Math) ConfidenceBonus(query, _ string) float64 {
	if strings.ContainsAny(query, "+-*/") {
		return 0.3
	}
	return 0
}

func trig(fn, arg string) (string, error) {
	degrees, _ := strconv.ParseFloat(arg, 64)
	radians := degrees * math.Pi / 180

	var v float64
	switch fn {
	case "sin":
		v = math.Sin(radians)
	case "cos":
		v = math.Cos(radians)
	default:
		if math.Mod(math.Abs(degrees), 180) == 90 {
			return "", fmt.Errorf("%w: tan(%s°) is undefined", ErrBadExpression, arg)
		}
		v = math.Tan(radians)
	}
	return fmt.Sprintf("%s(%s°) = %s", fn, arg, formatNumber(v)), nil
}

var operatorSpacing = strings.NewReplacer("*", " × ", "/", " ÷ ", "+", " + ", "-", " - ", "^", " ^ ")

// prettyExpression spaces binary operators and keeps unary minus attached
// to its operand.
func prettyExpression(expr string) string {
	fields := strings.Fields(operatorSpacing.Replace(expr))
	out := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if f == "-" && i+1 < len(fields) {
			switch {
			case len(out) == 0 || isOperator(out[len(out)-1]):
				fields[i+1] = "-" + fields[i+1]
				continue
			case strings.HasSuffix(out[len(out)-1], "("):
				out[len(out)-1] += "-" + fields[i+1]
				i++
				continue
			}
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

func isOperator(f string) bool {
	switch f {
	case "+", "-", "×", "÷", "^":
		return true
	}
	return false
}
