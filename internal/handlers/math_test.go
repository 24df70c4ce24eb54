package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/switchboard/internal/dispatch"
)

func TestMath_Process(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"5*3", "5 × 3 = 15"},
		{"  2+2 ", "2 + 2 = 4"},
		{"What is (4+5)*2?", "(4 + 5) × 2 = 18"},
		{"how much is 12 * 4 today", "12 × 4 = 48"},
		{"7/2", "7 ÷ 2 = 3.5"},
		{"2^10", "2 ^ 10 = 1024"},
		{"sqrt(16)", "√16 = 4"},
		{"pow(2, 8)", "2 ^ 8 = 256"},
		{"sin(30)", "sin(30°) = 0.5"},
		{"cos(90)", "cos(90°) = 0"},
		{"-5+3", "-5 + 3 = -2"},
		{"what is -2*3", "-2 × 3 = -6"},
		{"(-2)*3", "(-2) × 3 = -6"},
		{"10 - -2", "10 - -2 = 12"},
		{"8-5", "8 - 5 = 3"},
	}
	m := NewMath()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := m.Process(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMath_ProcessErrors(t *testing.T) {
	m := NewMath()

	_, err := m.Process(context.Background(), "1/0")
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = m.Process(context.Background(), "tan(90)")
	assert.ErrorIs(t, err, ErrBadExpression)
	assert.ErrorIs(t, err, dispatch.ErrBadInput)
}

// Division by zero is the caller's mistake, so Math stays routable.
func TestMath_InputErrorsKeepRouting(t *testing.T) {
	d := dispatch.New().MustRegister(NewMath(), NewKnowledge())
	ctx := context.Background()

	for _, q := range []string{"1/0", "2/0", "3/0"} {
		res := d.Dispatch(ctx, q)
		assert.Equal(t, MathName, res.Handler, q)
		assert.True(t, res.Failed(), q)
		assert.Zero(t, res.Confidence, q)
	}

	res := d.Dispatch(ctx, "5*3")
	assert.Equal(t, MathName, res.Handler)
	assert.Equal(t, "5 × 3 = 15", res.Response)
	assert.Equal(t, "closed", d.Status(ctx)[0].Breaker)
}

func TestMath_Help(t *testing.T) {
	got, err := NewMath().Process(context.Background(), "calculate something")
	require.NoError(t, err)
	assert.Contains(t, got, "I can evaluate expressions")
}

func TestMath_CanHandle(t *testing.T) {
	m := NewMath()
	assert.True(t, m.CanHandle("5*3"))
	assert.True(t, m.CanHandle("what is 2 + 2"))
	assert.True(t, m.CanHandle("sqrt(9)"))
	assert.True(t, m.CanHandle("please calculate the sum"))
	assert.False(t, m.CanHandle("hello there"))
	assert.False(t, m.CanHandle("what is linux"))
}

func TestMath_Bonuses(t *testing.T) {
	m := NewMath()
	assert.Equal(t, 1.0, m.ScoringBonus("5*3"))
	assert.Equal(t, 1.0, m.ScoringBonus("Calculate it"))
	assert.Zero(t, m.ScoringBonus("sqrt(16)"))
	assert.Equal(t, 0.3, m.ConfidenceBonus("5*3", "15"))
	assert.Zero(t, m.ConfidenceBonus("sqrt(16)", "4"))
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"10--2", 12},
		{"2^3^2", 512},
		{"1.5*4", 6},
	}
	for _, tt := range tests {
		got, err := evaluate(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.InDelta(t, tt.want, got, 1e-9, tt.expr)
	}
}

func TestEvaluate_Rejects(t *testing.T) {
	for _, expr := range []string{"2+", "os.exit()", "x*2", ""} {
		_, err := evaluate(expr)
		assert.ErrorIs(t, err, ErrBadExpression, expr)
	}
}

func TestFindExpression(t *testing.T) {
	expr, ok := findExpression("compute 3 + 4 please")
	require.True(t, ok)
	assert.Equal(t, "3 + 4", expr)

	_, ok = findExpression("version 1.2 of 2024")
	assert.False(t, ok)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "15", formatNumber(15))
	assert.Equal(t, "-3", formatNumber(-3))
	assert.Equal(t, "3.5", formatNumber(3.5))
	assert.Equal(t, "0.333333", formatNumber(1.0/3))
	assert.Equal(t, "0", formatNumber(-1e-12))
}
