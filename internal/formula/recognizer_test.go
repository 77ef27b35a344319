package formula

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrecedenceOrder(t *testing.T) {
	assert.Equal(t, []string{
		"equation", "fraction", "power", "subscript", "square_root",
		"summation_or_product", "integral", "greek_notation", "matrix",
		"inequality", "percentage", "measurement",
	}, Precedence)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"a = b/c", TypeEquation},
		{"b/c", TypeFraction},
		{"x^2", TypePower},
		{"x²", TypePower},
		{"x_1", TypeSubscript},
		{"√x", TypeSquareRoot},
		{"∑ x_i", TypeSubscript},
		{"∑ xi", TypeSummationOrProduct},
		{"∫ f dx", TypeIntegral},
		{"α", TypeGreekNotation},
		{"[[1, 2], [3, 4]]", TypeMatrix},
		{"x ≤ 5", TypeInequality},
		{"a <= b", TypeInequality},
		{"15%", TypePercentage},
		{"25 kg", TypeMeasurement},
		{"hello", TypeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.raw), "raw=%q", tt.raw)
	}
}

func TestRecognize_EquationBeatsFraction(t *testing.T) {
	got := Recognize("Theo định nghĩa a = b/c với c khác 0")
	require.Len(t, got, 1)
	f := got[0]
	assert.Equal(t, "a = b/c", f.Raw)
	assert.Equal(t, TypeEquation, f.Type)
	assert.Equal(t, []string{"a", "b", "c"}, f.Variables)
	assert.Contains(t, f.Features, "has_equation")
	assert.Contains(t, f.Features, "has_fraction")
}

func TestRecognize_ContainedMatchesDropped(t *testing.T) {
	got := Recognize("Định lý: $x^2 + y^2 = z^2$ cho tam giác vuông.")
	require.Len(t, got, 1)
	assert.Equal(t, "$x^2 + y^2 = z^2$", got[0].Raw)
	assert.Equal(t, TypeEquation, got[0].Type)
	assert.Equal(t, []string{"2"}, got[0].Constants)
}

func TestRecognize_OrderedByPosition(t *testing.T) {
	got := Recognize("Lãi suất 5% mỗi năm, và E = m*c^2 là năng lượng.")
	require.Len(t, got, 2)
	assert.Equal(t, "5%", got[0].Raw)
	assert.Equal(t, TypePercentage, got[0].Type)
	assert.Equal(t, "E = m*c^2", got[1].Raw)
	assert.Equal(t, TypeEquation, got[1].Type)
}

func TestRecognize_MeasurementNeedsBoundary(t *testing.T) {
	assert.Empty(t, Recognize("We had 5 members present"))

	got := Recognize("Quãng đường dài 12 km.")
	require.Len(t, got, 1)
	assert.Equal(t, "12 km", got[0].Raw)
	assert.Equal(t, TypeMeasurement, got[0].Type)
}

func TestRecognize_NoMatch(t *testing.T) {
	assert.Nil(t, Recognize("Xin chào các bạn"))
	assert.Nil(t, Recognize(""))
}

func TestRecognize_ContextWindow(t *testing.T) {
	pad := strings.Repeat("ạ", 300)
	got := Recognize(pad + " x = 1 " + pad)
	require.Len(t, got, 1)
	n := utf8.RuneCountInString(got[0].Context)
	assert.LessOrEqual(t, n, 2*ContextRunes+len("x = 1")+2)
	assert.Contains(t, got[0].Context, "x = 1")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, `\sqrt x \leq \alpha`, Normalize("√x ≤ α"))
	assert.Equal(t, "x^2 + y^2", Normalize("x**2 +   y²"))
}
