package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCVaR99EmptyReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, CVaR99(nil))
}

func TestCVaR99AveragesTail(t *testing.T) {
	returns := make([]float64, 0, 100)
	for i := 0; i < 99; i++ {
		returns = append(returns, 0.01)
	}
	returns = append(returns, -0.50) // the one catastrophic day

	cvar := CVaR99(returns)
	assert.Less(t, cvar, 0.0, "the tail loss should dominate CVaR99")
}

func TestExceedsLimitHealthyIsFalse(t *testing.T) {
	returns := []float64{0.01, 0.02, -0.005, 0.01, -0.002}
	assert.False(t, ExceedsLimit(returns, 100000, 0.10))
}

func TestExceedsLimitZeroNavIsFalse(t *testing.T) {
	assert.False(t, ExceedsLimit([]float64{-0.5}, 0, 0.01))
}
