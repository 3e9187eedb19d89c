package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pkordes/ride-duration/internal/domain"
)

// LinearRegression is a fitted linear model: y = X·w + b.
type LinearRegression struct {
	coef      *mat.VecDense
	intercept float64
}

// NewLinearRegression wraps fitted coefficients and intercept.
func NewLinearRegression(coefficients []float64, intercept float64) (*LinearRegression, error) {
	if len(coefficients) == 0 {
		return nil, fmt.Errorf("model.NewLinearRegression: no coefficients")
	}
	w := make([]float64, len(coefficients))
	copy(w, coefficients)
	return &LinearRegression{coef: mat.NewVecDense(len(w), w), intercept: intercept}, nil
}

// Predict returns one prediction per row of x. A nil x yields no predictions.
// A column count that does not match the coefficients is a
// domain.ErrModelInvocation.
func (m *LinearRegression) Predict(x *mat.Dense) ([]float64, error) {
	if x == nil {
		return []float64{}, nil
	}
	rows, cols := x.Dims()
	if cols != m.coef.Len() {
		return nil, fmt.Errorf("model.LinearRegression.Predict: %w: got %d features, want %d",
			domain.ErrModelInvocation, cols, m.coef.Len())
	}

	y := mat.NewVecDense(rows, nil)
	y.MulVec(x, m.coef)

	out := make([]float64, rows)
	for i := range out {
		out[i] = y.AtVec(i) + m.intercept
	}
	return out, nil
}
