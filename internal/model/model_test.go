package model_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/model"
)

const artifactYAML = `
name: fhv-duration
version: "2022-06-15"
features: ["PU_DO=1_1", "PU_DO=1_2", "trip_distance"]
intercept: 10
coefficients: [2, -1, 0.5]
`

// ---- DictVectorizer --------------------------------------------------------

func TestDictVectorizer_Transform_OneHotAndNumeric(t *testing.T) {
	dv, err := model.NewDictVectorizer([]string{"PU_DO=1_1", "PU_DO=1_2", "trip_distance"}, false)
	require.NoError(t, err)

	x, err := dv.Transform([]map[string]any{
		{"PU_DO": "1_1", "trip_distance": 3.0},
		{"PU_DO": "1_2"},
	})

	require.NoError(t, err)
	r, c := x.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, []float64{1, 0, 3}, mat.Row(nil, 0, x))
	assert.Equal(t, []float64{0, 1, 0}, mat.Row(nil, 1, x))
}

func TestDictVectorizer_Transform_UnknownCategoryIgnoredWhenLenient(t *testing.T) {
	dv, err := model.NewDictVectorizer([]string{"PU_DO=1_1"}, false)
	require.NoError(t, err)

	x, err := dv.Transform([]map[string]any{{"PU_DO": "-1_-1"}})

	require.NoError(t, err)
	assert.Equal(t, []float64{0}, mat.Row(nil, 0, x))
}

func TestDictVectorizer_Transform_UnknownCategoryRejectedWhenStrict(t *testing.T) {
	dv, err := model.NewDictVectorizer([]string{"PU_DO=1_1"}, true)
	require.NoError(t, err)

	_, err = dv.Transform([]map[string]any{{"PU_DO": "7_9"}})

	assert.ErrorIs(t, err, domain.ErrUnknownCategory)
	assert.ErrorContains(t, err, "PU_DO=7_9")
}

func TestDictVectorizer_Transform_NilValuesSkipped(t *testing.T) {
	dv, err := model.NewDictVectorizer([]string{"PU_DO=1_1", "trip_distance"}, true)
	require.NoError(t, err)

	x, err := dv.Transform([]map[string]any{{"PU_DO": "1_1", "trip_distance": nil}})

	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, mat.Row(nil, 0, x))
}

func TestDictVectorizer_Transform_Empty(t *testing.T) {
	dv, err := model.NewDictVectorizer([]string{"a"}, false)
	require.NoError(t, err)

	x, err := dv.Transform(nil)

	require.NoError(t, err)
	assert.Nil(t, x)
}

func TestDictVectorizer_Transform_UnsupportedType(t *testing.T) {
	dv, err := model.NewDictVectorizer([]string{"a"}, false)
	require.NoError(t, err)

	_, err = dv.Transform([]map[string]any{{"a": []int{1}}})

	assert.Error(t, err)
}

func TestNewDictVectorizer_RejectsBadVocabulary(t *testing.T) {
	_, err := model.NewDictVectorizer(nil, false)
	assert.Error(t, err)

	_, err = model.NewDictVectorizer([]string{"a", "a"}, false)
	assert.ErrorContains(t, err, "duplicate")
}

// ---- LinearRegression ------------------------------------------------------

func TestLinearRegression_Predict(t *testing.T) {
	lr, err := model.NewLinearRegression([]float64{2, -1, 0.5}, 10)
	require.NoError(t, err)

	x := mat.NewDense(2, 3, []float64{
		1, 0, 4,
		0, 1, 0,
	})
	got, err := lr.Predict(x)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 14.0, got[0], 1e-9)
	assert.InDelta(t, 9.0, got[1], 1e-9)
}

func TestLinearRegression_Predict_DimensionMismatch(t *testing.T) {
	lr, err := model.NewLinearRegression([]float64{1, 2}, 0)
	require.NoError(t, err)

	_, err = lr.Predict(mat.NewDense(1, 3, []float64{1, 2, 3}))

	assert.ErrorIs(t, err, domain.ErrModelInvocation)
}

func TestLinearRegression_Predict_Nil(t *testing.T) {
	lr, err := model.NewLinearRegression([]float64{1}, 0)
	require.NoError(t, err)

	got, err := lr.Predict(nil)

	require.NoError(t, err)
	assert.Empty(t, got)
}

// ---- Artifact loading ------------------------------------------------------

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(artifactYAML), 0o644))

	m, err := model.Load(path, false)

	require.NoError(t, err)
	assert.Equal(t, "fhv-duration", m.Name)
	assert.Equal(t, "2022-06-15", m.Version)
	assert.Equal(t, []string{"PU_DO=1_1", "PU_DO=1_2", "trip_distance"}, m.Vectorizer.FeatureNames())

	x, err := m.Vectorizer.Transform([]map[string]any{{"PU_DO": "1_1", "trip_distance": 2.0}})
	require.NoError(t, err)
	pred, err := m.Regression.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, 13.0, pred[0], 1e-9)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := model.Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	assert.Error(t, err)
}

func TestDecode_LengthMismatch(t *testing.T) {
	_, err := model.Decode(strings.NewReader(`
features: ["a", "b"]
coefficients: [1]
`), false)

	assert.ErrorContains(t, err, "2 features but 1 coefficients")
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := model.Decode(strings.NewReader(`
features: ["a"]
coefficients: [1]
weights: [2]
`), false)

	assert.Error(t, err)
}
