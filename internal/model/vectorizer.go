package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/pkordes/ride-duration/internal/domain"
)

// DictVectorizer turns feature dicts into a dense matrix using a fixed,
// pre-fitted vocabulary. String values become one-hot columns named
// "key=value"; numeric values fill the column named "key".
//
// It is immutable after construction and safe for concurrent use.
type DictVectorizer struct {
	names  []string
	index  map[string]int
	strict bool
}

// NewDictVectorizer builds a vectorizer over features. When strict is true,
// Transform rejects string categories that are not in the vocabulary with
// domain.ErrUnknownCategory; otherwise they are dropped (all-zero columns).
func NewDictVectorizer(features []string, strict bool) (*DictVectorizer, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("model.NewDictVectorizer: empty vocabulary")
	}
	index := make(map[string]int, len(features))
	for i, f := range features {
		if _, dup := index[f]; dup {
			return nil, fmt.Errorf("model.NewDictVectorizer: duplicate feature %q", f)
		}
		index[f] = i
	}
	names := make([]string, len(features))
	copy(names, features)
	return &DictVectorizer{names: names, index: index, strict: strict}, nil
}

// FeatureNames returns the vocabulary in column order.
func (v *DictVectorizer) FeatureNames() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Transform encodes rows into a len(rows) x len(vocabulary) matrix.
// A nil matrix is returned for an empty input.
// Nil values are skipped. Numeric keys missing from the vocabulary are ignored.
func (v *DictVectorizer) Transform(rows []map[string]any) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := len(v.names)
	data := make([]float64, len(rows)*cols)

	for i, row := range rows {
		base := i * cols
		for key, raw := range row {
			switch val := raw.(type) {
			case nil:
				continue
			case string:
				name := key + "=" + val
				j, ok := v.index[name]
				if !ok {
					if v.strict {
						return nil, fmt.Errorf("model.DictVectorizer.Transform: row %d: %w: %s", i, domain.ErrUnknownCategory, name)
					}
					continue
				}
				data[base+j] = 1
			default:
				num, ok := toFloat(val)
				if !ok {
					return nil, fmt.Errorf("model.DictVectorizer.Transform: row %d: unsupported value type %T for %q", i, raw, key)
				}
				if j, ok := v.index[key]; ok {
					data[base+j] = num
				}
			}
		}
	}

	return mat.NewDense(len(rows), cols, data), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
