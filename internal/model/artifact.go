// Package model loads fitted prediction artifacts.
// Fitting happens elsewhere; this package only reads the vocabulary and
// coefficients written by the training job and applies them.
package model

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Artifact is the on-disk form of a fitted vectorizer + regression pair.
//
//	name: fhv-duration
//	version: "2022-06-15"
//	features: ["PU_DO=1_1", "PU_DO=1_2", "trip_distance"]
//	intercept: 12.5
//	coefficients: [1.5, -0.25, 0.8]
type Artifact struct {
	Name         string    `yaml:"name"`
	Version      string    `yaml:"version"`
	Features     []string  `yaml:"features"`
	Intercept    float64   `yaml:"intercept"`
	Coefficients []float64 `yaml:"coefficients"`
}

// Model bundles the vectorizer and regression loaded from one Artifact.
// It is constructed once per process and never mutated.
type Model struct {
	Name       string
	Version    string
	Vectorizer *DictVectorizer
	Regression *LinearRegression
}

// Load reads and validates the artifact at path.
func Load(path string, strict bool) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model.Load: %w", err)
	}
	m, err := Decode(bytes.NewReader(raw), strict)
	if err != nil {
		return nil, fmt.Errorf("model.Load: %s: %w", path, err)
	}
	return m, nil
}

// Decode parses an artifact from r.
func Decode(r io.Reader, strict bool) (*Model, error) {
	var a Artifact
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return FromArtifact(a, strict)
}

// FromArtifact validates a and builds the Model.
func FromArtifact(a Artifact, strict bool) (*Model, error) {
	if len(a.Features) != len(a.Coefficients) {
		return nil, fmt.Errorf("artifact has %d features but %d coefficients", len(a.Features), len(a.Coefficients))
	}
	dv, err := NewDictVectorizer(a.Features, strict)
	if err != nil {
		return nil, err
	}
	lr, err := NewLinearRegression(a.Coefficients, a.Intercept)
	if err != nil {
		return nil, err
	}
	return &Model{Name: a.Name, Version: a.Version, Vectorizer: dv, Regression: lr}, nil
}
