// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package distance provides the vector similarity metrics HNSW search and
// insertion are built on. The gonum floats package gives these a
// vectorized reference implementation instead of a hand-rolled loop, and
// backs the recall/tolerance cross-checks in ann/hnsw's test suite.
package distance

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"github.com/lspecian/vexfs-sub013/vexfserrors"
)

// Metric names a supported similarity function.
type Metric int

const (
	Euclidean Metric = iota
	Cosine
	DotProduct
	Manhattan
	Hamming
)

// Func computes a distance where lower means more similar for every metric:
// CosineDistance returns 1 minus the cosine similarity and
// DotProductDistance the negated dot product, so HNSW's search loop treats
// every metric as "lower is closer".
type Func func(a, b []float32) (float64, error)

func checkLengths(a, b []float32) error {
	if len(a) != len(b) {
		return vexfserrors.New(vexfserrors.CodeInvalidArgument, "vector dimension mismatch")
	}
	if len(a) == 0 {
		return vexfserrors.New(vexfserrors.CodeInvalidArgument, "vector must be non-empty")
	}
	return nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) (float64, error) {
	if err := checkLengths(a, b); err != nil {
		return 0, err
	}
	fa, fb := toFloat64(a), toFloat64(b)
	floats.Sub(fa, fb)
	return floats.Norm(fa, 2), nil
}

// CosineDistance returns 1 - cosine similarity, so 0 means identical
// direction.
func CosineDistance(a, b []float32) (float64, error) {
	if err := checkLengths(a, b); err != nil {
		return 0, err
	}
	fa, fb := toFloat64(a), toFloat64(b)
	dot := floats.Dot(fa, fb)
	na := floats.Norm(fa, 2)
	nb := floats.Norm(fb, 2)
	if na == 0 || nb == 0 {
		return 1, nil
	}
	return 1 - dot/(na*nb), nil
}

// DotProductDistance returns the negated dot product, so larger raw dot
// products (more similar) sort as smaller distances.
func DotProductDistance(a, b []float32) (float64, error) {
	if err := checkLengths(a, b); err != nil {
		return 0, err
	}
	return -floats.Dot(toFloat64(a), toFloat64(b)), nil
}

// ManhattanDistance returns the L1 distance between a and b.
func ManhattanDistance(a, b []float32) (float64, error) {
	if err := checkLengths(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum, nil
}

// HammingDistance counts differing components, treating each float32 as a
// discrete symbol (useful for quantized/binary embeddings).
func HammingDistance(a, b []float32) (float64, error) {
	if err := checkLengths(a, b); err != nil {
		return 0, err
	}
	var count float64
	for i := range a {
		if a[i] != b[i] {
			count++
		}
	}
	return count, nil
}

// Resolve returns the Func implementing metric.
func Resolve(metric Metric) (Func, error) {
	switch metric {
	case Euclidean:
		return EuclideanDistance, nil
	case Cosine:
		return CosineDistance, nil
	case DotProduct:
		return DotProductDistance, nil
	case Manhattan:
		return ManhattanDistance, nil
	case Hamming:
		return HammingDistance, nil
	default:
		return nil, vexfserrors.New(vexfserrors.CodeInvalidArgument, "unknown distance metric")
	}
}
