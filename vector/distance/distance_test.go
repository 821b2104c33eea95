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

package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEuclideanDistanceOfIdenticalVectorsIsZero(t *testing.T) {
	v := []float32{1, 2, 3}

	d, err := EuclideanDistance(v, v)

	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-9)
}

func TestEuclideanDistanceKnownValue(t *testing.T) {
	d, err := EuclideanDistance([]float32{0, 0}, []float32{3, 4})

	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-9)
}

func TestCosineDistanceOfOrthogonalVectorsIsOne(t *testing.T) {
	d, err := CosineDistance([]float32{1, 0}, []float32{0, 1})

	require.NoError(t, err)
	assert.InDelta(t, 1, d, 1e-9)
}

func TestDotProductDistanceNegatesRawDotProduct(t *testing.T) {
	d, err := DotProductDistance([]float32{1, 2}, []float32{3, 4})

	require.NoError(t, err)
	assert.InDelta(t, -11, d, 1e-9)
}

func TestManhattanDistanceKnownValue(t *testing.T) {
	d, err := ManhattanDistance([]float32{0, 0}, []float32{3, 4})

	require.NoError(t, err)
	assert.InDelta(t, 7, d, 1e-9)
}

func TestHammingDistanceCountsDifferences(t *testing.T) {
	d, err := HammingDistance([]float32{1, 0, 1, 1}, []float32{1, 1, 0, 1})

	require.NoError(t, err)
	assert.Equal(t, float64(2), d)
}

func TestDistanceRejectsMismatchedDimensions(t *testing.T) {
	_, err := EuclideanDistance([]float32{1, 2}, []float32{1, 2, 3})

	assert.Error(t, err)
}

func TestResolveUnknownMetricErrors(t *testing.T) {
	_, err := Resolve(Metric(99))

	assert.Error(t, err)
}
