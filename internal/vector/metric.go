package vector

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Metric names a distance function. Smaller distance means closer.
type Metric string

const (
	Euclidean Metric = "euclidean"
	Cosine    Metric = "cosine"
	Dot       Metric = "dot"
)

// ErrUnknownMetric is returned for a metric name outside the known set.
var ErrUnknownMetric = errors.New("unknown distance metric")

// ParseMetric accepts a metric name in any case.
func ParseMetric(s string) (Metric, error) {
	m := Metric(strings.ToLower(strings.TrimSpace(s)))
	if _, err := m.distanceFunc(); err != nil {
		return "", err
	}
	return m, nil
}

func (m Metric) distanceFunc() (func(a, b []float32) float64, error) {
	switch m {
	case Euclidean:
		return euclidean, nil
	case Cosine:
		return cosine, nil
	case Dot:
		return negDot, nil
	}
	return nil, fmt.Errorf("%w: %q (want euclidean, cosine or dot)", ErrUnknownMetric, string(m))
}

// IndexConfig fixes how an Index compares vectors.
type IndexConfig struct {
	Metric Metric
	// Normalize scales stored and query vectors to unit length first.
	Normalize bool
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func negDot(a, b []float32) float64 {
	return -dot(a, b)
}

func cosine(a, b []float32) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot(a, b)/(na*nb)
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// normalized returns a unit-length copy of v. Zero vectors are copied as is.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	n := norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}
