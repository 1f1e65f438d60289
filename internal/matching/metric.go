package matching

import (
	"fmt"
	"math"
	"strings"
)

// Metric is the vector distance used for the similarity term.
// It must agree with the operator the datastore index is built for.
type Metric string

const (
	// MetricL2 is Euclidean distance (pgvector <->). Default.
	MetricL2 Metric = "l2"
	// MetricCosine is cosine distance, 1 - cos(a, b) (pgvector <=>).
	MetricCosine Metric = "cosine"
)

// ParseMetric maps a config value to a Metric. Empty selects MetricL2.
func ParseMetric(raw string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MetricL2, "euclid", "euclidean":
		return MetricL2, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown vector metric %q", raw)
	}
}

// SQLOperator returns the pgvector distance operator for m.
func (m Metric) SQLOperator() string {
	if m == MetricCosine {
		return "<=>"
	}
	return "<->"
}

// Distance computes the distance between two equal-length embeddings.
func (m Metric) Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding length mismatch: %d != %d", len(a), len(b))
	}
	if m == MetricCosine {
		return cosineDistance(a, b), nil
	}
	return l2Distance(a, b), nil
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	// zero vectors have no direction
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
