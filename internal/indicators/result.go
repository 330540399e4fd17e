package indicators

import "math"

// Result holds an indicator computed over a bar window. Values is aligned
// index-for-index with the input window; NaN marks positions where the
// indicator is not yet defined (warm-up). Multi-output indicators populate
// Outputs with named sub-series and leave Value NaN.
type Result struct {
	Value   float64
	Values  []float64
	Outputs map[string][]float64
}

// IsNull reports whether v is the "not yet defined" marker.
func IsNull(v float64) bool {
	return math.IsNaN(v)
}

// Null is the undefined-value marker.
func Null() float64 {
	return math.NaN()
}

// Last returns the latest scalar for a named output handle. For simple
// indicators any handle (including "result") resolves to Value; for
// multi-output indicators the named sub-series' last element is returned.
func (r Result) Last(handle string) float64 {
	if series, ok := r.Outputs[handle]; ok {
		if len(series) == 0 {
			return Null()
		}
		return series[len(series)-1]
	}
	return r.Value
}

// empty builds an all-null result of length n.
func empty(n int) Result {
	return Result{Value: Null(), Values: nulls(n)}
}

func nulls(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = Null()
	}
	return s
}

func last(s []float64) float64 {
	if len(s) == 0 {
		return Null()
	}
	return s[len(s)-1]
}
