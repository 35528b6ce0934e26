// Package moremath holds floating point helpers whose rounding rules the
// standard library does not expose directly (NaN propagation through
// min/max, IEEE round-to-even nearest).
package moremath

import "math"

// math.Min doen't comply with the Wasm spec, so we borrow from the original
// with a change that either one of NaN results in NaN even if another is -Inf.
// https://github.com/golang/go/blob/1d20a362d0ca4898d77865e314ef6f73582daef0/src/math/dim.go#L74-L91
func WasmCompatMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// math.Max doen't comply with the Wasm spec, so we borrow from the original
// with a change that either one of NaN results in NaN even if another is Inf.
// https://github.com/golang/go/blob/1d20a362d0ca4898d77865e314ef6f73582daef0/src/math/dim.go#L42-L59
func WasmCompatMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)

	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// WasmCompatNearestF32 rounds f to the nearest integer, ties to even, as
// Wasm's f32.nearest does (math.Round rounds ties away from zero).
func WasmCompatNearestF32(f float32) float32 {
	return float32(math.RoundToEven(float64(f)))
}

// WasmCompatNearestF64 rounds f to the nearest integer, ties to even, as
// Wasm's f64.nearest does.
func WasmCompatNearestF64(f float64) float64 {
	return math.RoundToEven(f)
}
