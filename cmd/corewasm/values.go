package main

import (
	"fmt"
	"strconv"

	"github.com/corewasm/corewasm/api"
)

// parseArg encodes a command-line string as the uint64 payload Runtime
// expects for a parameter typed t.
func parseArg(s string, t api.ValueType) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("parsing i32 argument %q: %w", s, err)
		}
		return api.EncodeI32(int32(v)), nil
	case api.ValueTypeI64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing i64 argument %q: %w", s, err)
		}
		return api.EncodeI64(v), nil
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, fmt.Errorf("parsing f32 argument %q: %w", s, err)
		}
		return api.EncodeF32(float32(v)), nil
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing f64 argument %q: %w", s, err)
		}
		return api.EncodeF64(v), nil
	default:
		return 0, fmt.Errorf("unsupported argument type %s", api.ValueTypeName(t))
	}
}

// formatResult renders one result value typed t for human-readable output.
func formatResult(v uint64, t api.ValueType) string {
	switch t {
	case api.ValueTypeI32:
		return strconv.FormatInt(int64(int32(uint32(v))), 10)
	case api.ValueTypeI64:
		return strconv.FormatInt(int64(v), 10)
	case api.ValueTypeF32:
		return strconv.FormatFloat(float64(api.DecodeF32(v)), 'g', -1, 32)
	case api.ValueTypeF64:
		return strconv.FormatFloat(api.DecodeF64(v), 'g', -1, 64)
	default:
		return fmt.Sprintf("%#x", v)
	}
}
