package leb128

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeInt32(t *testing.T) {
	for _, c := range []struct {
		input    int32
		expected []byte
	}{
		{input: -165675008, expected: []byte{0x80, 0x80, 0x80, 0xb1, 0x7f}},
		{input: -624485, expected: []byte{0x9b, 0xf1, 0x59}},
		{input: -4, expected: []byte{0x7c}},
		{input: -1, expected: []byte{0x7f}},
		{input: 0, expected: []byte{0x00}},
		{input: 1, expected: []byte{0x01}},
		{input: 624485, expected: []byte{0xe5, 0x8e, 0x26}},
		{input: math.MaxInt32, expected: []byte{0xff, 0xff, 0xff, 0xff, 0x7}},
	} {
		require.Equal(t, c.expected, EncodeInt32(c.input))
		decoded, n, err := LoadInt32(c.expected)
		require.NoError(t, err)
		require.Equal(t, c.input, decoded)
		require.Equal(t, uint64(len(c.expected)), n)
	}
}

func TestEncodeDecodeUint32(t *testing.T) {
	for _, c := range []struct {
		input    uint32
		expected []byte
	}{
		{input: 0, expected: []byte{0x00}},
		{input: 624485, expected: []byte{0xe5, 0x8e, 0x26}},
		{input: math.MaxUint32, expected: []byte{0xff, 0xff, 0xff, 0xff, 0xf}},
	} {
		require.Equal(t, c.expected, EncodeUint32(c.input))
		decoded, n, err := LoadUint32(c.expected)
		require.NoError(t, err)
		require.Equal(t, c.input, decoded)
		require.Equal(t, uint64(len(c.expected)), n)
	}
}

func TestLoadUint32_Errors(t *testing.T) {
	for _, b := range [][]byte{
		{0x83, 0x80, 0x80, 0x80, 0x80, 0x00},
		{0x82, 0x80, 0x80, 0x80, 0x70},
		{0x80, 0x80, 0x80, 0x80, 0x80, 0x00},
	} {
		_, _, err := LoadUint32(b)
		require.Error(t, err)
	}
}

func TestEncodeDecodeInt64(t *testing.T) {
	for _, c := range []struct {
		input int64
	}{
		{input: -math.MaxInt32},
		{input: 0},
		{input: 1},
		{input: math.MaxInt64},
		{input: math.MinInt64},
	} {
		enc := EncodeInt64(c.input)
		decoded, n, err := LoadInt64(enc)
		require.NoError(t, err)
		require.Equal(t, c.input, decoded)
		require.Equal(t, uint64(len(enc)), n)
	}
}

func TestDecodeInt33AsInt64(t *testing.T) {
	for _, c := range []struct {
		bytes []byte
		exp   int64
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x7f}, exp: -1},
		{bytes: []byte{0x40}, exp: -64},
	} {
		actual, _, err := DecodeInt33AsInt64(&sliceReader{b: c.bytes})
		require.NoError(t, err)
		require.Equal(t, c.exp, actual)
	}
}
