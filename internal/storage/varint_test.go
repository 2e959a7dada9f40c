package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarint32_RoundTrip(t *testing.T) {
	r := require.New(t)

	for _, v := range []uint32{0, 1, 127, 128, 16383, 16384, 0x0FFFFFFF} {
		buf := bytes.Buffer{}
		r.NoError(WriteVarint32(&buf, v))
		r.Equal(Varint32Size, buf.Len())

		got, err := ReadVarint32(bytes.NewReader(buf.Bytes()))
		r.NoError(err)
		r.Equal(v, got)
	}
}

func TestVarint32_ContinuationBits(t *testing.T) {
	r := require.New(t)

	var buf [4]byte
	r.NoError(PutVarint32(buf[:], 1))
	r.Equal(byte(0x80), buf[0]&0x80)
	r.Equal(byte(0x80), buf[1]&0x80)
	r.Equal(byte(0x80), buf[2]&0x80)
	r.Equal(byte(0), buf[3]&0x80)
}

func TestVarint32_Overflow(t *testing.T) {
	require.New(t).Error(PutVarint32(make([]byte, 4), 0x10000000))
}
