package vm

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	pre, err := Compile(`"hello " "world" + print`, CompileOptions{Verify: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Serialize(&buf, pre))

	bin, err := Deserialize(&buf)
	require.NoError(t, err)
	assert.Equal(t, pre.Constants, bin.Constants)

	wantCode, err := AssemblePreBinary(pre)
	require.NoError(t, err)
	assert.Equal(t, wantCode, bin.Code)
}

func TestSerializeConstantCountIsLittleEndianU64(t *testing.T) {
	pre := &PreBinary{Constants: []string{"a", "bb"}}
	var buf bytes.Buffer
	require.NoError(t, Serialize(&buf, pre))
	b := buf.Bytes()
	require.GreaterOrEqual(t, len(b), 8)
	assert.Equal(t, []byte{2, 0, 0, 0, 0, 0, 0, 0}, b[:8])
}

func TestLEB128RoundTrip(t *testing.T) {
	seed := rand.New(rand.NewSource(1))
	values := []uint64{0, 1, 127, 128, 255, 256, 1 << 20, 1<<63 - 1, ^uint64(0)}
	for i := 0; i < 50; i++ {
		values = append(values, seed.Uint64())
	}
	for _, v := range values {
		var buf bytes.Buffer
		require.NoError(t, leb128EncodeUint(&buf, v))
		got, err := leb128DecodeUint(&buf)
		require.NoError(t, err)
		assert.Equal(t, v, got, "round trip for %d", v)
	}
}

func TestDebugSymbolsRoundTrip(t *testing.T) {
	ds := &DebugSymbols{Labels: map[string]int64{"top": 10, "end": 42}}
	var buf bytes.Buffer
	require.NoError(t, EncodeDebugSymbols(&buf, ds))

	got, err := DecodeDebugSymbols(&buf)
	require.NoError(t, err)
	assert.Equal(t, ds.Labels, got.Labels)
}
