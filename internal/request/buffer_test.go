package request

import (
	"math/rand"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBufferToString_MatchesSinglePass(t *testing.T) {
	buf := make([]byte, 20000)
	rng := rand.New(rand.NewSource(42))
	rng.Read(buf)

	got := BufferToString(buf)
	assert.Equal(t, codeUnits(buf), got)
	assert.Equal(t, len(buf), utf8.RuneCountInString(got))
}

func TestBufferToString_ChunkBoundaries(t *testing.T) {
	for _, n := range []int{0, 1, bufferChunkSize - 1, bufferChunkSize, bufferChunkSize + 1, 3 * bufferChunkSize} {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = byte(i)
		}
		assert.Equal(t, codeUnits(buf), BufferToString(buf), "size %d", n)
	}
}

func TestBufferToString_HighBytes(t *testing.T) {
	assert.Equal(t, "Aÿ\u0080\x00", BufferToString([]byte{0x41, 0xff, 0x80, 0x00}))
}

func TestIsRemote(t *testing.T) {
	testCases := []struct {
		url    string
		remote bool
	}{
		{"", false},
		{"file:///tmp/a.js", false},
		{"data:text/plain,hi", false},
		{"http://localhost:8080/x", false},
		{"http://localhost/x", false},
		{"http://localhost.example.com/x", true},
		{"https://localhost/x", true},
		{"https://example.com/script.js", true},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.remote, IsRemote(tc.url), tc.url)
	}
}
