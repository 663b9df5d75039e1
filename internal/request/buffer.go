package request

import (
	"regexp"
	"strings"
)

// bufferChunkSize is the number of bytes converted per step by BufferToString.
const bufferChunkSize = 8192

// BufferToString maps every byte of buf to the code point with the same value
// (0x00-0xFF) and returns the concatenation. The buffer is walked in
// fixed-size chunks; the result does not depend on the chunking.
func BufferToString(buf []byte) string {
	var sb strings.Builder
	sb.Grow(len(buf))
	for i := 0; i < len(buf); i += bufferChunkSize {
		end := min(i+bufferChunkSize, len(buf))
		sb.WriteString(codeUnits(buf[i:end]))
	}
	return sb.String()
}

func codeUnits(chunk []byte) string {
	runes := make([]rune, len(chunk))
	for i, b := range chunk {
		runes[i] = rune(b)
	}
	return string(runes)
}

var localURL = regexp.MustCompile(`^(file:|data:|http://localhost[:/])`)

// IsRemote reports whether url points at a remote resource. Empty, file:,
// data: and http://localhost URLs are local.
func IsRemote(url string) bool {
	return url != "" && !localURL.MatchString(url)
}
