package extract

import (
	"bytes"
	"regexp"
	"strings"

	"firestige.xyz/trafficguard/internal/core"
)

// requestLine matches the start of an HTTP/1.x request for the methods the engine tracks.
var requestLine = regexp.MustCompile(`^(GET|POST|PUT|DELETE) (.*?) HTTP`)

// maxHeaderLines bounds the best-effort header scan.
const maxHeaderLines = 64

// parseHTTPRequest recognises a request line at the start of payload.
// It never fails loudly: anything unrecognised yields (nil, false).
func parseHTTPRequest(payload []byte) (*core.HTTPInfo, bool) {
	if len(payload) == 0 {
		return nil, false
	}
	lines := strings.Split(strings.ToValidUTF8(string(payload), "�"), "\n")
	m := requestLine.FindStringSubmatch(strings.TrimRight(lines[0], "\r"))
	if m == nil {
		return nil, false
	}

	info := &core.HTTPInfo{
		Method:  m[1],
		Path:    m[2],
		Headers: make(map[string]string),
		Raw:     bytes.Clone(payload),
	}
	for i, line := range lines[1:] {
		if i >= maxHeaderLines {
			break
		}
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		info.Headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return info, true
}
