package server

import (
	"fmt"
	"strings"
)

// Response status codes of the tcp_table lookup protocol.
const (
	StatusOK       = 200
	StatusError    = 400
	StatusNoResult = 500
)

const noResultMessage = "NO RESULT"

// Quote percent-encodes a response payload. Unreserved characters
// (letters, digits, '_', '.', '~', '-') and '/' pass through; everything
// else, including space, ':', '[' and ']', becomes %XX with uppercase
// hex. This matches how relay addresses were encoded by existing
// deployments, so configured values round-trip byte for byte.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
			b.WriteByte(c)
		case c == '_' || c == '.' || c == '~' || c == '-' || c == '/':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// EncodeResponse renders one protocol response line.
func EncodeResponse(status int, message string) string {
	return fmt.Sprintf("%d %s\n", status, Quote(message))
}

// ParseRequest parses one request line into its verb and key. The only
// supported verb is "get" (case-insensitive); anything else is a
// protocol error.
func ParseRequest(line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("empty request line")
	}

	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", fmt.Errorf("malformed request line: %q", line)
	}
	if !strings.EqualFold(fields[0], "get") {
		return "", fmt.Errorf("unknown verb: %q", fields[0])
	}

	return fields[1], nil
}
