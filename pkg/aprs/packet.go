package aprs

import (
	"bytes"
	"regexp"
	"strings"
)

// Packet is a single station packet received from APRS-IS.
type Packet struct {
	Source  string `json:"source"`
	Path    string `json:"path"`
	Payload string `json:"payload"`
}

// maxLineLength bounds a partial line held by LineBuffer. APRS-IS lines are
// limited to 512 bytes; anything far beyond that is not a packet.
const maxLineLength = 4096

// callsign of 3-6 alphanumerics with an optional 1-2 character SSID, then the
// shortest path up to the first colon, then the payload.
var packetRegex = regexp.MustCompile(`^([A-Za-z0-9]{3,6}(?:-[A-Za-z0-9]{1,2})?)>(.*?):(.*)$`)

// ParseChunk parses every complete line in raw into packets. Server comments
// and lines that do not look like station packets are dropped silently.
// Callers reading from a stream must buffer partial lines themselves (see
// LineBuffer); each line in raw is treated as complete.
func ParseChunk(raw []byte) []Packet {
	var packets []Packet

	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	for _, line := range strings.Split(string(normalized), "\n") {
		line = strings.TrimRight(line, "\r")
		if p, ok := parseLine(line); ok {
			packets = append(packets, p)
		}
	}

	return packets
}

func parseLine(line string) (Packet, bool) {
	if line == "" || IsServerComment(line) {
		return Packet{}, false
	}

	m := packetRegex.FindStringSubmatch(line)
	if m == nil {
		return Packet{}, false
	}

	return Packet{Source: m[1], Path: m[2], Payload: m[3]}, true
}

// IsServerComment reports whether line is an APRS-IS server comment.
func IsServerComment(line string) bool {
	return strings.HasPrefix(line, "#")
}

// IsLoginResponse reports whether line is the server's reply to a login.
func IsLoginResponse(line string) bool {
	return strings.HasPrefix(line, "# logresp")
}

// LoginVerified reports whether a logresp line accepted our passcode.
func LoginVerified(line string) bool {
	return IsLoginResponse(line) && strings.Contains(line, " verified") && !strings.Contains(line, "unverified")
}

// LineBuffer reassembles lines from a byte stream that may split them at
// arbitrary points.
type LineBuffer struct {
	partial []byte
}

// Feed appends chunk to the buffer and returns every line completed by it,
// without terminators. The trailing partial line is kept for the next call.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.partial = append(b.partial, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(b.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(b.partial[:i]), "\r")
		b.partial = b.partial[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}

	if len(b.partial) > maxLineLength {
		b.partial = nil
	}
	if len(b.partial) == 0 {
		// release the backing array once drained
		b.partial = nil
	}

	return lines
}

// Flush returns and clears any buffered partial line.
func (b *LineBuffer) Flush() string {
	line := strings.TrimRight(string(b.partial), "\r")
	b.partial = nil
	return line
}
