package main

import (
	"strconv"
	"strings"

	"github.com/chrissnell/wxrelay/pkg/aprs"
)

// session is the protocol state of one emulated APRS-IS client.
type session struct {
	server   string
	lines    aprs.LineBuffer
	callsign string
	loggedIn bool
	verified bool
	filter   string
}

func newSession(server string) *session {
	return &session{server: server}
}

// feed consumes bytes from the client and returns the replies to send back
// and the packets to pass on to the other clients.
func (s *session) feed(chunk []byte) (replies, forward []string) {
	for _, line := range s.lines.Feed(chunk) {
		reply, fwd := s.handleLine(line)
		if reply != "" {
			replies = append(replies, reply)
		}
		if fwd != "" {
			forward = append(forward, fwd)
		}
	}
	return replies, forward
}

func (s *session) handleLine(line string) (reply, forward string) {
	switch {
	case strings.HasPrefix(line, "user "):
		return s.login(line), ""
	case strings.HasPrefix(line, "#filter "):
		s.filter = strings.TrimSpace(strings.TrimPrefix(line, "#filter "))
		return "# filter " + s.filter + " active", ""
	case aprs.IsServerComment(line):
		return "", ""
	}

	// unverified clients may only listen
	if !s.loggedIn || !s.verified {
		return "", ""
	}
	packets := aprs.ParseChunk([]byte(line))
	if len(packets) != 1 {
		return "", ""
	}
	p := packets[0]
	return "", p.Source + ">" + p.Path + ",qAC," + s.server + ":" + p.Payload
}

func (s *session) login(line string) string {
	fields := strings.Fields(line)
	var pass string
	for i := 0; i+1 < len(fields); i++ {
		switch fields[i] {
		case "user":
			s.callsign = strings.ToUpper(fields[i+1])
		case "pass":
			pass = fields[i+1]
		case "filter":
			s.filter = strings.Join(fields[i+1:], " ")
		}
	}
	if s.callsign == "" {
		return "# logresp unknown unverified, server " + s.server
	}

	s.loggedIn = true
	code, err := strconv.Atoi(pass)
	s.verified = err == nil && code == aprs.CalculatePasscode(s.callsign)

	status := "unverified"
	if s.verified {
		status = "verified"
	}
	return "# logresp " + s.callsign + " " + status + ", server " + s.server
}
