package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionLogin(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		reply    string
		verified bool
	}{
		{"verified", "user N0CALL pass 13023 vers wxrelay 1.0\r\n", "# logresp N0CALL verified, server EMU", true},
		{"ssid ignored for passcode", "user n0call-13 pass 13023 vers wxrelay 1.0\r\n", "# logresp N0CALL-13 verified, server EMU", true},
		{"wrong passcode", "user N0CALL pass 1 vers wxrelay 1.0\r\n", "# logresp N0CALL unverified, server EMU", false},
		{"receive only", "user N0CALL pass -1 vers wxrelay 1.0 filter r/60/24/50\r\n", "# logresp N0CALL unverified, server EMU", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession("EMU")
			replies, forward := s.feed([]byte(tt.line))
			assert.Equal(t, []string{tt.reply}, replies)
			assert.Empty(t, forward)
			assert.True(t, s.loggedIn)
			assert.Equal(t, tt.verified, s.verified)
		})
	}
}

func TestSessionFilterInLogin(t *testing.T) {
	s := newSession("EMU")
	s.feed([]byte("user N0CALL pass -1 vers test 1 filter r/60/24/50 b/OH2*\r\n"))
	assert.Equal(t, "r/60/24/50 b/OH2*", s.filter)
}

func TestSessionForwardsVerifiedPackets(t *testing.T) {
	s := newSession("EMU")

	// split mid-line to exercise buffering
	replies, forward := s.feed([]byte("user N0CALL pass 13023 vers test\r\n#filter r/60/24/50\r\nN0CALL>APHMEY,TCPIP*:@25"))
	assert.Equal(t, []string{"# logresp N0CALL verified, server EMU", "# filter r/60/24/50 active"}, replies)
	assert.Empty(t, forward)

	replies, forward = s.feed([]byte("1920z6011.82N/02435.40E_.../...g...t068\r\n# comment\r\n"))
	assert.Empty(t, replies)
	assert.Equal(t, []string{"N0CALL>APHMEY,TCPIP*,qAC,EMU:@251920z6011.82N/02435.40E_.../...g...t068"}, forward)
}

func TestSessionDropsUnverifiedPackets(t *testing.T) {
	s := newSession("EMU")

	_, forward := s.feed([]byte("N0CALL>APHMEY,TCPIP*:>before login\r\n"))
	assert.Empty(t, forward)

	s.feed([]byte("user N0CALL pass 99 vers test\r\n"))
	_, forward = s.feed([]byte("N0CALL>APHMEY,TCPIP*:>unverified\r\nnot a packet\r\n"))
	assert.Empty(t, forward)
}
