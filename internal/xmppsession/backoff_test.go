package xmppsession

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelaySequence(t *testing.T) {
	want := []time.Duration{
		30 * time.Second,
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		300 * time.Second,
		300 * time.Second,
		300 * time.Second,
		300 * time.Second,
		300 * time.Second,
		300 * time.Second,
	}

	for i, w := range want {
		got, ok := backoffDelay(i + 1)
		require.True(t, ok, "attempt %d should be allowed", i+1)
		require.Equal(t, w, got, "attempt %d delay", i+1)
	}

	_, ok := backoffDelay(len(want) + 1)
	require.False(t, ok, "attempt beyond the budget should abort")
}

func TestBuildNoaaportFraming(t *testing.T) {
	unixtext := "SRUS83 KARX 250220\n\nRR8ARX\n\nbody text"
	got := buildNoaaport(unixtext)

	require.Equal(t, byte(0x01), got[0])
	require.Equal(t, byte(0x03), got[len(got)-1])
	require.Contains(t, string(got), "\r\r\n")
}

func TestBuildNoaaportAddsTrailingTerminator(t *testing.T) {
	got := buildNoaaport("no blank lines here")
	s := string(got)
	require.True(t, len(s) > 2)
	require.Equal(t, "\x03", s[len(s)-1:])
	require.Contains(t, s, "\r\r\n\x03")
}

func TestBuildNoaaportAddsFullTerminatorWhenBodyEndsInBareNewline(t *testing.T) {
	got := buildNoaaport("body text ending in a single newline\n")
	s := string(got)
	require.True(t, strings.HasSuffix(s, "\r\r\n\x03"), "expected full CRCRLF terminator before ETX, got %q", s)
}
