package sinks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildTopicGrammar(t *testing.T) {
	got := buildTopic("nwws", "KARX", "RR8", "KARX-RR8ARX-20240525022000")
	require.Equal(t, "nwws/KARX/RR8/KARX-RR8ARX-20240525022000", got)
}
