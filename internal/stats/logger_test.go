package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{30, "30s"},
		{90, "1.5m"},
		{7200, "2.0h"},
		{172800, "2.0d"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, formatDuration(c.seconds))
	}
}

func TestCalculateRatesWithNoPriorSnapshotsReturnsNil(t *testing.T) {
	l := NewLogger(New(), time.Minute)
	assert.Nil(t, l.calculateRates(Snapshot{Timestamp: time.Now()}))
}

func TestCalculateRatesDerivesPerMinuteDelta(t *testing.T) {
	l := NewLogger(New(), time.Minute)
	start := time.Now().Add(-2 * time.Minute)

	l.snapshots = append(l.snapshots, Snapshot{
		Timestamp: start,
		Messages:  MessageStats{TotalReceived: 10, TotalProcessed: 8},
	})

	current := Snapshot{
		Timestamp: start.Add(2 * time.Minute),
		Messages:  MessageStats{TotalReceived: 30, TotalProcessed: 20},
	}

	r := l.calculateRates(current)
	if assert.NotNil(t, r) {
		assert.InDelta(t, 10.0, r.messagesPerMinute, 0.001)
		assert.InDelta(t, 6.0, r.processingPerMinute, 0.001)
	}
}

func TestLogOnceTrimsSnapshotWindow(t *testing.T) {
	l := NewLogger(New(), time.Minute)
	for i := 0; i < maxRateSnapshots+5; i++ {
		l.logOnce()
	}
	assert.LessOrEqual(t, len(l.snapshots), maxRateSnapshots)
}

func TestRateStringReportsNAWithNoSamples(t *testing.T) {
	assert.Equal(t, "N/A", rateString(0, 0))
	assert.Equal(t, "50.0%", rateString(2, 50))
}
