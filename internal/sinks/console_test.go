package sinks

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nwws-bridge/nwws-bridge/internal/product"
)

func TestConsolePublishWritesCanonicalJSONLine(t *testing.T) {
	var buf bytes.Buffer
	c := &Console{out: &buf}

	p := &product.Product{
		ProductID: "KARX-RR8ARX-20240525022000",
		Source:    "KARX",
		AFOS:      "RR8ARX",
		WMOHeader: "SRUS83",
		IssueTime: time.Date(2024, 5, 25, 2, 20, 0, 0, time.UTC),
		Body:      "AUTOMATED GAUGE DATA",
	}

	require.NoError(t, c.Publish(context.Background(), p))
	require.Contains(t, buf.String(), `"product_id":"KARX-RR8ARX-20240525022000"`)
	require.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}

func TestConsoleAlwaysConnected(t *testing.T) {
	c := NewConsole()
	require.True(t, c.IsConnected())
	require.Equal(t, "console", c.Name())
}
