package wmoparser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, time.May, 25, 3, 0, 0, 0, time.UTC)
}

func TestParse_HappyPath(t *testing.T) {
	p := &Parser{Now: fixedNow}
	noaaport := "\x01111\r\r\n# SRUS83 KARX 250220\r\r\n# RR8ARX\r\r\n" +
		":AUTOMATED GAUGE DATA\r\r\n\x03"
	_ = noaaport

	noaaport2 := "\x01" + "111\r\r\n" + "SRUS83 KARX 250220\r\r\n" + "RR8ARX\r\r\n" +
		"AUTOMATED GAUGE DATA COLLECTED FROM IOWA FLOOD CENTER\r\r\n" + "\x03"

	prod, err := p.Parse([]byte(noaaport2))
	require.NoError(t, err)
	require.Equal(t, "KARX", prod.Source)
	require.Equal(t, "RR8ARX", prod.AFOS)
	require.Equal(t, "SRUS83", prod.WMOHeader)
	require.NotEmpty(t, prod.ProductID)
	require.GreaterOrEqual(t, len(prod.AFOS), 3)
	require.Equal(t, "Hydrologic Data (8-hour)", prod.AWIPSProductName)
}

func TestParse_MissingHeading(t *testing.T) {
	p := &Parser{Now: fixedNow}
	_, err := p.Parse([]byte("\x01garbage\x03"))
	require.Error(t, err)
}

func TestParse_ShortAfosPaddedUnknown(t *testing.T) {
	p := &Parser{Now: fixedNow}
	noaaport := "\x01" + "111\r\r\n" + "SRUS83 KARX 250220\r\r\n" + "R\r\r\n" + "body text\r\r\n" + "\x03"
	prod, err := p.Parse([]byte(noaaport))
	require.NoError(t, err)
	require.Equal(t, "unknown", prod.AFOS)
}

func TestParseTtaaii(t *testing.T) {
	id, err := ParseTtaaii("SRUS83")
	require.NoError(t, err)
	require.Equal(t, "S", id.T1)
	require.Equal(t, "83", id.II)
}

func TestParseAwipsID(t *testing.T) {
	id, err := ParseAwipsID("TOROUN")
	require.NoError(t, err)
	require.Equal(t, "TOR", id.NNN)
	require.Equal(t, "OUN", id.XXX)
	require.Equal(t, "Tornado Warning", id.GetProductName())
	require.Equal(t, "Warning", id.GetProductCategory())
}

func TestParseCAP_NotCAP(t *testing.T) {
	alert, err := ParseCAP("plain text product body")
	require.NoError(t, err)
	require.Nil(t, alert)
}

func TestParse_EnrichesProductFromEmbeddedCAPAlert(t *testing.T) {
	p := &Parser{Now: fixedNow}
	capBody := `<alert xmlns="urn:oasis:names:tc:emergency:cap:1.2">
<identifier>NWS-1</identifier>
<info>
<headline>Tornado Warning issued</headline>
<parameter><valueName>VTEC</valueName><value>/O.NEW.KARX.TO.W.0001.240525T0220Z-240525T0300Z/</value></parameter>
<area>
<areaDesc>Winona, MN</areaDesc>
<geocode><valueName>UGC</valueName><value>MNC169</value></geocode>
<geocode><valueName>SAME</valueName><value>027169</value></geocode>
</area>
</info>
</alert>`
	noaaport := "\x01" + "111\r\r\n" + "WFUS53 KARX 250220\r\r\n" + "TORARX\r\r\n" + capBody + "\r\r\n" + "\x03"

	prod, err := p.Parse([]byte(noaaport))
	require.NoError(t, err)
	require.NotNil(t, prod.CAPAlert)
	require.Equal(t, "Tornado Warning issued", prod.CAPHeadline)
	require.Contains(t, prod.CAPVTEC, "KARX.TO.W")
	require.Equal(t, []string{"MNC169"}, prod.CAPUGCCodes)
	require.Equal(t, []string{"027169"}, prod.CAPSAMECodes)
}
