// Package product defines the wire-agnostic record shape that every sink
// consumes, independent of how it was parsed off the XMPP stream.
package product

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// Product is a parsed NWS text product, immutable once constructed.
type Product struct {
	ProductID string    `json:"product_id"`
	Source    string    `json:"source"`
	AFOS      string    `json:"afos"`
	WMOHeader string    `json:"wmo_header"`
	IssueTime time.Time `json:"issue_time"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`

	// WMODataType, AWIPSProductName and AWIPSProductCategory are informational
	// conveniences derived from the WMO/AFOS tables; they carry no invariant
	// and are elided from the canonical encoding when empty.
	WMODataType         string `json:"wmo_data_type,omitempty"`
	AWIPSProductName    string `json:"awips_product_name,omitempty"`
	AWIPSProductCategory string `json:"awips_product_category,omitempty"`

	// CAPAlert holds a parsed Common Alerting Protocol payload when the
	// product body embeds one; nil for the overwhelming majority of products.
	CAPAlert interface{} `json:"cap_alert,omitempty"`

	// CAPHeadline, CAPVTEC, CAPUGCCodes and CAPSAMECodes are pulled out of
	// CAPAlert's first info block (codes from every area in it) for sinks that want the geographic targeting
	// without walking the CAP structure themselves. Empty when CAPAlert is nil.
	CAPHeadline  string   `json:"cap_headline,omitempty"`
	CAPVTEC      string   `json:"cap_vtec,omitempty"`
	CAPUGCCodes  []string `json:"cap_ugc_codes,omitempty"`
	CAPSAMECodes []string `json:"cap_same_codes,omitempty"`
}

// Channel returns the first three characters of the AFOS PIL, the channel
// key used for MQTT topic routing.
func (p *Product) Channel() string {
	if len(p.AFOS) < 3 {
		return p.AFOS
	}
	return p.AFOS[:3]
}

// CanonicalJSON returns a deterministic byte-identical encoding for equal
// products: keys sorted, UTF-8 throughout. Fields tagged omitempty are
// elided when empty; product_id, source, afos, wmo_header, issue_time and
// body are always present, even when they hold their zero value.
func (p *Product) CanonicalJSON() ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	// json.Marshal on a struct already emits fields in a fixed (declaration)
	// order, not sorted key order; round-trip through a map to get
	// byte-identical output for equal products regardless of field order.
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	keys := make([]string, 0, len(asMap))
	for k := range asMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(asMap[k])
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}
