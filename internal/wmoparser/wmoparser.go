package wmoparser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nwws-bridge/nwws-bridge/internal/product"
)

// Parser implements product.Parser over the classic NOAAPort-framed WMO
// abbreviated-heading / AFOS PIL text-product convention: a leading
// sequence-number line, a "TTAAII CCCC DDHHMM [BBB]" heading line, an AFOS
// PIL line, then free-form body text.
type Parser struct {
	// Now returns the reference clock used to reconstruct the issue time's
	// month/year, which the DDHHMM heading group never carries. Defaults to
	// time.Now when nil; tests override it for deterministic output.
	Now func() time.Time
}

func (p *Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// Parse implements product.Parser.
func (p *Parser) Parse(noaaport []byte) (*product.Product, error) {
	text := strings.TrimPrefix(string(noaaport), "\x01")
	text = strings.TrimSuffix(text, "\x03")
	text = strings.ReplaceAll(text, "\r\r\n", "\n")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	idx := 0
	nextLine := func() (string, bool) {
		for idx < len(lines) {
			line := strings.TrimSpace(lines[idx])
			idx++
			if line != "" {
				return line, true
			}
		}
		return "", false
	}

	// Optional leading sequence-number line (all digits).
	headingLine, ok := nextLine()
	if !ok {
		return nil, &product.ParseError{Kind: product.ErrorKindMalformedHeader, Err: fmt.Errorf("empty product body")}
	}
	if isAllDigits(headingLine) {
		headingLine, ok = nextLine()
		if !ok {
			return nil, &product.ParseError{Kind: product.ErrorKindMalformedHeader, Err: fmt.Errorf("missing WMO heading")}
		}
	}

	fields := strings.Fields(headingLine)
	if len(fields) < 2 {
		return nil, &product.ParseError{Kind: product.ErrorKindMalformedHeader, Err: fmt.Errorf("unparseable WMO heading %q", headingLine)}
	}
	ttaaii := fields[0]
	cccc := fields[1]
	var ddhhmm, bbb string
	if len(fields) >= 3 {
		ddhhmm = fields[2]
	}
	if len(fields) >= 4 {
		bbb = fields[3]
	}
	_ = bbb

	if len(ttaaii) != 6 {
		return nil, &product.ParseError{Kind: product.ErrorKindMalformedHeader, Err: fmt.Errorf("invalid TTAAII length: %q", ttaaii)}
	}
	if cccc == "" {
		return nil, &product.ParseError{Kind: product.ErrorKindMissingProductID, Err: fmt.Errorf("missing issuing office code")}
	}

	afosLine, _ := nextLine()
	afos := strings.ToUpper(strings.TrimSpace(afosLine))
	if len(afos) < 3 {
		afos = "unknown"
	}

	issueTime := p.reconstructIssueTime(ddhhmm)

	body := strings.Join(lines[idx:], "\n")
	body = strings.TrimSpace(body)

	productID := fmt.Sprintf("%s-%s-%s", cccc, afos, issueTime.Format("20060102150405"))
	if cccc == "" || afos == "" {
		return nil, &product.ParseError{Kind: product.ErrorKindMissingProductID, Err: fmt.Errorf("cannot build product id from %q/%q", cccc, afos)}
	}

	prod := &product.Product{
		ProductID: productID,
		Source:    cccc,
		AFOS:      afos,
		WMOHeader: ttaaii,
		IssueTime: issueTime,
		Body:      body,
	}

	if wmoID, err := ParseTtaaii(ttaaii); err == nil {
		prod.WMODataType = GetDataType(wmoID.T1)
	}
	if awipsID, err := ParseAwipsID(afos); err == nil {
		prod.AWIPSProductName = awipsID.GetProductName()
		prod.AWIPSProductCategory = awipsID.GetProductCategory()
	}

	if alert, err := ParseCAP(body); err == nil && alert != nil {
		prod.CAPAlert = alert
		enrichFromCAP(prod, alert)
	}

	return prod, nil
}

// enrichFromCAP lifts the headline, VTEC string and geographic targeting
// codes out of an alert's primary info block (codes from all of its areas)
// so sinks that only care about routing
// don't need to walk the CAP structure themselves.
func enrichFromCAP(prod *product.Product, alert *Alert) {
	info := alert.GetPrimaryInfo()
	if info == nil {
		return
	}
	prod.CAPHeadline = info.Headline
	prod.CAPVTEC = info.GetParameter("VTEC")

	for _, area := range info.Area {
		if area.GetGeocode("UGC") != "" {
			prod.CAPUGCCodes = append(prod.CAPUGCCodes, area.GetAllUGCCodes()...)
		}
		if area.GetGeocode("SAME") != "" {
			prod.CAPSAMECodes = append(prod.CAPSAMECodes, area.GetAllSAMECodes()...)
		}
	}
}

// reconstructIssueTime rebuilds a UTC timestamp from a WMO DDHHMM group
// (day-of-month, hour, minute), anchoring month/year on the reference
// clock and rolling back a month when the reconstructed time would
// otherwise be more than 24 hours after now (handles the
// turn-of-month case where a product issued late on the last day of the
// month is processed after midnight).
func (p *Parser) reconstructIssueTime(ddhhmm string) time.Time {
	now := p.now()
	if len(ddhhmm) != 6 {
		return now
	}

	day, err1 := strconv.Atoi(ddhhmm[0:2])
	hour, err2 := strconv.Atoi(ddhhmm[2:4])
	minute, err3 := strconv.Atoi(ddhhmm[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return now
	}

	candidate := time.Date(now.Year(), now.Month(), day, hour, minute, 0, 0, time.UTC)
	if candidate.After(now.Add(24 * time.Hour)) {
		candidate = candidate.AddDate(0, -1, 0)
	}
	return candidate
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// WMOProductID is the decomposed T1T2A1A2ii abbreviated heading.
type WMOProductID struct {
	T1 string
	T2 string
	A1 string
	A2 string
	II string
}

// ParseTtaaii decomposes a 6-character TTAAII string.
func ParseTtaaii(ttaaii string) (*WMOProductID, error) {
	if len(ttaaii) != 6 {
		return nil, fmt.Errorf("invalid Ttaaii length: expected 6, got %d", len(ttaaii))
	}
	return &WMOProductID{
		T1: string(ttaaii[0]),
		T2: string(ttaaii[1]),
		A1: string(ttaaii[2]),
		A2: string(ttaaii[3]),
		II: ttaaii[4:6],
	}, nil
}

// AWIPSProductID represents the parsed AWIPS identifier (NNNxxx).
type AWIPSProductID struct {
	NNN string
	XXX string
}

// ParseAwipsID splits an AFOS PIL into its 3-character product category and
// the 1-3 character geographic designator.
func ParseAwipsID(awipsID string) (*AWIPSProductID, error) {
	awipsID = strings.TrimSpace(awipsID)
	if len(awipsID) < 3 {
		return nil, fmt.Errorf("invalid AWIPS ID length: expected at least 3, got %d", len(awipsID))
	}
	return &AWIPSProductID{NNN: awipsID[:3], XXX: awipsID[3:]}, nil
}

// GetProductName returns a friendly name for the product, falling back to
// the bare NNN abbreviation when it isn't in CommonProducts.
func (a *AWIPSProductID) GetProductName() string {
	if info, found := GetProductInfo(a.NNN); found {
		return info.Name
	}
	return a.NNN
}

// GetProductCategory returns the product category, or "Unknown".
func (a *AWIPSProductID) GetProductCategory() string {
	if info, found := GetProductInfo(a.NNN); found {
		return info.Category
	}
	return "Unknown"
}
