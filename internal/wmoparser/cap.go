package wmoparser

import (
	"encoding/xml"
	"strings"
)

// CAP (Common Alerting Protocol) v1.2 structures.
// Based on https://docs.oasis-open.org/emergency/cap/v1.2/CAP-v1.2-os.pdf
// and the NWS IPAWS profile. A small minority of NWWS-OI products embed a
// CAP alert block alongside the legacy text; when present it is attached
// to the Product as enrichment, never required by any invariant.

// Alert is the root element of a CAP message.
type Alert struct {
	XMLName     xml.Name `xml:"alert"`
	Xmlns       string   `xml:"xmlns,attr"`
	Identifier  string   `xml:"identifier"`
	Sender      string   `xml:"sender"`
	Sent        string   `xml:"sent"`
	Status      string   `xml:"status"`
	MsgType     string   `xml:"msgType"`
	Source      string   `xml:"source"`
	Scope       string   `xml:"scope"`
	Restriction string   `xml:"restriction"`
	Addresses   string   `xml:"addresses"`
	Code        []string `xml:"code"`
	Note        string   `xml:"note"`
	References  string   `xml:"references"`
	Incidents   string   `xml:"incidents"`
	Info        []Info   `xml:"info"`
}

// Info contains the details of the alert.
type Info struct {
	Language     string      `xml:"language"`
	Category     []string    `xml:"category"`
	Event        string      `xml:"event"`
	ResponseType []string    `xml:"responseType"`
	Urgency      string      `xml:"urgency"`
	Severity     string      `xml:"severity"`
	Certainty    string      `xml:"certainty"`
	Audience     string      `xml:"audience"`
	EventCode    []ValuePair `xml:"eventCode"`
	Effective    string      `xml:"effective"`
	Onset        string      `xml:"onset"`
	Expires      string      `xml:"expires"`
	SenderName   string      `xml:"senderName"`
	Headline     string      `xml:"headline"`
	Description  string      `xml:"description"`
	Instruction  string      `xml:"instruction"`
	Web          string      `xml:"web"`
	Contact      string      `xml:"contact"`
	Parameter    []ValuePair `xml:"parameter"`
	Resource     []Resource  `xml:"resource"`
	Area         []Area      `xml:"area"`
}

// Area describes a geographic area.
type Area struct {
	AreaDesc string      `xml:"areaDesc"`
	Polygon  []string    `xml:"polygon"`
	Circle   []string    `xml:"circle"`
	Geocode  []ValuePair `xml:"geocode"`
	Altitude string      `xml:"altitude"`
	Ceiling  string      `xml:"ceiling"`
}

// ValuePair represents a name-value pair used in parameters and geocodes.
type ValuePair struct {
	ValueName string `xml:"valueName"`
	Value     string `xml:"value"`
}

// Resource represents a supplementary digital resource (image, audio, etc.).
type Resource struct {
	ResourceDesc string `xml:"resourceDesc"`
	MimeType     string `xml:"mimeType"`
	Size         int    `xml:"size"`
	URI          string `xml:"uri"`
	DerefURI     string `xml:"derefUri"`
	Digest       string `xml:"digest"`
}

// ParseCAP attempts to parse a CAP message embedded in product body text.
// It returns (nil, nil) when the text plainly isn't CAP, so callers can
// treat CAP extraction as a best-effort enrichment rather than an error.
func ParseCAP(text string) (*Alert, error) {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "<alert") {
		return nil, nil
	}

	start := strings.Index(text, "<alert")
	var alert Alert
	if err := xml.Unmarshal([]byte(text[start:]), &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// GetPrimaryInfo returns the first (usually only) Info block.
func (a *Alert) GetPrimaryInfo() *Info {
	if len(a.Info) > 0 {
		return &a.Info[0]
	}
	return nil
}

// GetParameter returns the value of a parameter by name.
func (i *Info) GetParameter(name string) string {
	for _, param := range i.Parameter {
		if param.ValueName == name {
			return param.Value
		}
	}
	return ""
}

// GetGeocode returns the value of a geocode by name (e.g., "SAME" or "UGC").
func (a *Area) GetGeocode(name string) string {
	for _, code := range a.Geocode {
		if code.ValueName == name {
			return code.Value
		}
	}
	return ""
}

// GetAllUGCCodes returns all UGC (Universal Geographic Code) values.
func (a *Area) GetAllUGCCodes() []string {
	for _, code := range a.Geocode {
		if code.ValueName == "UGC" {
			return strings.Fields(code.Value)
		}
	}
	return nil
}

// GetAllSAMECodes returns all SAME codes from the area.
func (a *Area) GetAllSAMECodes() []string {
	for _, code := range a.Geocode {
		if code.ValueName == "SAME" {
			return strings.Fields(code.Value)
		}
	}
	return nil
}
