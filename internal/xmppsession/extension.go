package xmppsession

import (
	"encoding/xml"

	"gosrc.io/xmpp/stanza"
)

// nwwsExtension models the <x xmlns='nwws-oi' .../> element NWWS-OI attaches
// to every groupchat message carrying a weather product. See
// https://www.weather.gov/nwws/configuration for the wire format.
type nwwsExtension struct {
	stanza.MsgExtension
	XMLName xml.Name `xml:"nwws-oi x"`
	Text    string   `xml:",chardata"`
	Cccc    string   `xml:"cccc,attr"`
	Ttaaii  string   `xml:"ttaaii,attr"`
	Issue   string   `xml:"issue,attr"`
	AwipsID string   `xml:"awipsid,attr"`
	ID      string   `xml:"id,attr"`
}
