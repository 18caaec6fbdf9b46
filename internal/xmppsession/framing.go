package xmppsession

import "strings"

// buildNoaaport reconstructs the NOAAPort-framed byte stream NWWS-OI groupchat
// messages imply but don't carry literally: SOH, the unixtext with blank
// lines rewritten to the classic \r\r\n line ending, a trailing \r\r\n if
// missing, and ETX.
func buildNoaaport(unixtext string) []byte {
	body := strings.ReplaceAll(unixtext, "\n\n", "\r\r\n")
	out := "\x01" + body
	if !strings.HasSuffix(out, "\r\r\n") {
		out += "\r\r\n"
	}
	out += "\x03"
	return []byte(out)
}
