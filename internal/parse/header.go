// Package parse turns raw chat-export blocks into structured activity items.
package parse

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var headerRe = regexp.MustCompile(`^\[(?P<time>\d{1,2}:\d{2}),\s*(?P<date>\d{1,2}/\d{1,2}/\d{2,4})\][\s\p{Zs}]*(?P<sender>[^:]+):[\s\p{Zs}]*(?P<message>.*)$`)

// bidiMarks are invisible direction marks some exporters prepend to lines.
var bidiMarks = strings.NewReplacer("\u200e", "", "\u200f", "")

// Header is a matched message header line.
type Header struct {
	Time    string
	Date    string
	Sender  string
	Message string
}

// MatchHeader matches one line of the form "[H:MM, D/M/YY] sender: message".
// ok is false when the line is not a header. NFKC folding applies to the
// bracketed stamp and the sender only; the message is returned as written.
func MatchHeader(line string) (Header, bool) {
	line = bidiMarks.Replace(strings.TrimRight(line, "\r"))
	if i := strings.IndexByte(line, ']'); i >= 0 {
		line = norm.NFKC.String(line[:i+1]) + line[i+1:]
	}
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return Header{}, false
	}
	return Header{
		Time:    m[headerRe.SubexpIndex("time")],
		Date:    m[headerRe.SubexpIndex("date")],
		Sender:  norm.NFKC.String(strings.TrimSpace(m[headerRe.SubexpIndex("sender")])),
		Message: strings.TrimSpace(m[headerRe.SubexpIndex("message")]),
	}, true
}
