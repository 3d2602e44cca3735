package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName   xml.Name   `xml:"Gather"`
	NumDigits int        `xml:"numDigits,attr"`
	Action    string     `xml:"action,attr,omitempty"`
	Method    string     `xml:"method,attr,omitempty"`
	Timeout   int        `xml:"timeout,attr,omitempty"`
	Play      *twimlPlay `xml:"Play,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName xml.Name  `xml:"Dial"`
	Number  string    `xml:"Number,omitempty"`
	Sip     *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

// RenderReplyTwiML maps a Reply to TwiML.
//
// Shapes produced:
// - gather:   <Gather numDigits=1 action=...><Play>url</Play></Gather><Hangup/>
// - transfer: [<Play>url</Play>]<Dial>...</Dial>
// - hangup:   [<Play>url</Play>]<Hangup/>
func RenderReplyTwiML(rep Reply) (string, error) {
	var r twimlResponse

	switch {
	case rep.Gather:
		if strings.TrimSpace(rep.PlayURL) == "" {
			return "", errors.New("telephony: play_url required for gather reply")
		}
		r.Verbs = append(r.Verbs, twimlGather{
			NumDigits: 1,
			Action:    rep.GatherActionURL,
			Method:    "POST",
			Timeout:   8,
			Play:      &twimlPlay{URL: rep.PlayURL},
		})
		// No digit pressed within the gather window: end the call.
		r.Verbs = append(r.Verbs, twimlHangup{})

	case rep.TransferTo != "":
		if rep.PlayURL != "" {
			r.Verbs = append(r.Verbs, twimlPlay{URL: rep.PlayURL})
		}
		d := twimlDial{}
		// Prefer SIP if it looks like sip:... otherwise treat as a PSTN number.
		if strings.HasPrefix(strings.ToLower(rep.TransferTo), "sip:") {
			d.Sip = &twimlSip{URI: rep.TransferTo}
		} else {
			d.Number = rep.TransferTo
		}
		r.Verbs = append(r.Verbs, d)

	case rep.Hangup:
		if rep.PlayURL != "" {
			r.Verbs = append(r.Verbs, twimlPlay{URL: rep.PlayURL})
		}
		r.Verbs = append(r.Verbs, twimlHangup{})

	default:
		return "", errors.New("telephony: empty reply")
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
