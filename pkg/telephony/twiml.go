package telephony

import (
	"encoding/xml"
	"fmt"
)

// twimlResponse is the root <Response> element of a TwiML document.
type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// StreamParameter is one <Parameter> on the <Stream> element. Parameters are
// emitted in slice order and surface again in the start event's
// customParameters map.
type StreamParameter struct {
	Name  string
	Value string
}

// StreamTwiML renders the TwiML document that connects an answered call to
// the media stream WebSocket at wsURL.
func StreamTwiML(wsURL string, params []StreamParameter) (string, error) {
	doc := twimlResponse{
		Connect: twimlConnect{
			Stream: twimlStream{URL: wsURL},
		},
	}
	for _, p := range params {
		doc.Connect.Stream.Parameters = append(doc.Connect.Stream.Parameters, twimlParameter{
			Name:  p.Name,
			Value: p.Value,
		})
	}

	body, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return "", fmt.Errorf("telephony: marshal twiml: %w", err)
	}
	return xml.Header + string(body), nil
}
