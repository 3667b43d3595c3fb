// Package telephony defines the carrier-facing surface of the call pipeline:
// the media stream protocol spoken over the carrier's WebSocket, the TwiML
// document that routes an answered call into that stream, and the Carrier
// interface for placing calls and polling their status.
//
// The media stream protocol is Twilio's bidirectional Media Streams framing:
// newline-free JSON text frames with an "event" discriminator. Inbound events
// are connected, start, media, stop and close; outbound messages are media
// (base64 mu-law audio) and clear (flush the carrier's playback buffer).
package telephony

import (
	"encoding/json"
	"fmt"
)

// Inbound stream event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventClose     = "close"
)

// StreamEvent is the envelope for every inbound message on a media stream.
// Exactly one of the payload pointers is non-nil depending on Event.
type StreamEvent struct {
	Event string `json:"event"`

	// Start is set when Event == EventStart.
	Start *StartPayload `json:"start,omitempty"`

	// Media is set when Event == EventMedia.
	Media *MediaPayload `json:"media,omitempty"`
}

// StartPayload carries the stream identity and the custom parameters attached
// to the <Stream> TwiML element when the call was placed.
type StartPayload struct {
	// StreamSid uniquely identifies this media stream at the carrier.
	StreamSid string `json:"streamSid"`

	// CallSid identifies the carrier call leg the stream belongs to.
	CallSid string `json:"callSid"`

	// CustomParameters holds the <Parameter> name/value pairs from the TwiML.
	// The dialer passes callerNumber, queueId and attemptCount this way.
	CustomParameters map[string]string `json:"customParameters"`
}

// MediaPayload carries one frame of caller audio.
type MediaPayload struct {
	// Payload is base64-encoded 8 kHz mu-law audio.
	Payload string `json:"payload"`
}

// ParseStreamEvent decodes one inbound text frame. Unknown event names are not
// an error; callers should ignore events they do not handle.
func ParseStreamEvent(data []byte) (*StreamEvent, error) {
	var evt StreamEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("telephony: parse stream event: %w", err)
	}
	if evt.Event == "" {
		return nil, fmt.Errorf("telephony: stream event missing event field")
	}
	return &evt, nil
}

// mediaMessage is the outbound frame that plays audio to the caller.
type mediaMessage struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

// clearMessage tells the carrier to discard any audio it has buffered but not
// yet played. Sent on barge-in.
type clearMessage struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// MarshalMediaMessage builds the outbound media frame for one base64 mu-law
// audio payload.
func MarshalMediaMessage(streamSid, payload string) ([]byte, error) {
	return json.Marshal(mediaMessage{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     mediaPayload{Payload: payload},
	})
}

// MarshalClearMessage builds the outbound clear frame.
func MarshalClearMessage(streamSid string) ([]byte, error) {
	return json.Marshal(clearMessage{
		Event:     "clear",
		StreamSid: streamSid,
	})
}
