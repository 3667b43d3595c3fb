package telephony

import "context"

// Carrier call status values as reported by the carrier's call resource.
const (
	StatusQueued     = "queued"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusBusy       = "busy"
	StatusFailed     = "failed"
	StatusNoAnswer   = "no-answer"
	StatusCanceled   = "canceled"

	// StatusUnknown is reported when a status poll itself fails and the
	// outcome of the call leg cannot be determined.
	StatusUnknown = "unknown"
)

// IsTerminalStatus reports whether a carrier status means the call leg has
// finished and will not change state again.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusBusy, StatusFailed, StatusNoAnswer, StatusCanceled:
		return true
	}
	return false
}

// IsAnsweredStatus reports whether a terminal status means the call was
// actually picked up.
func IsAnsweredStatus(status string) bool {
	return status == StatusCompleted
}

// PlaceCallParams carries everything the carrier needs to originate a call.
type PlaceCallParams struct {
	// To is the callee's number in E.164 format.
	To string

	// From is the caller ID, a number owned by the account.
	From string

	// TwiMLURL is fetched by the carrier when the callee answers; it returns
	// the TwiML that routes the call into the media stream.
	TwiMLURL string
}

// Carrier abstracts the telephony provider's REST surface: originating calls
// and polling their status. The production implementation lives in
// pkg/telephony/twilio; tests use pkg/telephony/mock.
//
// Implementations must be safe for concurrent use.
type Carrier interface {
	// PlaceCall originates an outbound call and returns the carrier-assigned
	// call SID.
	PlaceCall(ctx context.Context, params PlaceCallParams) (string, error)

	// CallStatus returns the current status of the call with the given SID.
	CallStatus(ctx context.Context, callSID string) (string, error)
}
