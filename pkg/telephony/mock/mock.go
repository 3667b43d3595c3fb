// Package mock provides test doubles for the telephony package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/vocalq/outbound/pkg/telephony"
)

// PlaceCallCall records a single invocation of Carrier.PlaceCall.
type PlaceCallCall struct {
	// Ctx is the context passed to PlaceCall.
	Ctx context.Context
	// Params are the parameters passed to PlaceCall.
	Params telephony.PlaceCallParams
}

// Carrier is a mock implementation of telephony.Carrier.
//
// Status polls return the next entry of StatusSequence on each call; once the
// sequence is exhausted the last entry is repeated. This makes it easy to
// script a ringing → in-progress → completed progression in dialer tests.
type Carrier struct {
	mu sync.Mutex

	// CallSID is returned by PlaceCall when PlaceCallErr is nil.
	CallSID string

	// PlaceCallErr, if non-nil, is returned as the error from PlaceCall.
	PlaceCallErr error

	// StatusSequence scripts the return values of successive CallStatus calls.
	StatusSequence []string

	// CallStatusErr, if non-nil, is returned as the error from CallStatus.
	CallStatusErr error

	// PlaceCallCalls records every call to PlaceCall in order.
	PlaceCallCalls []PlaceCallCall

	// CallStatusCallCount is the number of times CallStatus was called.
	CallStatusCallCount int

	statusIdx int
}

// PlaceCall records the call and returns CallSID, PlaceCallErr.
func (c *Carrier) PlaceCall(ctx context.Context, params telephony.PlaceCallParams) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PlaceCallCalls = append(c.PlaceCallCalls, PlaceCallCall{Ctx: ctx, Params: params})
	if c.PlaceCallErr != nil {
		return "", c.PlaceCallErr
	}
	if c.CallSID != "" {
		return c.CallSID, nil
	}
	return "CA-mock", nil
}

// CallStatus returns the next scripted status, or CallStatusErr.
func (c *Carrier) CallStatus(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallStatusCallCount++
	if c.CallStatusErr != nil {
		return "", c.CallStatusErr
	}
	if len(c.StatusSequence) == 0 {
		return telephony.StatusCompleted, nil
	}
	status := c.StatusSequence[c.statusIdx]
	if c.statusIdx < len(c.StatusSequence)-1 {
		c.statusIdx = c.statusIdx + 1
	}
	return status, nil
}

// Reset clears all recorded calls and rewinds the status sequence. Thread-safe.
func (c *Carrier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PlaceCallCalls = nil
	c.CallStatusCallCount = 0
	c.statusIdx = 0
}

// Ensure Carrier implements telephony.Carrier at compile time.
var _ telephony.Carrier = (*Carrier)(nil)
