package models

import "sync/atomic"

// CancellationToken lets a background task observe that it was superseded.
// A token is cancelled explicitly or when its viewport moves to a newer epoch.
type CancellationToken struct {
	viewport  *ViewportContext
	epoch     uint64
	cancelled atomic.Bool
}

// NewCancellationToken creates a token that only cancels explicitly
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{}
}

// Cancel marks the token as cancelled
func (ct *CancellationToken) Cancel() {
	ct.cancelled.Store(true)
}

// IsCancelled returns true if the token has been cancelled or superseded
func (ct *CancellationToken) IsCancelled() bool {
	if ct == nil {
		return false
	}
	if ct.cancelled.Load() {
		return true
	}
	return ct.viewport != nil && !ct.viewport.Current(ct.epoch)
}

// Epoch returns the epoch the token was issued for
func (ct *CancellationToken) Epoch() uint64 {
	return ct.epoch
}
