// Package channel delivers outbound messages through an external messaging
// transport.
package channel

import (
	"context"
	"errors"
)

var (
	// ErrDeliveryFailed reports a transport rejection. Logged and swallowed
	// by callers; the turn is not retried.
	ErrDeliveryFailed = errors.New("outbound delivery failed")
	// ErrBadCredentials reports an auth-class transport failure. Fatal to
	// the process: a misconfigured credential will fail every turn.
	ErrBadCredentials = errors.New("outbound transport rejected credentials")
)

// OutboundMessage pairs a delivery target with text content.
type OutboundMessage struct {
	Destination string `json:"to"`
	Channel     string `json:"channel"`
	Text        string `json:"text"`
}

// Sender delivers a message via an external transport.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}
