// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package notify delivers outbound notifications (verification, reactivation
// and password reset emails) off the request path.
package notify

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Notification is one message for one recipient.
type Notification struct {
	ID        ulid.ULID         `json:"id"`
	Recipient string            `json:"recipient"`
	Kind      string            `json:"kind"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// New builds a Notification stamped with a fresh ID and the current time.
func New(recipient, kind string, payload map[string]string) Notification {
	cp := make(map[string]string, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	return Notification{
		ID:        ulid.Make(),
		Recipient: recipient,
		Kind:      kind,
		Payload:   cp,
		CreatedAt: time.Now().UTC(),
	}
}

// Sink hands a notification to a delivery channel. At-least-once delivery is
// acceptable, so a Sink may see the same notification more than once.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}
