// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/samber/oops"
)

// LogSink writes notifications to a logger. Payload values carry tokens, so
// only the payload keys are logged.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(ctx context.Context, n Notification) error {
	keys := make([]string, 0, len(n.Payload))
	for k := range n.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.logger.InfoContext(ctx, "notification",
		"notification_id", n.ID.String(),
		"recipient", n.Recipient,
		"kind", n.Kind,
		"payload_keys", keys)
	return nil
}

// DefaultStream is the JetStream stream that captures notification subjects.
const DefaultStream = "QUILL_NOTIFICATIONS"

// NATSSink publishes notifications as JSON to JetStream on
// "<subject>.<kind>". A mailer service consumes the stream.
type NATSSink struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewNATSSink connects to url and makes sure a stream captures subject.>.
func NewNATSSink(url, subject string, opts ...nats.Option) (*NATSSink, error) {
	subject = strings.TrimSuffix(subject, ".")
	if subject == "" {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("subject is required")
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, oops.Code("NOTIFY_NATS_CONNECT_FAILED").With("url", url).Wrap(err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, oops.Code("NOTIFY_NATS_CONNECT_FAILED").With("url", url).Wrap(err)
	}

	if _, err := js.StreamInfo(DefaultStream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, oops.Code("NOTIFY_NATS_STREAM_FAILED").Wrap(err)
		}
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     DefaultStream,
			Subjects: []string{subject + ".>"},
		}); err != nil {
			nc.Close()
			return nil, oops.Code("NOTIFY_NATS_STREAM_FAILED").Wrap(err)
		}
	}

	return &NATSSink{conn: nc, js: js, subject: subject}, nil
}

// Deliver implements Sink.
func (s *NATSSink) Deliver(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return oops.Code("NOTIFY_ENCODE_FAILED").Wrap(err)
	}
	subj := s.subject + "." + n.Kind
	if _, err := s.js.Publish(subj, data, nats.Context(ctx), nats.MsgId(n.ID.String())); err != nil {
		return oops.Code("NOTIFY_PUBLISH_FAILED").With("subject", subj).Wrap(err)
	}
	return nil
}

// Close drains the NATS connection.
func (s *NATSSink) Close() {
	if s == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
}
