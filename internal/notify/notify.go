// Evlock - Inspection Evidence Credential Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/evlock

// Package notify publishes credential-minted events after a batch
// commits, so downstream issuance services can react without polling the
// credential log. Production uses NATS JetStream through Watermill; tests
// use the in-process gochannel transport.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/evlock/internal/config"
	"github.com/tomtom215/evlock/internal/logging"
	"github.com/tomtom215/evlock/internal/models"
)

// CredentialMinted is the published envelope. It carries the identifiers
// and hash, never the payload; consumers read the credential log for the
// body.
type CredentialMinted struct {
	SystemType     string    `json:"system_type"`
	CredentialType string    `json:"credential_type"`
	CredentialID   string    `json:"credential_id"`
	SchemaName     string    `json:"schema_name"`
	SchemaVersion  string    `json:"schema_version"`
	ProjectID      string    `json:"project_id"`
	CredentialHash string    `json:"credential_hash"`
	MintedAt       time.Time `json:"minted_at"`
}

// Publisher publishes minted-credential envelopes to one topic.
type Publisher struct {
	pub        message.Publisher
	topic      string
	systemType string

	mu     sync.Mutex
	closed bool
}

// NewNATS connects a JetStream-backed publisher.
func NewNATS(cfg config.NotifyConfig, systemType string) (*Publisher, error) {
	wmLogger := watermillLogger{}
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL: cfg.URL,
		NatsOptions: []natsgo.Option{
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(-1),
			natsgo.ReconnectWait(2 * time.Second),
		},
		Marshaler: &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
		},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("notify: create publisher: %w", err)
	}
	logging.Info().Str("topic", cfg.Topic).Msg("Credential notifier connected")
	return &Publisher{pub: pub, topic: cfg.Topic, systemType: systemType}, nil
}

// NewInProcess returns a publisher over an in-process pub/sub, plus the
// subscriber side. Used by tests and single-binary deployments.
func NewInProcess(topic, systemType string) (*Publisher, message.Subscriber) {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermillLogger{})
	return &Publisher{pub: ch, topic: topic, systemType: systemType}, ch
}

// CredentialMinted publishes one envelope. The message id doubles as the
// NATS dedup id.
func (p *Publisher) CredentialMinted(_ context.Context, cred models.Credential) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("notify: publisher closed")
	}
	p.mu.Unlock()

	envelope := CredentialMinted{
		SystemType:     p.systemType,
		CredentialType: string(cred.Type),
		CredentialID:   cred.ID,
		SchemaName:     cred.SchemaName,
		SchemaVersion:  cred.SchemaVersion,
		ProjectID:      cred.ProjectID,
		CredentialHash: cred.Hash,
		MintedAt:       time.Now().UTC(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("notify: marshal envelope: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), body)
	// Identical credentials publish under the same id, so redeliveries
	// after a crash between commit and publish dedup broker-side.
	msg.Metadata.Set(natsgo.MsgIdHdr, cred.Hash)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("notify: publish %s: %w", cred.ID, err)
	}
	return nil
}

// Close shuts the underlying publisher down.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.pub.Close()
}
