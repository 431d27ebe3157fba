// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/lib/codec"
)

// Prefix is the leading characters of every ticket string.
const Prefix = "qs"

// Version is the current ticket format version, encoded as a single
// digit after the prefix.
const Version = 1

// ticketEncoding is lowercase RFC 4648 base32 without padding. The
// resulting strings are case-stable, double-click selectable, and
// safe in URLs and chat messages.
var ticketEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").
	WithPadding(base32.NoPadding)

// Capability is the access level a ticket grants.
type Capability string

const (
	// CapabilityRead grants fetch access to the document.
	CapabilityRead Capability = "read"

	// CapabilityWrite grants write access. Reserved: no current
	// operation accepts a write ticket, but the field is on the wire
	// so older tickets stay valid when writes arrive.
	CapabilityWrite Capability = "write"
)

// Payload kinds. A single envelope format carries both document share
// tickets and chat room tickets; the kind field tells them apart.
const (
	kindDocument = "doc"
	kindRoom     = "room"
)

// Ticket is a document share ticket: everything a peer needs to fetch
// a shared document. The string form is the only thing users ever
// see or exchange.
type Ticket struct {
	// DocumentID identifies the manifest being shared.
	DocumentID uuid.UUID `json:"document_id"`

	// Addr is the dialable address of the sharing node.
	Addr string `json:"addr"`

	// Capability is the granted access level. Defaults to read.
	Capability Capability `json:"capability"`
}

// RoomTicket is a chat room invitation: the room topic plus a peer
// address to gossip with.
type RoomTicket struct {
	// TopicID identifies the room's gossip topic.
	TopicID uuid.UUID `json:"topic_id"`

	// Addr is the dialable address of an existing room member.
	Addr string `json:"addr"`
}

// ParseError reports a malformed ticket string. Every way a ticket
// can fail to parse — wrong prefix, unknown version, bad base32, bad
// CBOR, missing fields — surfaces as a *ParseError so callers can
// treat "the user pasted garbage" as one condition.
type ParseError struct {
	// Reason describes what was wrong with the input.
	Reason string

	// Cause is the underlying decode error, if any.
	Cause error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid ticket: %s: %v", e.Reason, e.Cause)
	}
	return "invalid ticket: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Cause }

// payload is the CBOR wire form shared by both ticket kinds.
type payload struct {
	Kind       string     `json:"kind"`
	DocumentID uuid.UUID  `json:"document_id,omitempty"`
	TopicID    uuid.UUID  `json:"topic_id,omitempty"`
	Addr       string     `json:"addr"`
	Capability Capability `json:"capability,omitempty"`
}

// Encode returns the ticket's string form:
// "qs" + version digit + base32(CBOR payload).
func (t Ticket) Encode() (string, error) {
	if t.DocumentID == uuid.Nil {
		return "", fmt.Errorf("ticket: document ID is required")
	}
	if t.Addr == "" {
		return "", fmt.Errorf("ticket: address is required")
	}

	capability := t.Capability
	if capability == "" {
		capability = CapabilityRead
	}

	return encodePayload(payload{
		Kind:       kindDocument,
		DocumentID: t.DocumentID,
		Addr:       t.Addr,
		Capability: capability,
	})
}

// Encode returns the room ticket's string form. Room tickets use the
// same envelope as document tickets with a distinct payload kind.
func (t RoomTicket) Encode() (string, error) {
	if t.TopicID == uuid.Nil {
		return "", fmt.Errorf("ticket: topic ID is required")
	}
	if t.Addr == "" {
		return "", fmt.Errorf("ticket: address is required")
	}

	return encodePayload(payload{
		Kind:    kindRoom,
		TopicID: t.TopicID,
		Addr:    t.Addr,
	})
}

// Decode parses a document share ticket. Any malformed input returns
// a *ParseError; Decode(Encode(t)) == t for every valid ticket.
func Decode(s string) (Ticket, error) {
	decoded, err := decodePayload(s)
	if err != nil {
		return Ticket{}, err
	}

	if decoded.Kind != kindDocument {
		return Ticket{}, &ParseError{Reason: fmt.Sprintf("not a document ticket (kind %q)", decoded.Kind)}
	}
	if decoded.DocumentID == uuid.Nil {
		return Ticket{}, &ParseError{Reason: "document ID is zero"}
	}
	if decoded.Addr == "" {
		return Ticket{}, &ParseError{Reason: "address is empty"}
	}

	capability := decoded.Capability
	switch capability {
	case "":
		capability = CapabilityRead
	case CapabilityRead, CapabilityWrite:
	default:
		return Ticket{}, &ParseError{Reason: fmt.Sprintf("unknown capability %q", capability)}
	}

	return Ticket{
		DocumentID: decoded.DocumentID,
		Addr:       decoded.Addr,
		Capability: capability,
	}, nil
}

// DecodeRoom parses a chat room ticket.
func DecodeRoom(s string) (RoomTicket, error) {
	decoded, err := decodePayload(s)
	if err != nil {
		return RoomTicket{}, err
	}

	if decoded.Kind != kindRoom {
		return RoomTicket{}, &ParseError{Reason: fmt.Sprintf("not a room ticket (kind %q)", decoded.Kind)}
	}
	if decoded.TopicID == uuid.Nil {
		return RoomTicket{}, &ParseError{Reason: "topic ID is zero"}
	}
	if decoded.Addr == "" {
		return RoomTicket{}, &ParseError{Reason: "address is empty"}
	}

	return RoomTicket{
		TopicID: decoded.TopicID,
		Addr:    decoded.Addr,
	}, nil
}

func encodePayload(p payload) (string, error) {
	data, err := codec.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("ticket: encoding payload: %w", err)
	}
	return fmt.Sprintf("%s%d%s", Prefix, Version, ticketEncoding.EncodeToString(data)), nil
}

func decodePayload(s string) (payload, error) {
	if !strings.HasPrefix(s, Prefix) {
		return payload{}, &ParseError{Reason: fmt.Sprintf("missing %q prefix", Prefix)}
	}

	rest := s[len(Prefix):]
	if len(rest) == 0 {
		return payload{}, &ParseError{Reason: "missing version"}
	}
	if rest[0] != '0'+Version {
		return payload{}, &ParseError{Reason: fmt.Sprintf("unsupported version %q", rest[0])}
	}

	encoded := rest[1:]
	if encoded == "" {
		return payload{}, &ParseError{Reason: "empty payload"}
	}

	data, err := ticketEncoding.DecodeString(encoded)
	if err != nil {
		return payload{}, &ParseError{Reason: "payload is not valid base32", Cause: err}
	}

	var decoded payload
	if err := codec.Unmarshal(data, &decoded); err != nil {
		return payload{}, &ParseError{Reason: "payload is not valid CBOR", Cause: err}
	}

	return decoded, nil
}
