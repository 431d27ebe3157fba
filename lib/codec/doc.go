// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Quicksend's standard CBOR encoding
// configuration.
//
// Quicksend uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the HTTP adapter's REST endpoints,
//     SSE event payloads, and CLI --json output.
//   - CBOR for internal protocols: the peer fetch protocol, gossip
//     message payloads, on-disk block recipes, and ticket payloads.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every Quicksend package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC
// 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which matters for anything that is hashed or compared as a
// string (recipes, tickets).
//
// For buffer-oriented operations (recipes, tickets):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (peer connections):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR (wire
//     protocol envelopes, block recipes, ticket payloads).
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats (chat messages, events, adapter
//     responses).
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract.
package codec
