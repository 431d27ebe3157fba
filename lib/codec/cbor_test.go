// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// sampleRequest is a representative internal protocol message using
// cbor struct tags (the convention for purely-internal types).
type sampleRequest struct {
	Action   string `cbor:"action"`
	Document string `cbor:"document,omitempty"`
	Count    int    `cbor:"count"`
}

// sampleDual uses json struct tags (the convention for types that
// serve both JSON and CBOR, relying on fxamacker's fallback).
type sampleDual struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRequest{
		Action:   "blocks",
		Document: "b7f8c2d0-4a31-4e6f-9c0d-2f6a8e1b5c44",
		Count:    42,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := sampleRequest{Action: "manifest", Count: 7}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x vs %x", first, second)
	}
}

func TestJSONTagFallback(t *testing.T) {
	original := sampleDual{Version: 1, Name: "report.pdf"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Decode into a map to verify the json tag named the CBOR keys.
	var asMap map[string]any
	if err := Unmarshal(data, &asMap); err != nil {
		t.Fatalf("Unmarshal to map: %v", err)
	}
	if _, ok := asMap["name"]; !ok {
		t.Errorf("expected key %q in %v", "name", asMap)
	}
	if _, ok := asMap["version"]; !ok {
		t.Errorf("expected key %q in %v", "version", asMap)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	// Encode a superset, decode into the known struct. Forward
	// compatibility requires unknown fields to be skipped silently.
	superset := map[string]any{
		"action": "blocks",
		"count":  3,
		"future": "field from a newer version",
	}
	data, err := Marshal(superset)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Action != "blocks" || decoded.Count != 3 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)

	messages := []sampleRequest{
		{Action: "manifest"},
		{Action: "blocks", Count: 2},
	}
	for _, message := range messages {
		if err := encoder.Encode(message); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range messages {
		var got sampleRequest
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode message %d: %v", i, err)
		}
		if got != want {
			t.Errorf("message %d: got %+v, want %+v", i, got, want)
		}
	}
}
