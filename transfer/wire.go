// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/quicksend-foundation/quicksend/blob"
	"github.com/quicksend-foundation/quicksend/lib/codec"
)

// Fetch protocol constants.
const (
	// MaxMessageSize is the maximum size of a length-prefixed CBOR
	// message. The largest message is a manifest response carrying
	// every entry's full block layout, roughly 50 bytes per block, so
	// 1MiB covers documents into the gigabyte range.
	MaxMessageSize = 1 << 20

	// MaxBlockPayload caps the raw bytes following a block
	// descriptor. Blocks never exceed the chunker's maximum, so a
	// larger descriptor size means a broken or lying peer.
	MaxBlockPayload = blob.MaxBlockSize
)

// Request actions.
const (
	// ActionManifest asks for the document listing: every entry's
	// name, file hash, size, and block layout.
	ActionManifest = "manifest"

	// ActionBlocks asks for the raw bytes of specific blocks.
	ActionBlocks = "blocks"
)

// --- Protocol types ---
//
// CBOR messages are length-prefixed on the wire: a 4-byte big-endian
// uint32 length followed by that many bytes of CBOR data. The length
// prefix avoids stream-decoder read-ahead, which would swallow bytes
// from the raw block payloads interleaved with the messages.
//
// Wire layout for a manifest fetch:
//
//	client: [request "manifest"]
//	server: [ManifestResponse]
//
// Wire layout for a blocks fetch:
//
//	client: [request "blocks" with N hashes]
//	server: N × ([BlockDescriptor][raw payload, descriptor.Size bytes])
//
// Descriptors with Found=false carry no payload.

// Request is the single client-to-server message. Action selects the
// operation; the other fields apply per action.
type Request struct {
	Action string `json:"action"`

	// DocumentID is the document the client wants, from its ticket.
	// Set for ActionManifest.
	DocumentID uuid.UUID `json:"document_id,omitempty"`

	// Hashes lists the blocks the client is missing. Set for
	// ActionBlocks.
	Hashes []blob.Hash `json:"hashes,omitempty"`
}

// BlockInfo describes one block within a file's layout.
type BlockInfo struct {
	Hash blob.Hash `json:"hash"`
	Size int64     `json:"size"`
}

// FileInfo describes one manifest entry, including its full block
// layout so the downloader can determine which blocks it already has
// before requesting anything.
type FileInfo struct {
	Name     string      `json:"name"`
	FileHash blob.Hash   `json:"file_hash"`
	Size     int64       `json:"size"`
	Blocks   []BlockInfo `json:"blocks"`
}

// ManifestResponse is the server's answer to an ActionManifest
// request. A non-empty Error means the request was rejected (wrong
// document ID) and Entries is empty.
type ManifestResponse struct {
	DocumentID uuid.UUID  `json:"document_id"`
	Entries    []FileInfo `json:"entries,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// BlockDescriptor precedes each block payload in an ActionBlocks
// response. If Found is false the server does not have the block and
// no payload follows.
type BlockDescriptor struct {
	Hash  blob.Hash `json:"hash"`
	Size  int64     `json:"size"`
	Found bool      `json:"found"`
}

// oversizeError reports a length prefix beyond MaxMessageSize. Both
// sides enforce the same cap, so a peer announcing a larger message is
// broken or lying; retrying cannot help.
type oversizeError struct {
	size uint32
}

func (e *oversizeError) Error() string {
	return fmt.Sprintf("message size %d exceeds maximum %d", e.size, MaxMessageSize)
}

// writeMessage encodes v as CBOR and writes it with a 4-byte length
// prefix.
func writeMessage(w io.Writer, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(data)))
	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("writing message length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	return nil
}

// readMessage reads a length-prefixed CBOR message and decodes it
// into v. Rejects messages larger than MaxMessageSize.
func readMessage(r io.Reader, v any) error {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("reading message length: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length > MaxMessageSize {
		return &oversizeError{size: length}
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("reading message body: %w", err)
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}

// writeBlockPayload writes a block descriptor followed by the raw
// block bytes.
func writeBlockPayload(w io.Writer, hash blob.Hash, data []byte) error {
	descriptor := BlockDescriptor{Hash: hash, Size: int64(len(data)), Found: true}
	if err := writeMessage(w, descriptor); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing block payload: %w", err)
	}
	return nil
}

// readBlockPayload reads a block descriptor and, when the block was
// found, the raw payload that follows it.
func readBlockPayload(r io.Reader) (BlockDescriptor, []byte, error) {
	var descriptor BlockDescriptor
	if err := readMessage(r, &descriptor); err != nil {
		return descriptor, nil, fmt.Errorf("reading block descriptor: %w", err)
	}
	if !descriptor.Found {
		return descriptor, nil, nil
	}
	if descriptor.Size <= 0 || descriptor.Size > MaxBlockPayload {
		return descriptor, nil, fmt.Errorf("block payload size %d out of range (max %d)",
			descriptor.Size, MaxBlockPayload)
	}
	data := make([]byte, descriptor.Size)
	if _, err := io.ReadFull(r, data); err != nil {
		return descriptor, nil, fmt.Errorf("reading block payload: %w", err)
	}
	return descriptor, data, nil
}
