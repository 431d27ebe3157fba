// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. All content hashes (block and
// file) are this size.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures that the same input bytes produce different
// hashes in different contexts, preventing cross-domain collisions.
type domainKey [32]byte

// Domain separation keys. These are fixed protocol constants —
// changing them invalidates every existing hash in that domain. The
// byte values are the ASCII encoding of the domain name, zero-padded
// to 32 bytes, so the keys are inspectable in hex dumps without
// sacrificing any cryptographic property (BLAKE3 keyed mode treats
// the key as an opaque 32-byte value).
var (
	blockDomainKey = domainKey{
		'q', 'u', 'i', 'c', 'k', 's', 'e', 'n', 'd', '.', 'b', 'l', 'o', 'b', '.',
		'b', 'l', 'o', 'c', 'k', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	fileDomainKey = domainKey{
		'q', 'u', 'i', 'c', 'k', 's', 'e', 'n', 'd', '.', 'b', 'l', 'o', 'b', '.',
		'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashBlock computes the block-domain BLAKE3 keyed hash of the given
// data. This is the hash used to address individual blocks and for
// deduplication. Block hashes are always computed on uncompressed
// bytes so dedup works across compression algorithm changes.
func HashBlock(data []byte) Hash {
	return keyedHash(blockDomainKey, data)
}

// HashFile computes the file-domain BLAKE3 keyed hash from a Merkle
// root. For single-block content, pass the single block hash. For
// multi-block content, pass the Merkle root computed by [MerkleRoot].
// The file hash is the content identity referenced by manifest
// entries and recipes.
func HashFile(merkleRoot Hash) Hash {
	return keyedHash(fileDomainKey, merkleRoot[:])
}

// MerkleRoot computes a binary Merkle tree over the given block
// hashes and returns the root. The tree is constructed bottom-up:
// adjacent pairs are concatenated and hashed with the block domain
// key. If a level has an odd number of nodes, the last node is
// promoted to the next level without hashing (it is NOT duplicated —
// duplicating would mean two different inputs produce the same root
// when one is a prefix of the other).
//
// Panics if hashes is empty.
func MerkleRoot(hashes []Hash) Hash {
	if len(hashes) == 0 {
		panic("blob.MerkleRoot: empty hash list")
	}
	if len(hashes) == 1 {
		return hashes[0]
	}

	// Reuse a single keyed hasher via Reset() for each pair. This
	// avoids allocating a new Hasher per pair — the dominant
	// allocation source for large trees.
	hasher, err := blake3.NewKeyed(blockDomainKey[:])
	if err != nil {
		panic("blob: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	var combined [64]byte

	hashPair := func(left, right Hash) Hash {
		copy(combined[:32], left[:])
		copy(combined[32:], right[:])
		hasher.Reset()
		hasher.Write(combined[:])
		var result Hash
		copy(result[:], hasher.Sum(nil))
		return result
	}

	// Work on a copy to avoid mutating the caller's slice.
	level := make([]Hash, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		nextLength := (len(level) + 1) / 2
		next := make([]Hash, nextLength)

		for i := 0; i < len(level)-1; i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}

		// Odd node: promote without hashing.
		if len(level)%2 == 1 {
			next[nextLength-1] = level[len(level)-1]
		}

		level = next
	}

	return level[0]
}

// MarshalBinary implements encoding.BinaryMarshaler. CBOR and other
// binary codecs encode a Hash as a 32-byte string instead of an array
// of individual byte values.
func (h Hash) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(h))
	copy(out, h[:])
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Hash) UnmarshalBinary(data []byte) error {
	if len(data) != len(h) {
		return fmt.Errorf("content hash is %d bytes, want %d", len(data), len(h))
	}
	copy(h[:], data)
	return nil
}

// FormatHash returns the hex-encoded string representation of a hash.
// This is the canonical format used in wire messages, logs, and CLI
// output.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing content hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("content hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// keyedHash computes the BLAKE3 keyed hash with the given domain key.
func keyedHash(key domainKey, data []byte) Hash {
	// NewKeyed requires exactly 32 bytes, which domainKey guarantees.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("blob: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}
