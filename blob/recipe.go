// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"fmt"

	"github.com/quicksend-foundation/quicksend/lib/codec"
)

// RecipeVersion is the current recipe format version.
const RecipeVersion = 1

// Recipe maps a file hash to the ordered list of blocks needed to
// reassemble the original content. Recipes are what peers exchange
// during transfers: a downloader fetches the recipe first, then
// requests only the blocks it does not already hold. Stored and
// transmitted as CBOR using Core Deterministic Encoding.
type Recipe struct {
	// Version is the recipe format version. Currently 1.
	Version int `json:"version"`

	// FileHash is the full 32-byte file-domain BLAKE3 hash. It is
	// the root of the Merkle tree built over the block hashes, so it
	// commits to the exact block list below.
	FileHash Hash `json:"file_hash"`

	// Size is the total uncompressed content size in bytes.
	Size int64 `json:"size"`

	// Blocks is the ordered list of block references. Concatenating
	// the blocks in order yields the original content.
	Blocks []BlockRef `json:"blocks"`
}

// BlockRef identifies one block of a file: its content hash and its
// uncompressed length.
type BlockRef struct {
	// Hash is the block-domain BLAKE3 hash of the block's
	// uncompressed bytes.
	Hash Hash `json:"hash"`

	// Size is the block's uncompressed length in bytes.
	Size int64 `json:"size"`
}

// BuildRecipe constructs a recipe from a chunked file's blocks. The
// file hash is derived from the Merkle root over the block hashes, so
// the recipe is self-certifying: a downloader can verify each block
// against its hash and the block list against the file hash.
func BuildRecipe(blocks []Block) *Recipe {
	hashes := make([]Hash, len(blocks))
	refs := make([]BlockRef, len(blocks))
	var totalSize int64

	for i, block := range blocks {
		hashes[i] = block.Hash
		refs[i] = BlockRef{
			Hash: block.Hash,
			Size: int64(len(block.Data)),
		}
		totalSize += int64(len(block.Data))
	}

	return &Recipe{
		Version:  RecipeVersion,
		FileHash: HashFile(MerkleRoot(hashes)),
		Size:     totalSize,
		Blocks:   refs,
	}
}

// MarshalRecipe encodes a Recipe to CBOR using Core Deterministic
// Encoding.
func MarshalRecipe(recipe *Recipe) ([]byte, error) {
	data, err := codec.Marshal(recipe)
	if err != nil {
		return nil, fmt.Errorf("encoding recipe: %w", err)
	}
	return data, nil
}

// UnmarshalRecipe decodes a CBOR-encoded Recipe. Unknown fields from
// future versions are silently ignored (forward compatibility).
func UnmarshalRecipe(data []byte) (*Recipe, error) {
	var recipe Recipe
	if err := codec.Unmarshal(data, &recipe); err != nil {
		return nil, fmt.Errorf("decoding recipe: %w", err)
	}
	if recipe.Version < 1 {
		return nil, fmt.Errorf("recipe version %d is invalid (minimum 1)", recipe.Version)
	}
	return &recipe, nil
}

// Validate checks that a Recipe is internally consistent: the block
// sizes sum to the total size and the file hash matches the Merkle
// root of the block hashes. A recipe that fails validation must never
// be trusted for downloads.
func (r *Recipe) Validate() error {
	if r.Version < 1 {
		return fmt.Errorf("version %d is invalid (minimum 1)", r.Version)
	}

	var zeroHash Hash
	if r.FileHash == zeroHash {
		return fmt.Errorf("file hash is zero")
	}

	if r.Size < 0 {
		return fmt.Errorf("size %d is negative", r.Size)
	}

	if len(r.Blocks) == 0 {
		return fmt.Errorf("no blocks")
	}

	hashes := make([]Hash, len(r.Blocks))
	var totalSize int64
	for i, block := range r.Blocks {
		if block.Hash == zeroHash {
			return fmt.Errorf("block %d: hash is zero", i)
		}
		if block.Size < 1 {
			return fmt.Errorf("block %d: size %d is invalid (minimum 1)", i, block.Size)
		}
		hashes[i] = block.Hash
		totalSize += block.Size
	}

	if totalSize != r.Size {
		return fmt.Errorf("block sizes sum to %d, but total size is %d", totalSize, r.Size)
	}

	if computed := HashFile(MerkleRoot(hashes)); computed != r.FileHash {
		return fmt.Errorf("file hash %s does not match block list (computed %s)",
			FormatHash(r.FileHash), FormatHash(computed))
	}

	return nil
}
