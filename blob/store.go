// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Directory names within the blob store root.
const (
	blocksDir  = "blocks"
	recipesDir = "recipes"
	tmpDir     = "tmp"
)

// Block file format: a 9-byte header followed by the (possibly
// compressed) block payload.
//
//	offset 0: 4-byte magic "QSB1"
//	offset 4: 1-byte compression tag
//	offset 5: 4-byte big-endian uncompressed size
//	offset 9: payload
const (
	blockMagic      = "QSB1"
	blockHeaderSize = 9
)

// Store manages the local blob storage directory: one file per block,
// sharded by hash prefix, plus one recipe file per stored blob.
// Blocks are stored individually (not packed) because transfers are
// block-granular: a peer requests exactly the blocks it is missing,
// and the server reads each from its own file.
//
// The store is safe for concurrent reads but not concurrent writes to
// the same blob. The caller is responsible for serializing writes.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory. The
// directory structure is created if it does not exist.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, blocksDir),
		filepath.Join(root, recipesDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// StoreResult is returned by [Store.Write] with metadata about the
// stored blob.
type StoreResult struct {
	// FileHash is the file-domain BLAKE3 hash (the blob identity).
	FileHash Hash

	// Size is the total uncompressed content size in bytes.
	Size int64

	// BlockCount is the number of blocks the content was split into.
	BlockCount int

	// CompressedSize is the total size on disk (block headers plus
	// compressed payloads).
	CompressedSize int64

	// Compression is the compression algorithm selected for this
	// blob. Individual blocks may fall back to CompressionNone if
	// the selected algorithm produces output larger than the input;
	// per-block tags are recorded in the block file headers.
	Compression CompressionTag
}

// Write ingests content from r, chunks it, compresses it, and writes
// the blocks and recipe to disk. Returns metadata about the stored
// blob. Writing the same content twice is idempotent: identical
// content produces identical block and recipe files, and existing
// files are left in place.
//
// The contentType parameter is used for compression auto-selection.
// Pass an empty string to always probe the first block.
func (s *Store) Write(r io.Reader, contentType string) (*StoreResult, error) {
	// Read all content into memory. The streaming version (chunking
	// as bytes arrive) will come when we need to handle multi-GB
	// files; for now, the in-memory path is simpler and correct.
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}

	if len(content) == 0 {
		return nil, fmt.Errorf("cannot store empty content")
	}

	// Probe up to the first TargetBlockSize bytes for compression
	// auto-selection.
	probeSize := len(content)
	if probeSize > TargetBlockSize {
		probeSize = TargetBlockSize
	}
	compression := SelectCompression(content[:probeSize], contentType)

	// Small content fast path: no CDC, single block.
	var blocks []Block
	if len(content) <= SingleBlockThreshold {
		blocks = []Block{{Data: content, Hash: HashBlock(content)}}
	} else {
		blocks = ChunkAll(content)
	}

	var totalCompressed int64
	for i, block := range blocks {
		written, err := s.writeBlock(block.Hash, block.Data, compression)
		if err != nil {
			return nil, fmt.Errorf("writing block %d: %w", i, err)
		}
		totalCompressed += written
	}

	recipe := BuildRecipe(blocks)
	if err := s.writeRecipe(recipe); err != nil {
		return nil, err
	}

	return &StoreResult{
		FileHash:       recipe.FileHash,
		Size:           recipe.Size,
		BlockCount:     len(blocks),
		CompressedSize: totalCompressed,
		Compression:    compression,
	}, nil
}

// WriteContent is a convenience function that stores content from a
// byte slice. For large files, prefer [Store.Write] with a streaming
// reader.
func (s *Store) WriteContent(content []byte, contentType string) (*StoreResult, error) {
	return s.Write(bytes.NewReader(content), contentType)
}

// WriteFile stores the content of a file on disk.
func (s *Store) WriteFile(path string) (*StoreResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()
	return s.Write(file, "")
}

// Read reconstructs a blob from its blocks and writes the content to
// w. Every block is verified against its hash as it is read, and the
// assembled block list is verified against the file hash. Returns the
// total number of bytes written.
func (s *Store) Read(fileHash Hash, w io.Writer) (int64, error) {
	recipe, err := s.Recipe(fileHash)
	if err != nil {
		return 0, err
	}

	if recipe.FileHash != fileHash {
		return 0, fmt.Errorf("recipe file hash %s does not match requested %s",
			FormatHash(recipe.FileHash), FormatHash(fileHash))
	}

	var totalWritten int64
	for i, ref := range recipe.Blocks {
		data, err := s.GetBlock(ref.Hash)
		if err != nil {
			return totalWritten, fmt.Errorf("block %d: %w", i, err)
		}
		if int64(len(data)) != ref.Size {
			return totalWritten, fmt.Errorf("block %d: got %d bytes, recipe says %d",
				i, len(data), ref.Size)
		}

		written, err := w.Write(data)
		if err != nil {
			return totalWritten, fmt.Errorf("writing block %d: %w", i, err)
		}
		totalWritten += int64(written)
	}

	return totalWritten, nil
}

// ReadContent is a convenience function that reads a blob into a byte
// slice. For large blobs, prefer [Store.Read] with a streaming
// writer.
func (s *Store) ReadContent(fileHash Hash) ([]byte, error) {
	var buffer bytes.Buffer
	if _, err := s.Read(fileHash, &buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Exists checks whether a blob's recipe exists on disk.
func (s *Store) Exists(fileHash Hash) bool {
	_, err := os.Stat(s.recipePath(fileHash))
	return err == nil
}

// Recipe reads and validates a blob's recipe. Returns an error
// wrapping os.ErrNotExist if the blob is not stored.
func (s *Store) Recipe(fileHash Hash) (*Recipe, error) {
	data, err := os.ReadFile(s.recipePath(fileHash))
	if err != nil {
		return nil, fmt.Errorf("reading recipe for %s: %w", FormatHash(fileHash), err)
	}
	recipe, err := UnmarshalRecipe(data)
	if err != nil {
		return nil, err
	}
	if err := recipe.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recipe for %s: %w", FormatHash(fileHash), err)
	}
	return recipe, nil
}

// PutRecipe validates and writes a recipe received from a peer. The
// recipe's self-consistency check (block sizes and Merkle root) runs
// before anything touches disk.
func (s *Store) PutRecipe(recipe *Recipe) error {
	if err := recipe.Validate(); err != nil {
		return fmt.Errorf("rejecting recipe: %w", err)
	}
	return s.writeRecipe(recipe)
}

// HasBlock checks whether a block exists on disk.
func (s *Store) HasBlock(hash Hash) bool {
	_, err := os.Stat(s.blockPath(hash))
	return err == nil
}

// MissingBlocks returns the block hashes from the recipe that are not
// present on disk, in recipe order without duplicates. This is what a
// downloader requests from the remote peer.
func (s *Store) MissingBlocks(recipe *Recipe) []Hash {
	seen := make(map[Hash]struct{}, len(recipe.Blocks))
	var missing []Hash
	for _, ref := range recipe.Blocks {
		if _, dup := seen[ref.Hash]; dup {
			continue
		}
		seen[ref.Hash] = struct{}{}
		if !s.HasBlock(ref.Hash) {
			missing = append(missing, ref.Hash)
		}
	}
	return missing
}

// GetBlock reads a block from disk, decompresses it, and verifies the
// content against the hash. A block whose content does not match its
// hash is reported as corrupt rather than returned.
func (s *Store) GetBlock(hash Hash) ([]byte, error) {
	raw, err := os.ReadFile(s.blockPath(hash))
	if err != nil {
		return nil, fmt.Errorf("reading block %s: %w", FormatHash(hash), err)
	}

	if len(raw) < blockHeaderSize {
		return nil, fmt.Errorf("block %s: file too short (%d bytes)", FormatHash(hash), len(raw))
	}
	if string(raw[:4]) != blockMagic {
		return nil, fmt.Errorf("block %s: bad magic", FormatHash(hash))
	}

	tag := CompressionTag(raw[4])
	uncompressedSize := int(binary.BigEndian.Uint32(raw[5:9]))

	data, err := DecompressBlock(raw[blockHeaderSize:], tag, uncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", FormatHash(hash), err)
	}

	if computed := HashBlock(data); computed != hash {
		return nil, fmt.Errorf("block %s is corrupt: content hashes to %s",
			FormatHash(hash), FormatHash(computed))
	}

	return data, nil
}

// PutBlock verifies that data hashes to the expected hash, then
// stores it. Data received from a peer must never be written without
// this check: a lying peer would otherwise poison the store.
func (s *Store) PutBlock(hash Hash, data []byte) error {
	if computed := HashBlock(data); computed != hash {
		return fmt.Errorf("block content hashes to %s, expected %s",
			FormatHash(computed), FormatHash(hash))
	}
	_, err := s.writeBlock(hash, data, SelectCompression(data, ""))
	return err
}

// Delete removes a blob's recipe and any of its blocks that are not
// in the liveBlocks set. Blocks shared with other blobs (whose hashes
// appear in liveBlocks) are preserved. Returns the block hashes that
// were actually deleted from disk.
//
// The caller builds the live set from the recipes of all remaining
// blobs, typically via [Store.LiveBlocks], before calling Delete.
func (s *Store) Delete(fileHash Hash, liveBlocks map[Hash]struct{}) ([]Hash, error) {
	recipe, err := s.Recipe(fileHash)
	if err != nil {
		return nil, fmt.Errorf("reading recipe for deletion: %w", err)
	}

	// Remove the recipe first so a crash mid-delete leaves orphan
	// blocks (harmless) rather than a recipe with missing blocks.
	if err := os.Remove(s.recipePath(fileHash)); err != nil {
		return nil, fmt.Errorf("removing recipe %s: %w", FormatHash(fileHash), err)
	}

	var deleted []Hash
	seen := make(map[Hash]struct{}, len(recipe.Blocks))
	for _, ref := range recipe.Blocks {
		if _, dup := seen[ref.Hash]; dup {
			continue
		}
		seen[ref.Hash] = struct{}{}

		if _, live := liveBlocks[ref.Hash]; live {
			continue
		}
		if err := os.Remove(s.blockPath(ref.Hash)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return deleted, fmt.Errorf("removing block %s: %w", FormatHash(ref.Hash), err)
		}
		deleted = append(deleted, ref.Hash)
	}

	return deleted, nil
}

// LiveBlocks walks all stored recipes and returns the set of block
// hashes referenced by any blob except the excluded one. Pass the
// zero hash to include every blob.
func (s *Store) LiveBlocks(exclude Hash) (map[Hash]struct{}, error) {
	live := make(map[Hash]struct{})

	root := filepath.Join(s.root, recipesDir)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != ".cbor" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading recipe %s: %w", path, err)
		}
		recipe, err := UnmarshalRecipe(data)
		if err != nil {
			return fmt.Errorf("decoding recipe %s: %w", path, err)
		}
		if recipe.FileHash == exclude {
			return nil
		}
		for _, ref := range recipe.Blocks {
			live[ref.Hash] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return live, nil
}

// writeBlock compresses and writes one block via atomic rename
// through the tmp directory. If the block already exists (dedup: same
// content produces the same hash), the existing file is kept. Returns
// the on-disk size of the block file.
func (s *Store) writeBlock(hash Hash, data []byte, compression CompressionTag) (int64, error) {
	finalPath := s.blockPath(hash)

	// Dedup: the existing block is identical by construction.
	if info, err := os.Stat(finalPath); err == nil {
		return info.Size(), nil
	}

	compressed, actualTag, err := compressWithFallback(data, compression)
	if err != nil {
		return 0, err
	}

	header := make([]byte, blockHeaderSize)
	copy(header, blockMagic)
	header[4] = byte(actualTag)
	binary.BigEndian.PutUint32(header[5:9], uint32(len(data)))

	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "block-*.bin")
	if err != nil {
		return 0, fmt.Errorf("creating temp block file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(header); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("writing block header: %w", err)
	}
	if _, err := tmpFile.Write(compressed); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("writing block data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("closing temp block file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating block shard directory: %w", err)
	}

	// Another writer may have raced us to the same block. Either copy
	// is identical, so the rename result does not matter as long as a
	// valid file ends up at finalPath.
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return 0, fmt.Errorf("renaming block to %s: %w", finalPath, err)
	}

	success = true
	return int64(blockHeaderSize + len(compressed)), nil
}

// writeRecipe writes a recipe to disk via atomic rename.
func (s *Store) writeRecipe(recipe *Recipe) error {
	data, err := MarshalRecipe(recipe)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "recipe-*.cbor")
	if err != nil {
		return fmt.Errorf("creating temp recipe file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing recipe data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing recipe file: %w", err)
	}

	finalPath := s.recipePath(recipe.FileHash)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating recipe shard directory: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming recipe to %s: %w", finalPath, err)
	}

	success = true
	return nil
}

// blockPath returns the sharded filesystem path for a block. Blocks
// are sharded by the first two bytes of the hash hex:
// blocks/a3/f9/a3f9b2c1e7d4...
func (s *Store) blockPath(hash Hash) string {
	hex := FormatHash(hash)
	return filepath.Join(s.root, blocksDir, hex[:2], hex[2:4], hex)
}

// recipePath returns the sharded filesystem path for a recipe.
func (s *Store) recipePath(fileHash Hash) string {
	hex := FormatHash(fileHash)
	return filepath.Join(s.root, recipesDir, hex[:2], hex[2:4], hex+".cbor")
}

// compressWithFallback attempts to compress data with the given
// algorithm. If the data is incompressible, falls back to
// CompressionNone and returns the original data.
func compressWithFallback(data []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	if tag == CompressionNone {
		return data, CompressionNone, nil
	}

	compressed, err := CompressBlock(data, tag)
	if err != nil {
		if IsIncompressible(err) {
			return data, CompressionNone, nil
		}
		return nil, 0, err
	}
	return compressed, tag, nil
}
