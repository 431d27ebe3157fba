// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"bytes"
	"testing"
)

func TestChunkerEmptyInput(t *testing.T) {
	chunker := NewChunker(nil)
	if block := chunker.Next(); block != nil {
		t.Errorf("Next on empty input returned a block of %d bytes", len(block.Data))
	}
}

func TestChunkerSingleSmallBlock(t *testing.T) {
	data := []byte("short input")
	blocks := ChunkAll(data)

	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if !bytes.Equal(blocks[0].Data, data) {
		t.Error("single block does not match input")
	}
	if blocks[0].Hash != HashBlock(data) {
		t.Error("block hash does not match HashBlock of its data")
	}
}

func TestChunkerBlocksReassemble(t *testing.T) {
	data := randomBytes(t, 10, 3*1024*1024)
	blocks := ChunkAll(data)

	var reassembled []byte
	for _, block := range blocks {
		reassembled = append(reassembled, block.Data...)
	}
	if !bytes.Equal(reassembled, data) {
		t.Error("concatenated blocks do not reproduce the input")
	}
}

func TestChunkerSizeBounds(t *testing.T) {
	data := randomBytes(t, 11, 4*1024*1024)
	blocks := ChunkAll(data)

	if len(blocks) < 2 {
		t.Fatalf("got %d blocks for 4 MiB, want several", len(blocks))
	}

	for i, block := range blocks {
		if len(block.Data) > MaxBlockSize {
			t.Errorf("block %d is %d bytes, exceeds MaxBlockSize %d",
				i, len(block.Data), MaxBlockSize)
		}
		// The final block may be shorter than MinBlockSize.
		if i < len(blocks)-1 && len(block.Data) < MinBlockSize {
			t.Errorf("block %d is %d bytes, below MinBlockSize %d",
				i, len(block.Data), MinBlockSize)
		}
	}
}

func TestChunkerDeterministic(t *testing.T) {
	data := randomBytes(t, 12, 2*1024*1024)

	first := ChunkAll(data)
	second := ChunkAll(data)

	if len(first) != len(second) {
		t.Fatalf("block counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Hash != second[i].Hash {
			t.Errorf("block %d hash differs between runs", i)
		}
	}
}

// Inserting bytes near the start should only disturb boundaries close
// to the edit. Most downstream blocks realign, which is the property
// that makes content-defined chunking worth its cost.
func TestChunkerBoundaryStability(t *testing.T) {
	data := randomBytes(t, 13, 2*1024*1024)
	edited := append([]byte("inserted prefix bytes"), data...)

	originalHashes := make(map[Hash]struct{})
	for _, block := range ChunkAll(data) {
		originalHashes[block.Hash] = struct{}{}
	}

	editedBlocks := ChunkAll(edited)
	var surviving int
	for _, block := range editedBlocks {
		if _, ok := originalHashes[block.Hash]; ok {
			surviving++
		}
	}

	if surviving < len(editedBlocks)/2 {
		t.Errorf("only %d of %d blocks survived a prefix edit; boundaries did not realign",
			surviving, len(editedBlocks))
	}
}

func TestChunkerRepetitiveInputForcedBoundaries(t *testing.T) {
	// All-zero input never satisfies the boundary condition, so every
	// block except the last must be exactly MaxBlockSize.
	data := make([]byte, 3*MaxBlockSize+100)
	blocks := ChunkAll(data)

	if len(blocks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(blocks))
	}
	for i := 0; i < 3; i++ {
		if len(blocks[i].Data) != MaxBlockSize {
			t.Errorf("block %d is %d bytes, want MaxBlockSize %d",
				i, len(blocks[i].Data), MaxBlockSize)
		}
	}
	if len(blocks[3].Data) != 100 {
		t.Errorf("final block is %d bytes, want 100", len(blocks[3].Data))
	}
}
