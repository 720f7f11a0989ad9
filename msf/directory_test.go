package msf

import (
	"encoding/binary"
	"testing"
)

func putU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:], v)
}

func TestParseDirectorySimple(t *testing.T) {
	// Two streams: stream 0 is 10 bytes (2 blocks at size 8), stream 1 is
	// nil (deleted).
	const blockSize = 8
	buf := make([]byte, 4+4*2+4*2) // count + sizes + blocks for stream 0 (2 blocks)
	off := 0
	putU32(buf, off, 2)
	off += 4
	putU32(buf, off, 10)
	off += 4
	putU32(buf, off, NilStreamSize)
	off += 4
	putU32(buf, off, 5) // stream 0 block 0
	off += 4
	putU32(buf, off, 6) // stream 0 block 1
	off += 4

	dir, err := ParseDirectory(buf, blockSize)
	if err != nil {
		t.Fatalf("ParseDirectory failed: %v", err)
	}
	if dir.NumStreams != 2 {
		t.Fatalf("NumStreams = %d, want 2", dir.NumStreams)
	}
	if !dir.StreamExists(0) {
		t.Errorf("stream 0 should exist")
	}
	if dir.StreamExists(1) {
		t.Errorf("stream 1 (nil) should not exist")
	}
	if dir.StreamSize(0) != 10 {
		t.Errorf("StreamSize(0) = %d, want 10", dir.StreamSize(0))
	}
	blocks, err := dir.GetStreamBlocks(0)
	if err != nil {
		t.Fatalf("GetStreamBlocks(0) failed: %v", err)
	}
	if len(blocks) != 2 || blocks[0] != 5 || blocks[1] != 6 {
		t.Errorf("blocks = %v, want [5 6]", blocks)
	}
	blocks, err = dir.GetStreamBlocks(1)
	if err != nil {
		t.Fatalf("GetStreamBlocks(1) failed: %v", err)
	}
	if blocks != nil {
		t.Errorf("nil stream blocks = %v, want nil", blocks)
	}
}

func TestParseDirectoryTruncated(t *testing.T) {
	buf := make([]byte, 4)
	putU32(buf, 0, 5) // claims 5 streams but no sizes follow
	if _, err := ParseDirectory(buf, 512); err != ErrTruncatedDirectory {
		t.Fatalf("err = %v, want ErrTruncatedDirectory", err)
	}
}

func TestGetStreamBlocksOutOfRange(t *testing.T) {
	dir := &StreamDirectory{NumStreams: 1, StreamSizes: []uint32{10}, StreamBlocks: [][]uint32{{0}}}
	if _, err := dir.GetStreamBlocks(5); err == nil {
		t.Fatal("expected error for out-of-range stream index")
	}
}
