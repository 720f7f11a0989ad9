package msf

import (
	"bytes"
	"testing"
)

// buildTestMSF lays out a minimal but structurally valid MSF 7.0 file
// containing the given stream contents, using a small block size so the
// test data stays compact. Every directory-related region (stream
// directory, block map) is kept to a single block to avoid reimplementing
// the indirection this test exists to exercise elsewhere.
func buildTestMSF(t *testing.T, blockSize uint32, streamContents [][]byte) []byte {
	t.Helper()

	nextBlock := uint32(3) // block 0 = superblock, 1-2 = FPM placeholders

	streamSizes := make([]uint32, len(streamContents))
	streamBlocks := make([][]uint32, len(streamContents))
	var dataBlocks [][]byte

	for i, content := range streamContents {
		if content == nil {
			streamSizes[i] = NilStreamSize
			continue
		}
		streamSizes[i] = uint32(len(content))
		n := (uint32(len(content)) + blockSize - 1) / blockSize
		blocks := make([]uint32, n)
		for j := uint32(0); j < n; j++ {
			blocks[j] = nextBlock
			nextBlock++
			start := j * blockSize
			end := start + blockSize
			if end > uint32(len(content)) {
				end = uint32(len(content))
			}
			block := make([]byte, blockSize)
			copy(block, content[start:end])
			dataBlocks = append(dataBlocks, block)
		}
		streamBlocks[i] = blocks
	}

	// Build the raw directory bytes: count, sizes, then block indices.
	var dirBuf bytes.Buffer
	putU32Buf(&dirBuf, uint32(len(streamContents)))
	for _, s := range streamSizes {
		putU32Buf(&dirBuf, s)
	}
	for _, blocks := range streamBlocks {
		for _, b := range blocks {
			putU32Buf(&dirBuf, b)
		}
	}
	dirBytes := dirBuf.Bytes()

	numDirBlocks := (uint32(len(dirBytes)) + blockSize - 1) / blockSize
	dirBlockIndices := make([]uint32, numDirBlocks)
	var dirDataBlocks [][]byte
	for j := uint32(0); j < numDirBlocks; j++ {
		dirBlockIndices[j] = nextBlock
		nextBlock++
		start := j * blockSize
		end := start + blockSize
		if end > uint32(len(dirBytes)) {
			end = uint32(len(dirBytes))
		}
		block := make([]byte, blockSize)
		copy(block, dirBytes[start:end])
		dirDataBlocks = append(dirDataBlocks, block)
	}

	// Block map: array of directory block indices. Keep the test fixture
	// small enough that this always fits in a single block.
	var blockMapBuf bytes.Buffer
	for _, idx := range dirBlockIndices {
		putU32Buf(&blockMapBuf, idx)
	}
	if uint32(blockMapBuf.Len()) > blockSize {
		t.Fatalf("test fixture too large: block map needs more than one block")
	}
	blockMapAddr := nextBlock
	blockMapBlock := make([]byte, blockSize)
	copy(blockMapBlock, blockMapBuf.Bytes())
	nextBlock++

	totalBlocks := nextBlock
	file := make([]byte, totalBlocks*blockSize)

	sb := buildSuperBlock(t, blockSize, 1, totalBlocks, uint32(len(dirBytes)), blockMapAddr)
	copy(file, sb)

	writeBlock := func(idx uint32, data []byte) {
		copy(file[idx*blockSize:], data)
	}

	blockCursor := uint32(3)
	for _, content := range streamContents {
		if content == nil {
			continue
		}
		n := (uint32(len(content)) + blockSize - 1) / blockSize
		for j := uint32(0); j < n; j++ {
			writeBlock(blockCursor, dataBlocks[0])
			dataBlocks = dataBlocks[1:]
			blockCursor++
		}
	}
	for _, idx := range dirBlockIndices {
		writeBlock(idx, dirDataBlocks[0])
		dirDataBlocks = dirDataBlocks[1:]
	}
	writeBlock(blockMapAddr, blockMapBlock)

	return file
}

func putU32Buf(buf *bytes.Buffer, v uint32) {
	b := make([]byte, 4)
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	buf.Write(b)
}

func TestFileOpenAndReadStream(t *testing.T) {
	const blockSize = 512
	tpiContent := bytes.Repeat([]byte{0xAB}, 600) // spans 2 blocks
	dbiContent := []byte("debug-info-stream")

	data := buildTestMSF(t, blockSize, [][]byte{nil, nil, tpiContent, dbiContent})

	f, err := NewFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	n, err := f.NumStreams()
	if err != nil {
		t.Fatalf("NumStreams failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("NumStreams = %d, want 4", n)
	}

	exists, err := f.StreamExists(StreamTPI)
	if err != nil || !exists {
		t.Fatalf("StreamExists(TPI) = %v, %v", exists, err)
	}

	got, err := f.ReadStream(StreamTPI)
	if err != nil {
		t.Fatalf("ReadStream(TPI) failed: %v", err)
	}
	if !bytes.Equal(got, tpiContent) {
		t.Errorf("TPI stream content mismatch: got %d bytes, want %d", len(got), len(tpiContent))
	}

	got, err = f.ReadStream(StreamDBI)
	if err != nil {
		t.Fatalf("ReadStream(DBI) failed: %v", err)
	}
	if !bytes.Equal(got, dbiContent) {
		t.Errorf("DBI stream content mismatch: got %q, want %q", got, dbiContent)
	}
}

func TestFileOpenNilStream(t *testing.T) {
	data := buildTestMSF(t, 512, [][]byte{nil, []byte("pdbinfo")})

	f, err := NewFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}

	if _, err := f.OpenStream(0); err == nil {
		t.Fatal("expected error opening nil stream")
	}
}

func TestFileOpenTruncated(t *testing.T) {
	_, err := NewFile(bytes.NewReader(make([]byte, 10)), 10)
	if err != ErrTruncatedFile {
		t.Fatalf("err = %v, want ErrTruncatedFile", err)
	}
}

func TestStreamReadAtAcrossBlocks(t *testing.T) {
	const blockSize = 512
	content := bytes.Repeat([]byte("0123456789abcdef"), 64) // 1024 bytes, 2 blocks
	data := buildTestMSF(t, blockSize, [][]byte{content})

	f, err := NewFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	stream, err := f.OpenStream(0)
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	if stream.Size() != uint32(len(content)) {
		t.Fatalf("Size() = %d, want %d", stream.Size(), len(content))
	}

	buf := make([]byte, 6)
	n, err := stream.ReadAt(buf, 509)
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if n != 6 || string(buf) != string(content[509:515]) {
		t.Errorf("ReadAt(509,6) = %q, want %q", buf[:n], content[509:515])
	}
}
