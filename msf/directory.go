package msf

import (
	"errors"
	"fmt"
	"io"

	"github.com/skdltmxn/pdb-go/internal/stream"
)

// NilStreamSize marks a deleted or absent stream slot in the directory.
const NilStreamSize = 0xFFFFFFFF

// Well-known stream indices fixed by the PDB 7.0 format.
const (
	StreamOldDirectory = 0
	StreamPDBInfo      = 1
	StreamTPI          = 2
	StreamDBI          = 3
	StreamIPI          = 4
)

var (
	ErrTruncatedDirectory   = errors.New("msf: truncated stream directory")
	ErrInvalidStreamIndex   = errors.New("msf: invalid stream index")
	ErrInvalidBlockIndex    = errors.New("msf: invalid block index")
	ErrDirectoryBlockMapNil = errors.New("msf: directory block map is nil")
)

// StreamDirectory is a jagged array: every stream owns its own list of
// block indices, addressed by stream number.
type StreamDirectory struct {
	NumStreams uint32

	// StreamSizes[i] is the byte size of stream i, or NilStreamSize if
	// the stream slot has been deleted.
	StreamSizes []uint32

	// StreamBlocks[i] holds the block indices backing stream i. Nil
	// streams carry a nil entry.
	StreamBlocks [][]uint32
}

// ParseDirectory decodes a stream directory from the concatenated bytes of
// its directory blocks.
func ParseDirectory(data []byte, blockSize uint32) (*StreamDirectory, error) {
	rd := stream.NewReader(data)

	numStreams, err := rd.ReadU32()
	if err != nil {
		return nil, ErrTruncatedDirectory
	}

	dir := &StreamDirectory{
		NumStreams:   numStreams,
		StreamSizes:  make([]uint32, numStreams),
		StreamBlocks: make([][]uint32, numStreams),
	}

	for i := range dir.StreamSizes {
		size, err := rd.ReadU32()
		if err != nil {
			return nil, ErrTruncatedDirectory
		}
		dir.StreamSizes[i] = size
	}

	for i, size := range dir.StreamSizes {
		if size == NilStreamSize || size == 0 {
			continue
		}

		numBlocks := (size + blockSize - 1) / blockSize
		blocks := make([]uint32, numBlocks)
		for j := range blocks {
			b, err := rd.ReadU32()
			if err != nil {
				return nil, ErrTruncatedDirectory
			}
			blocks[j] = b
		}
		dir.StreamBlocks[i] = blocks
	}

	return dir, nil
}

// StreamSize reports the byte size of a stream, or 0 if it's missing,
// nil, or out of range.
func (d *StreamDirectory) StreamSize(streamIndex uint32) uint32 {
	if streamIndex >= d.NumStreams {
		return 0
	}
	if size := d.StreamSizes[streamIndex]; size != NilStreamSize {
		return size
	}
	return 0
}

// StreamExists reports whether streamIndex names a present, non-empty stream.
func (d *StreamDirectory) StreamExists(streamIndex uint32) bool {
	return d.StreamSize(streamIndex) > 0
}

// GetStreamBlocks returns the block list backing a stream. A nil stream
// yields (nil, nil); an out-of-range index is an error.
func (d *StreamDirectory) GetStreamBlocks(streamIndex uint32) ([]uint32, error) {
	if streamIndex >= d.NumStreams {
		return nil, fmt.Errorf("%w: %d >= %d", ErrInvalidStreamIndex, streamIndex, d.NumStreams)
	}
	if d.StreamSizes[streamIndex] == NilStreamSize {
		return nil, nil
	}
	return d.StreamBlocks[streamIndex], nil
}

// DirectoryReader locates and assembles the stream directory, following the
// SuperBlock's block-map indirection.
type DirectoryReader struct {
	sb   *SuperBlock
	data io.ReaderAt
}

// NewDirectoryReader builds a DirectoryReader over the given backing store.
func NewDirectoryReader(sb *SuperBlock, data io.ReaderAt) *DirectoryReader {
	return &DirectoryReader{sb: sb, data: data}
}

// ReadDirectory follows the block map to the directory blocks, concatenates
// them, and parses the result.
func (dr *DirectoryReader) ReadDirectory() (*StreamDirectory, error) {
	blockMap, err := dr.readBlockMap()
	if err != nil {
		return nil, err
	}

	raw, err := dr.concatBlocks(blockMap, dr.sb.NumDirectoryBytes)
	if err != nil {
		return nil, fmt.Errorf("msf: failed to read directory blocks: %w", err)
	}

	return ParseDirectory(raw, dr.sb.BlockSize)
}

// readBlockMap reads the (possibly multi-block) array of directory block
// indices rooted at the SuperBlock's BlockMapAddr.
func (dr *DirectoryReader) readBlockMap() ([]uint32, error) {
	numEntries := dr.sb.NumDirectoryBlocks()
	mapBytes := numEntries * 4
	mapBlocks := (mapBytes + dr.sb.BlockSize - 1) / dr.sb.BlockSize

	selfMap := make([]uint32, mapBlocks)
	for i := range selfMap {
		selfMap[i] = dr.sb.BlockMapAddr + i
	}

	raw, err := dr.concatBlocks(selfMap, mapBytes)
	if err != nil {
		return nil, fmt.Errorf("msf: failed to read block map: %w", err)
	}

	rd := stream.NewReader(raw)
	entries := make([]uint32, numEntries)
	for i := range entries {
		v, err := rd.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("msf: failed to read block map: %w", err)
		}
		entries[i] = v
	}
	return entries, nil
}

// concatBlocks reads each block in blockIndices and concatenates the first
// totalBytes of them, validating every index against the container size.
func (dr *DirectoryReader) concatBlocks(blockIndices []uint32, totalBytes uint32) ([]byte, error) {
	out := make([]byte, totalBytes)
	remaining := totalBytes

	for i, blockIdx := range blockIndices {
		if blockIdx >= dr.sb.NumBlocks {
			return nil, fmt.Errorf("%w: %d >= %d", ErrInvalidBlockIndex, blockIdx, dr.sb.NumBlocks)
		}

		toRead := dr.sb.BlockSize
		if toRead > remaining {
			toRead = remaining
		}

		dst := uint32(i) * dr.sb.BlockSize
		if _, err := dr.data.ReadAt(out[dst:dst+toRead], dr.sb.BlockOffset(blockIdx)); err != nil {
			return nil, fmt.Errorf("block %d: %w", blockIdx, err)
		}

		remaining -= toRead
		if remaining == 0 {
			break
		}
	}

	return out, nil
}
