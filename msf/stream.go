package msf

import (
	"fmt"
	"io"
)

// Stream stitches together a stream's (possibly non-contiguous) blocks into
// a single sequential view. It implements io.Reader, io.Seeker, and
// io.ReaderAt.
type Stream struct {
	data       io.ReaderAt
	blocks     []uint32
	blockSize  uint32
	streamSize uint32
	pos        uint32
}

// NewStream wraps the given block list as a readable stream.
func NewStream(data io.ReaderAt, blocks []uint32, blockSize, streamSize uint32) *Stream {
	return &Stream{data: data, blocks: blocks, blockSize: blockSize, streamSize: streamSize}
}

// Read implements io.Reader, advancing the stream's internal cursor.
func (s *Stream) Read(p []byte) (int, error) {
	if s.pos >= s.streamSize {
		return 0, io.EOF
	}
	if remaining := s.streamSize - s.pos; uint32(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := s.ReadAt(p, int64(s.pos))
	s.pos += uint32(n)
	return n, err
}

// blockLocation translates a logical stream offset into the block index and
// in-block offset that holds it.
func (s *Stream) blockLocation(pos uint32) (blockIndex, blockOffset uint32) {
	return pos / s.blockSize, pos % s.blockSize
}

// ReadAt implements io.ReaderAt, walking block boundaries transparently.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("msf: negative offset: %d", off)
	}
	if off >= int64(s.streamSize) {
		return 0, io.EOF
	}

	pos := uint32(off)
	total := 0

	for len(p) > 0 && pos < s.streamSize {
		blockIndex, blockOffset := s.blockLocation(pos)
		if int(blockIndex) >= len(s.blocks) {
			return total, io.EOF
		}

		fileOffset := int64(s.blocks[blockIndex])*int64(s.blockSize) + int64(blockOffset)
		chunk := min(s.blockSize-blockOffset, s.streamSize-pos, uint32(len(p)))

		n, err := s.data.ReadAt(p[:chunk], fileOffset)
		total += n
		p = p[n:]
		pos += uint32(n)

		if err != nil {
			if err == io.EOF && total > 0 {
				break
			}
			return total, err
		}
	}

	if total == 0 && pos >= s.streamSize {
		return 0, io.EOF
	}
	return total, nil
}

// Seek implements io.Seeker; positions beyond the stream's end clamp to it.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = int64(s.pos) + offset
	case io.SeekEnd:
		newPos = int64(s.streamSize) + offset
	default:
		return 0, fmt.Errorf("msf: invalid seek whence: %d", whence)
	}

	if newPos < 0 {
		return 0, fmt.Errorf("msf: negative seek position: %d", newPos)
	}
	if newPos > int64(s.streamSize) {
		newPos = int64(s.streamSize)
	}

	s.pos = uint32(newPos)
	return newPos, nil
}

// Size returns the stream's total byte length.
func (s *Stream) Size() uint32 { return s.streamSize }

// Position returns the current read cursor.
func (s *Stream) Position() uint32 { return s.pos }

// Remaining returns the number of unread bytes ahead of the cursor.
func (s *Stream) Remaining() uint32 {
	if s.pos >= s.streamSize {
		return 0
	}
	return s.streamSize - s.pos
}

// Bytes reads the stream to completion and returns its contents. Intended
// for streams small enough to hold in memory at once.
func (s *Stream) Bytes() ([]byte, error) {
	buf := make([]byte, s.streamSize)
	n, err := s.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// Reset rewinds the cursor to the start of the stream.
func (s *Stream) Reset() { s.pos = 0 }
