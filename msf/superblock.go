// Package msf provides parsing for the MSF (Multi-Stream File) container format
// used by Microsoft PDB files.
package msf

import (
	"errors"
	"fmt"
	"io"

	"github.com/skdltmxn/pdb-go/internal/stream"
)

// Magic is the 32-byte signature at the start of every PDB 7.0 ("BigMsf") file.
const Magic = "Microsoft C/C++ MSF 7.00\r\n\x1a\x44\x53\x00\x00\x00"

// MagicSize is the length in bytes of Magic.
const MagicSize = 32

// SuperBlockSize is the on-disk size of the SuperBlock, magic included.
const SuperBlockSize = 56

// Block sizes an MSF container may declare. 4096 ("BigMsf") dominates in
// practice; the rest exist for older toolchains.
const (
	BlockSizeMin   uint32 = 512
	BlockSize512   uint32 = 512
	BlockSize1024  uint32 = 1024
	BlockSize2048  uint32 = 2048
	BlockSize4096  uint32 = 4096
	BlockSize8192  uint32 = 8192
	BlockSize16384 uint32 = 16384
	BlockSize32768 uint32 = 32768
	BlockSizeMax   uint32 = 65536
)

var (
	ErrInvalidMagic     = errors.New("msf: invalid magic signature, not a valid PDB file")
	ErrInvalidBlockSize = errors.New("msf: invalid block size")
	ErrInvalidFPMBlock  = errors.New("msf: invalid free block map block index")
	ErrTruncatedFile    = errors.New("msf: file is truncated")
)

// SuperBlock sits at file offset 0 and describes the container's block
// layout and the location of the stream directory.
type SuperBlock struct {
	// FileMagic must read back as Magic.
	FileMagic [MagicSize]byte

	// BlockSize is the container's page size.
	BlockSize uint32

	// FreeBlockMapBlock names which of the two FPM copies (block 1 or 2)
	// is currently active; MSF alternates between them for atomic commits.
	FreeBlockMapBlock uint32

	// NumBlocks times BlockSize should equal the file size.
	NumBlocks uint32

	// NumDirectoryBytes is the size in bytes of the stream directory.
	NumDirectoryBytes uint32

	// Unknown is reserved and always 0 in practice.
	Unknown uint32

	// BlockMapAddr points at the block holding the array of block indices
	// that make up the (possibly multi-block) stream directory.
	BlockMapAddr uint32
}

// ReadSuperBlock reads and validates a SuperBlock from r, which must be
// positioned at the start of the PDB file.
func ReadSuperBlock(r io.Reader) (*SuperBlock, error) {
	raw := make([]byte, SuperBlockSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrTruncatedFile
		}
		return nil, fmt.Errorf("msf: failed to read superblock: %w", err)
	}

	sb, err := decodeSuperBlock(raw)
	if err != nil {
		return nil, err
	}
	if err := sb.Validate(); err != nil {
		return nil, err
	}
	return sb, nil
}

func decodeSuperBlock(raw []byte) (*SuperBlock, error) {
	rd := stream.NewReader(raw)
	var sb SuperBlock

	magic, err := rd.ReadBytes(MagicSize)
	if err != nil {
		return nil, ErrTruncatedFile
	}
	copy(sb.FileMagic[:], magic)

	fields := []*uint32{
		&sb.BlockSize,
		&sb.FreeBlockMapBlock,
		&sb.NumBlocks,
		&sb.NumDirectoryBytes,
		&sb.Unknown,
		&sb.BlockMapAddr,
	}
	for _, f := range fields {
		v, err := rd.ReadU32()
		if err != nil {
			return nil, ErrTruncatedFile
		}
		*f = v
	}

	return &sb, nil
}

// Validate checks the SuperBlock for internal consistency: a recognized
// magic, a power-of-two block size in range, and a sane FPM block index.
func (sb *SuperBlock) Validate() error {
	if string(sb.FileMagic[:]) != Magic {
		return ErrInvalidMagic
	}
	if !sb.blockSizeValid() {
		return ErrInvalidBlockSize
	}
	if sb.FreeBlockMapBlock != 1 && sb.FreeBlockMapBlock != 2 {
		return ErrInvalidFPMBlock
	}
	return nil
}

func (sb *SuperBlock) blockSizeValid() bool {
	if sb.BlockSize < BlockSizeMin || sb.BlockSize > BlockSizeMax {
		return false
	}
	return sb.BlockSize&(sb.BlockSize-1) == 0
}

// NumDirectoryBlocks returns how many blocks the stream directory spans.
func (sb *SuperBlock) NumDirectoryBlocks() uint32 {
	return (sb.NumDirectoryBytes + sb.BlockSize - 1) / sb.BlockSize
}

// FileSize returns the file size implied by NumBlocks and BlockSize.
func (sb *SuperBlock) FileSize() int64 {
	return int64(sb.NumBlocks) * int64(sb.BlockSize)
}

// BlockOffset returns the byte offset at which blockNum begins.
func (sb *SuperBlock) BlockOffset(blockNum uint32) int64 {
	return int64(blockNum) * int64(sb.BlockSize)
}
