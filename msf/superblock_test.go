package msf

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildSuperBlock(t *testing.T, blockSize, fpmBlock, numBlocks, dirBytes, blockMapAddr uint32) []byte {
	t.Helper()
	buf := make([]byte, SuperBlockSize)
	copy(buf, Magic)
	binary.LittleEndian.PutUint32(buf[32:], blockSize)
	binary.LittleEndian.PutUint32(buf[36:], fpmBlock)
	binary.LittleEndian.PutUint32(buf[40:], numBlocks)
	binary.LittleEndian.PutUint32(buf[44:], dirBytes)
	binary.LittleEndian.PutUint32(buf[48:], 0)
	binary.LittleEndian.PutUint32(buf[52:], blockMapAddr)
	return buf
}

func TestReadSuperBlockValid(t *testing.T) {
	data := buildSuperBlock(t, BlockSize4096, 1, 10, 64, 3)

	sb, err := ReadSuperBlock(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadSuperBlock failed: %v", err)
	}
	if sb.BlockSize != BlockSize4096 {
		t.Errorf("BlockSize = %d, want %d", sb.BlockSize, BlockSize4096)
	}
	if sb.NumBlocks != 10 {
		t.Errorf("NumBlocks = %d, want 10", sb.NumBlocks)
	}
	if sb.FileSize() != int64(10*BlockSize4096) {
		t.Errorf("FileSize() = %d, want %d", sb.FileSize(), 10*BlockSize4096)
	}
}

func TestReadSuperBlockBadMagic(t *testing.T) {
	data := buildSuperBlock(t, BlockSize4096, 1, 10, 64, 3)
	data[0] = 'X'

	_, err := ReadSuperBlock(bytes.NewReader(data))
	if err != ErrInvalidMagic {
		t.Fatalf("err = %v, want ErrInvalidMagic", err)
	}
}

func TestReadSuperBlockBadBlockSize(t *testing.T) {
	tests := []struct {
		name      string
		blockSize uint32
	}{
		{"not a power of two", 3000},
		{"below minimum", 256},
		{"above maximum", 131072},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := buildSuperBlock(t, tt.blockSize, 1, 10, 64, 3)
			_, err := ReadSuperBlock(bytes.NewReader(data))
			if err != ErrInvalidBlockSize {
				t.Fatalf("err = %v, want ErrInvalidBlockSize", err)
			}
		})
	}
}

func TestReadSuperBlockBadFPMBlock(t *testing.T) {
	data := buildSuperBlock(t, BlockSize4096, 5, 10, 64, 3)
	_, err := ReadSuperBlock(bytes.NewReader(data))
	if err != ErrInvalidFPMBlock {
		t.Fatalf("err = %v, want ErrInvalidFPMBlock", err)
	}
}

func TestReadSuperBlockTruncated(t *testing.T) {
	data := buildSuperBlock(t, BlockSize4096, 1, 10, 64, 3)
	_, err := ReadSuperBlock(bytes.NewReader(data[:10]))
	if err != ErrTruncatedFile {
		t.Fatalf("err = %v, want ErrTruncatedFile", err)
	}
}

func TestNumDirectoryBlocks(t *testing.T) {
	sb := &SuperBlock{BlockSize: 4096, NumDirectoryBytes: 8193}
	if got := sb.NumDirectoryBlocks(); got != 3 {
		t.Errorf("NumDirectoryBlocks() = %d, want 3", got)
	}
}

func TestBlockOffset(t *testing.T) {
	sb := &SuperBlock{BlockSize: 4096}
	if got := sb.BlockOffset(2); got != 8192 {
		t.Errorf("BlockOffset(2) = %d, want 8192", got)
	}
}
