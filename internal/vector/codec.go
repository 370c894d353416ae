package vector

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how the index blob payload is compressed on disk.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZSTD Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

var blobMagic = [4]byte{'K', 'N', 'S', 'V'}

const blobVersion = 1

var compressionCodes = map[Compression]byte{
	CompressionNone: 0,
	CompressionZSTD: 1,
	CompressionLZ4:  2,
}

// ParseCompression maps a config value to a Compression. Empty means none.
func ParseCompression(s string) (Compression, error) {
	if s == "" {
		return CompressionNone, nil
	}
	c := Compression(s)
	if _, ok := compressionCodes[c]; !ok {
		return "", fmt.Errorf("unknown compression: %s (supported: none, zstd, lz4)", s)
	}
	return c, nil
}

// EncodeBlob writes idx as a self-describing blob: magic (4), version (1), compression (1), payload.
func EncodeBlob(w io.Writer, idx VectorIndex, c Compression) error {
	code, ok := compressionCodes[c]
	if !ok {
		return fmt.Errorf("unknown compression: %s", c)
	}
	header := append(blobMagic[:], blobVersion, code)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write blob header: %w", err)
	}
	switch c {
	case CompressionZSTD:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		if err := idx.Encode(enc); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		if err := idx.Encode(zw); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	default:
		return idx.Encode(w)
	}
}

// DecodeBlob reads a blob written by EncodeBlob into idx. The compression is taken from the header.
func DecodeBlob(r io.Reader, idx VectorIndex) error {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("read blob header: %w", err)
	}
	if !bytes.Equal(header[:4], blobMagic[:]) {
		return fmt.Errorf("not a vector index blob")
	}
	if header[4] != blobVersion {
		return fmt.Errorf("unsupported blob version %d", header[4])
	}
	switch header[5] {
	case compressionCodes[CompressionNone]:
		return idx.Decode(r)
	case compressionCodes[CompressionZSTD]:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("create zstd reader: %w", err)
		}
		defer dec.Close()
		return idx.Decode(dec)
	case compressionCodes[CompressionLZ4]:
		return idx.Decode(lz4.NewReader(r))
	default:
		return fmt.Errorf("unknown blob compression code %d", header[5])
	}
}
