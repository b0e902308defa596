package cache

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fernet/fernet-go"
)

// Wire format: one flags byte, a big-endian 4-byte payload length, then
// the payload. Decode order on read: un-Fernet, un-zlib, parse JSON.
const (
	flagCompressed byte = 1 << 0
	flagEncrypted  byte = 1 << 1

	headerSize = 5
)

// codec serializes cache values to the blob format shared by both
// tiers.
type codec struct {
	compressionLevel     int // 0 disables
	compressionThreshold int
	key                  *fernet.Key // nil disables encryption
}

func newCodec(level, threshold int, encryptionKey string) (*codec, error) {
	c := &codec{
		compressionLevel:     level,
		compressionThreshold: threshold,
	}
	if encryptionKey != "" {
		k, err := fernet.DecodeKey(encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("decode encryption key: %w", err)
		}
		c.key = k
	}
	return c, nil
}

// Encode wraps a JSON payload in the wire format. compressed reports
// whether the compression path ran, for metering.
func (c *codec) Encode(payload []byte) (blob []byte, compressed bool, err error) {
	var flags byte

	if c.compressionLevel > 0 && len(payload) >= c.compressionThreshold {
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, c.compressionLevel)
		if err != nil {
			return nil, false, fmt.Errorf("zlib writer: %w", err)
		}
		if _, err := zw.Write(payload); err != nil {
			return nil, false, fmt.Errorf("compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, false, fmt.Errorf("compress: %w", err)
		}
		payload = buf.Bytes()
		flags |= flagCompressed
		compressed = true
	}

	if c.key != nil {
		payload, err = fernet.EncryptAndSign(payload, c.key)
		if err != nil {
			return nil, false, fmt.Errorf("encrypt: %w", err)
		}
		flags |= flagEncrypted
	}

	blob = make([]byte, headerSize+len(payload))
	blob[0] = flags
	binary.BigEndian.PutUint32(blob[1:headerSize], uint32(len(payload)))
	copy(blob[headerSize:], payload)
	return blob, compressed, nil
}

// errDecrypt marks a blob that failed authentication; the facade maps
// it to a miss to allow migration from unencrypted stores.
var errDecrypt = fmt.Errorf("cache blob failed decryption")

// Decode unwraps a wire-format blob back to the JSON payload.
func (c *codec) Decode(blob []byte) ([]byte, error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("cache blob truncated: %d bytes", len(blob))
	}
	flags := blob[0]
	length := binary.BigEndian.Uint32(blob[1:headerSize])
	if int(length) != len(blob)-headerSize {
		return nil, fmt.Errorf("cache blob length mismatch: header %d, payload %d", length, len(blob)-headerSize)
	}
	payload := blob[headerSize:]

	if flags&flagEncrypted != 0 {
		if c.key == nil {
			return nil, errDecrypt
		}
		plain := fernet.VerifyAndDecrypt(payload, 0, []*fernet.Key{c.key})
		if plain == nil {
			return nil, errDecrypt
		}
		payload = plain
	}

	if flags&flagCompressed != 0 {
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("zlib reader: %w", err)
		}
		defer zr.Close()
		payload, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
	}

	return payload, nil
}
