package erg

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// type codes in the sigma serialization
	booleanTypeCode  = 0x01
	collByteTypeCode = 0x0e
)

var (
	ErrNotCollByte = errors.New("value is not a serialized Coll[Byte]")
	ErrInvalidUTF8 = errors.New("bytes are not valid utf-8")
)

func putVLQ(buf []byte, n uint64) []byte {
	for n >= 0x80 {
		buf = append(buf, byte(n)|0x80)
		n >>= 7
	}
	return append(buf, byte(n))
}

func readVLQ(b []byte) (uint64, int, error) {
	var n uint64
	var shift uint
	for i, c := range b {
		if shift > 63 {
			return 0, 0, fmt.Errorf("vlq overflows 64 bits")
		}
		n |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return n, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("truncated vlq")
}

// SerializeCollByte encodes raw bytes as a sigma Coll[Byte] constant and
// returns it hex encoded.
func SerializeCollByte(b []byte) string {
	buf := make([]byte, 0, len(b)+4)
	buf = append(buf, collByteTypeCode)
	buf = putVLQ(buf, uint64(len(b)))
	buf = append(buf, b...)
	return hex.EncodeToString(buf)
}

// SerializeBool encodes a sigma Boolean constant.
func SerializeBool(b bool) string {
	v := byte(0)
	if b {
		v = 1
	}
	return hex.EncodeToString([]byte{booleanTypeCode, v})
}

// SerializedToRendered turns a hex serialized Coll[Byte] into the rendered
// form explorers index registers by, which is the hex of the payload.
func SerializedToRendered(serialized string) (string, error) {
	raw, err := hex.DecodeString(serialized)
	if err != nil {
		return "", fmt.Errorf("invalid serialized value - %s", err.Error())
	}
	if len(raw) == 0 || raw[0] != collByteTypeCode {
		return "", ErrNotCollByte
	}

	size, n, err := readVLQ(raw[1:])
	if err != nil {
		return "", fmt.Errorf("invalid Coll[Byte] length - %s", err.Error())
	}

	payload := raw[1+n:]
	if uint64(len(payload)) != size {
		return "", fmt.Errorf("Coll[Byte] length %d does not match payload of %d bytes", size, len(payload))
	}

	return hex.EncodeToString(payload), nil
}

// RenderCollByte renders a hex id the way a register search filter expects.
func RenderCollByte(hexValue string) (string, error) {
	raw, err := hex.DecodeString(hexValue)
	if err != nil {
		return "", fmt.Errorf("invalid hex value %q - %s", hexValue, err.Error())
	}
	return SerializedToRendered(SerializeCollByte(raw))
}

// HexToUTF8 decodes a rendered Coll[Byte] into text.
func HexToUTF8(rendered string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(rendered))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", ErrInvalidUTF8
	}
	return string(raw), nil
}

// RenderedBool reports whether a rendered Boolean register holds true.
func RenderedBool(rendered string) bool {
	return strings.EqualFold(strings.TrimSpace(rendered), "true")
}
