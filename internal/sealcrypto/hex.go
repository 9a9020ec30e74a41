package sealcrypto

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func hexToBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("hex: empty string")
	}
	ss := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if len(ss)%2 != 0 {
		return nil, fmt.Errorf("hex: odd length")
	}
	b, err := hex.DecodeString(ss)
	if err != nil {
		return nil, fmt.Errorf("hex: %w", err)
	}
	return b, nil
}

func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func PointFromHex(s string) (Point, error) {
	b, err := hexToBytes(s)
	if err != nil {
		return Point{}, err
	}
	return PointFromBytesCanonical(b)
}

func ScalarFromHex(s string) (Scalar, error) {
	b, err := hexToBytes(s)
	if err != nil {
		return Scalar{}, err
	}
	return ScalarFromBytesCanonical(b)
}
