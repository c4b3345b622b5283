package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is a []byte which encodes as hexadecimal in JSON. The "0x" prefix
// is accepted on input and omitted on output.
type HexBytes []byte

// String returns the hexadecimal representation of the bytes.
func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// SetString decodes a hex string, with or without the "0x" prefix.
func (b *HexBytes) SetString(s string) error {
	s = strings.TrimPrefix(s, "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*b = data
	return nil
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+2)
	enc[0] = '"'
	hex.Encode(enc[1:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	return b.SetString(string(data[1 : len(data)-1]))
}

// HexStringToHexBytes converts a hex string to HexBytes. It strips an
// optional "0x" prefix and panics on invalid input, so it is meant for
// hardcoded constants only.
func HexStringToHexBytes(s string) HexBytes {
	var b HexBytes
	if err := b.SetString(s); err != nil {
		panic(err)
	}
	return b
}
