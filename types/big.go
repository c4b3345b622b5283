package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt wraps math/big.Int so that field elements cross the wire and the
// storage boundary as decimal strings, which is the representation the proof
// circuit tooling expects.
type BigInt big.Int

// NewBigInt returns a BigInt wrapping the given big.Int (nil-safe).
func NewBigInt(i *big.Int) *BigInt {
	if i == nil {
		return nil
	}
	return (*BigInt)(new(big.Int).Set(i))
}

// MathBigInt converts b to a math/big.Int.
func (b *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(b)
}

// SetUint64 sets b to v and returns b.
func (b *BigInt) SetUint64(v uint64) *BigInt {
	return (*BigInt)((*big.Int)(b).SetUint64(v))
}

// String returns the decimal representation of b.
func (b *BigInt) String() string {
	return (*big.Int)(b).String()
}

// Equal reports whether b and other hold the same value.
func (b *BigInt) Equal(other *BigInt) bool {
	if b == nil || other == nil {
		return b == other
	}
	return (*big.Int)(b).Cmp((*big.Int)(other)) == 0
}

// MarshalText implements encoding.TextMarshaler, so JSON encodes b as a
// quoted decimal string.
func (b *BigInt) MarshalText() ([]byte, error) {
	return []byte((*big.Int)(b).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BigInt) UnmarshalText(data []byte) error {
	if _, ok := (*big.Int)(b).SetString(string(data), 10); !ok {
		return fmt.Errorf("invalid decimal integer %q", data)
	}
	return nil
}

// MarshalCBOR encodes b as a CBOR text string with its decimal value.
func (b *BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal((*big.Int)(b).String())
}

// UnmarshalCBOR decodes a CBOR text string holding a decimal value.
func (b *BigInt) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	return b.UnmarshalText([]byte(s))
}
