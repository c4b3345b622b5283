package registry

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

func encodeRecord(rec *leafRecord) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode leaf record: %w", err)
	}
	return em.Marshal(rec)
}

func decodeRecord(data []byte, rec *leafRecord) error {
	return cbor.Unmarshal(data, rec)
}
