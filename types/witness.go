package types

import "encoding/json"

// MerkleProofWitness is the membership witness handed to the proof circuit.
// It is produced fresh on every proof request and never persisted, since it
// encodes a claim against the current leaf set.
type MerkleProofWitness struct {
	Secret       *BigInt   `json:"secret"`
	Leaf         *BigInt   `json:"leaf"`
	Root         *BigInt   `json:"root"`
	PathElements []*BigInt `json:"pathElements"`
	PathIndices  []int     `json:"pathIndices"`
}

func (w *MerkleProofWitness) String() string {
	data, err := json.Marshal(w)
	if err != nil {
		return ""
	}
	return string(data)
}
