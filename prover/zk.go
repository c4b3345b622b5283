package prover

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/witness"

	"github.com/anonvote/anonvote/circuits"
	"github.com/anonvote/anonvote/types"
)

// CircuitArtifacts holds the compiled membership circuit and its proving key.
// The circuit itself is an external artifact: this adapter only drives the
// witness calculator and the Groth16 prover over it.
type CircuitArtifacts struct {
	wasm       []byte
	provingKey []byte
}

// LoadCircuitArtifacts reads the circom wasm and the zkey from disk.
func LoadCircuitArtifacts(wasmPath, zkeyPath string) (*CircuitArtifacts, error) {
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("read circuit wasm: %w", err)
	}
	zkey, err := os.ReadFile(zkeyPath)
	if err != nil {
		return nil, fmt.Errorf("read proving key: %w", err)
	}
	return &CircuitArtifacts{wasm: wasm, provingKey: zkey}, nil
}

// CachedCircuitArtifacts loads the membership circuit artifacts from the
// local artifact cache, which must have been populated beforehand (see
// service.DownloadArtifacts).
func CachedCircuitArtifacts() (*CircuitArtifacts, error) {
	if err := circuits.MembershipArtifacts.LoadAll(); err != nil {
		return nil, fmt.Errorf("load membership circuit artifacts: %w", err)
	}
	return &CircuitArtifacts{
		wasm:       circuits.MembershipArtifacts.CircuitDefinition(),
		provingKey: circuits.MembershipArtifacts.ProvingKey(),
	}, nil
}

// circuitInputs is the JSON shape the membership circuit consumes. All field
// elements travel as decimal strings.
type circuitInputs struct {
	Secret       string   `json:"secret"`
	Leaf         string   `json:"leaf"`
	Root         string   `json:"root"`
	PathElements []string `json:"pathElements"`
	PathIndices  []int    `json:"pathIndices"`
}

// Prove calculates the circuit witness for w and generates a Groth16 proof.
// It returns the proof and the public signals as JSON strings.
func (ca *CircuitArtifacts) Prove(w *types.MerkleProofWitness) (string, string, error) {
	elems := make([]string, len(w.PathElements))
	for i, e := range w.PathElements {
		elems[i] = e.String()
	}
	inputs, err := json.Marshal(circuitInputs{
		Secret:       w.Secret.String(),
		Leaf:         w.Leaf.String(),
		Root:         w.Root.String(),
		PathElements: elems,
		PathIndices:  w.PathIndices,
	})
	if err != nil {
		return "", "", err
	}
	finalInputs, err := witness.ParseInputs(inputs)
	if err != nil {
		return "", "", fmt.Errorf("parse circuit inputs: %w", err)
	}
	calc, err := witness.NewCircom2WitnessCalculator(ca.wasm, true)
	if err != nil {
		return "", "", fmt.Errorf("instance witness calculator: %w", err)
	}
	wtns, err := calc.CalculateWTNSBin(finalInputs, true)
	if err != nil {
		return "", "", fmt.Errorf("calculate witness: %w", err)
	}
	return prover.Groth16ProverRaw(ca.provingKey, wtns)
}
