package circuits

import (
	"github.com/anonvote/anonvote/config"
	"github.com/anonvote/anonvote/types"
)

// Membership circuit artifacts. The circuit proves knowledge of a secret
// whose leaf hash sits under a published Merkle root; the prover package
// drives the witness calculator and Groth16 prover over these artifacts.
var (
	MembershipWasm = &Artifact{
		RemoteURL: config.MembershipCircuitURL,
		Hash:      types.HexStringToHexBytes(config.MembershipCircuitHash),
	}
	MembershipProvingKey = &Artifact{
		RemoteURL: config.MembershipProvingKeyURL,
		Hash:      types.HexStringToHexBytes(config.MembershipProvingKeyHash),
	}
	MembershipArtifacts = NewCircuitArtifacts(MembershipWasm, MembershipProvingKey, nil)
)
