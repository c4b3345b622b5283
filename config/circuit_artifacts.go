package config

const (
	// Membership circuit constants, built from the circom sources at
	// github.com/anonvote/membership-circuits
	MembershipCircuitURL          = "https://circuits.ams3.cdn.digitaloceanspaces.com/anonvote/dev/membership.wasm"
	MembershipCircuitHash         = "8b6c9f1a5f0f3dd0c8a26a01753ea88030c1e74b8e9f5c33baf2f5f0a6a0b344"
	MembershipProvingKeyURL       = "https://circuits.ams3.cdn.digitaloceanspaces.com/anonvote/dev/membership_pkey.zkey"
	MembershipProvingKeyHash      = "2f4e9c0317dd7e6ac12703cf5c39b1c2ea69cbe0d34c0e7a906f1f6f5fd20c19"
	MembershipVerificationKeyURL  = "https://circuits.ams3.cdn.digitaloceanspaces.com/anonvote/dev/membership_vkey.json"
	MembershipVerificationKeyHash = "b1d3c02a7c9f65f47fd07a3c0b5f83b5d1d2ce218e58c9f33a21e5b49163a47d"
)
