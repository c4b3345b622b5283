package types

const (
	// DefaultTreeDepth is the Merkle tree depth used when an election does
	// not configure one.
	DefaultTreeDepth = 16
	// MaxTreeDepth bounds the configurable depth; 2^32 leaves is already far
	// beyond any realistic voter registry.
	MaxTreeDepth = 32
)
