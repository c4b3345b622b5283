package storage

import (
	"crypto/sha256"
	"errors"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// AdminStatus is the tri-state result of an admin capability check. A failed
// lookup is never reported as "not an admin": callers must be able to tell
// a denied capability from a broken query.
type AdminStatus int

const (
	// IsAdmin means the token grants administrative capability.
	IsAdmin AdminStatus = iota
	// IsNotAdmin means the lookup succeeded and found no capability.
	IsNotAdmin
	// LookupFailed means the check itself could not complete.
	LookupFailed
)

func (s AdminStatus) String() string {
	switch s {
	case IsAdmin:
		return "admin"
	case IsNotAdmin:
		return "notAdmin"
	case LookupFailed:
		return "lookupFailed"
	}
	return "unknown"
}

func adminKey(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// AddAdminToken grants administrative capability to the given token. Only a
// hash of the token is stored.
func (s *Storage) AddAdminToken(token string) error {
	return s.setArtifact(adminPrefix, adminKey(token), true)
}

// CheckAdmin resolves the capability of a token. The returned error is only
// non-nil when status is LookupFailed.
func (s *Storage) CheckAdmin(token string) (AdminStatus, error) {
	rTx := prefixeddb.NewPrefixedReader(s.db, adminPrefix)
	if _, err := rTx.Get(adminKey(token)); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return IsNotAdmin, nil
		}
		return LookupFailed, err
	}
	return IsAdmin, nil
}
