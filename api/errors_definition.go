//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 400, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500, 502 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If you notice there's a gap (say, error code 40010, 40011 and 40013 exist, 40012 is missing) DON'T fill in the gap,
// that code was used in the past for some error (not anymore) and shouldn't be reused.
var (
	ErrResourceNotFound     = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody        = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedElectionID  = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed election ID")}
	ErrElectionNotFound     = Error{Code: 40004, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("election not found")}
	ErrVoterNotInvited      = Error{Code: 40005, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("voter not invited")}
	ErrRegistrationClosed   = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("registration is closed")}
	ErrAlreadyRegistered    = Error{Code: 40007, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("voter already registered")}
	ErrElectionNotFinalized = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("election not finalized")}
	ErrAlreadyFinalized     = Error{Code: 40009, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("election already finalized")}
	ErrNoVoters             = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("election has no registered voters")}
	ErrContractNotDeployed  = Error{Code: 40011, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("no ledger contract deployed")}
	ErrLeafNotFound         = Error{Code: 40012, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("leaf not found in the election leaf set")}
	ErrUnauthorized         = Error{Code: 40013, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("admin token required")}
	ErrElectionFull         = Error{Code: 40014, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("election is at voter capacity")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	// ErrLedgerUnavailable is retryable: local state was rolled back.
	ErrLedgerUnavailable = Error{Code: 50003, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("ledger publication failed, retry later")}
	// ErrCriticalInconsistency is NOT retryable: the on-chain write went
	// through but local persistence failed. An operator incident exists.
	ErrCriticalInconsistency = Error{Code: 50004, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("on-chain state diverged from local state, operator intervention required")}
	// ErrAdminCheckUnavailable means the capability lookup itself failed,
	// which is not the same as the token not being an admin token.
	ErrAdminCheckUnavailable = Error{Code: 50005, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("admin capability check unavailable")}
)
