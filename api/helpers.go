package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/storage"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// urlElectionID parses the election id URL parameter. The boolean is false if
// the parameter is malformed, in which case the error response was already
// written.
func urlElectionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, ElectionURLParam))
	if err != nil {
		ErrMalformedElectionID.WithErr(err).Write(w)
		return uuid.Nil, false
	}
	return id, true
}

// adminAuthorized checks the bearer token of the request against the admin
// capability store. A failed lookup is reported as unavailable, never as a
// plain rejection. The boolean is false if the request is not authorized, in
// which case the error response was already written.
func (a *API) adminAuthorized(w http.ResponseWriter, r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		ErrUnauthorized.With("missing bearer token").Write(w)
		return false
	}
	status, err := a.storage.CheckAdmin(token)
	switch status {
	case storage.IsAdmin:
		return true
	case storage.IsNotAdmin:
		ErrUnauthorized.Write(w)
		return false
	default:
		ErrAdminCheckUnavailable.WithErr(err).Write(w)
		return false
	}
}
