package api

import (
	"errors"
	"net/http"

	"github.com/openfed/manage/pkg/httputil"
	"github.com/openfed/manage/pkg/model"
)

// writeEngineError maps domain errors onto HTTP status codes. Anything not
// covered by the taxonomy is a 500.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var notFound *model.NotFoundError
	var duplicate *model.DuplicateEntityIDError
	var validation *model.ValidationError
	var conflict *model.ConflictError
	var illegalState *model.IllegalStateError
	var policy *model.PolicyViolationError

	switch {
	case errors.As(err, &notFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.As(err, &validation):
		httputil.WriteDetailedError(w, http.StatusBadRequest, err, validation.Messages)
	case errors.As(err, &duplicate), errors.As(err, &illegalState):
		httputil.WriteBadRequest(w, err.Error())
	case errors.As(err, &conflict):
		httputil.WriteConflict(w, err.Error())
	case errors.As(err, &policy):
		httputil.WriteErrorMessage(w, http.StatusForbidden, err.Error())
	default:
		s.log.WithError(err).Error("request failed")
		httputil.WriteInternalError(w, err)
	}
}
