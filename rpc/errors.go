package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"deltastake/native/bank"
	"deltastake/native/inventory"
	"deltastake/native/staking"
)

var (
	errBadRequest      = errors.New("rpc: bad request")
	errTooManyRequests = errors.New("rpc: too many requests")
	errUnavailable     = errors.New("rpc: endpoint not configured")
)

var (
	forbiddenErrors = []error{staking.ErrUnauthorized, inventory.ErrNotOwner}
	conflictErrors  = []error{
		staking.ErrNotStarted,
		staking.ErrAlreadyStarted,
		staking.ErrDisabled,
		staking.ErrNotDisabled,
		staking.ErrAlreadyStaked,
		staking.ErrTokenFrozen,
		staking.ErrNotStakedOrWrongOwner,
		staking.ErrPeriodNotFundable,
		staking.ErrAlreadyWithdrawn,
		staking.ErrCycleNotElapsed,
		staking.ErrNonZeroWeight,
		inventory.ErrTokenExists,
	}
	badRequestErrors = []error{
		errBadRequest,
		staking.ErrWrongToken,
		staking.ErrContractNotWhitelisted,
		staking.ErrInvalidQuantity,
		staking.ErrInvalidRange,
		staking.ErrInvalidAmount,
		staking.ErrInvalidSnapshot,
		staking.ErrZeroAddress,
		inventory.ErrUnknownToken,
		inventory.ErrZeroRecipient,
		bank.ErrInvalidAmount,
	}
)

// statusFor maps an engine or collaborator error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, staking.ErrTransferFailed):
		return http.StatusBadGateway
	case matchesAny(err, forbiddenErrors):
		return http.StatusForbidden
	case matchesAny(err, conflictErrors):
		return http.StatusConflict
	case matchesAny(err, badRequestErrors):
		return http.StatusBadRequest
	case errors.Is(err, errUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		message = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: message})
}

// writeEngineError reports err with its mapped status. Internal errors are not
// echoed to the client.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		s.logger.Error("rpc: request failed", "path", r.URL.Path, "error", err)
		writeError(w, status, nil)
		return
	}
	writeError(w, status, err)
}
