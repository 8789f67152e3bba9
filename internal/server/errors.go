package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/phinze/fpdeck/internal/coordinator"
	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Retry string `json:"retry,omitempty"`
}

// statusFor maps an action error onto an HTTP status.
func statusFor(err error) int {
	var devErr *device.Error
	switch {
	case errors.Is(err, coordinator.ErrUnknownDevice), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidKey), errors.Is(err, print.ErrInvalid):
		return http.StatusBadRequest
	case device.IsCancelled(err):
		return http.StatusServiceUnavailable
	}
	if _, ok := device.AsRetry(err); ok {
		return http.StatusUnprocessableEntity
	}
	if errors.As(err, &devErr) {
		switch devErr.Code {
		case device.CodeBusy, device.CodeNotOpen, device.CodeAlreadyOpen:
			return http.StatusConflict
		case device.CodeNotSupported:
			return http.StatusNotImplemented
		case device.CodeDataNotFound:
			return http.StatusNotFound
		case device.CodeDataInvalid:
			return http.StatusBadRequest
		case device.CodeDataFull:
			return http.StatusInsufficientStorage
		}
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var devErr *device.Error
	if errors.As(err, &devErr) {
		resp.Code = devErr.Code.String()
	}
	if retry, ok := device.AsRetry(err); ok {
		resp.Retry = retry.Code.String()
	}
	writeJSON(w, statusFor(err), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
