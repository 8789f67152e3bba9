package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phinze/fpdeck/internal/coordinator"
	"github.com/phinze/fpdeck/internal/device"
	"github.com/phinze/fpdeck/internal/print"
	"github.com/phinze/fpdeck/internal/storage"
)

// Devices is the part of the coordinator the handlers need.
type Devices interface {
	Statuses() []coordinator.Status
	Lookup(id string) (*device.Device, error)
}

// DeviceHandler serves the device endpoints.
type DeviceHandler struct {
	Devices Devices
	Store   storage.Store
}

// PrintSummary is the public view of an enrolled print.
type PrintSummary struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Finger       string `json:"finger"`
	Description  string `json:"description,omitempty"`
	EnrollDate   string `json:"enroll_date,omitempty"`
	DeviceStored bool   `json:"device_stored"`
}

func summarize(p *print.Print) PrintSummary {
	s := PrintSummary{
		ID:           p.ID,
		Username:     p.Username,
		Finger:       p.Finger.String(),
		Description:  p.Description,
		DeviceStored: p.DeviceStored,
	}
	if !p.EnrollDate.IsZero() {
		s.EnrollDate = p.EnrollDate.Format(print.DateFormat)
	}
	return s
}

// MatchResponse is returned by verify and identify.
type MatchResponse struct {
	Match bool          `json:"match"`
	Print *PrintSummary `json:"print,omitempty"`
}

// VerifyRequest names the enrolled print to verify against.
type VerifyRequest struct {
	Username string `json:"username"`
	Finger   string `json:"finger"`
}

// List handles GET /api/devices.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Devices.Statuses())
}

// Prints handles GET /api/devices/{id}/prints and lists the prints the
// host store holds for the device.
func (h *DeviceHandler) Prints(w http.ResponseWriter, r *http.Request) {
	d, err := h.Devices.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	info := d.Info()
	prints, err := h.Store.List(r.Context(), info.Driver, info.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]PrintSummary, 0, len(prints))
	for _, p := range prints {
		out = append(out, summarize(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// Verify handles POST /api/devices/{id}/verify. It blocks until a finger
// is scanned or the request is cancelled.
func (h *DeviceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	d, err := h.Devices.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	finger, err := print.ParseFinger(req.Finger)
	if err != nil {
		writeError(w, err)
		return
	}

	enrolled, err := h.load(r.Context(), d, req.Username, finger)
	if err != nil {
		writeError(w, err)
		return
	}
	ok, _, err := d.Verify(r.Context(), enrolled)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := MatchResponse{Match: ok}
	if ok {
		s := summarize(enrolled)
		resp.Print = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// Identify handles POST /api/devices/{id}/identify against every print the
// host store holds for the device.
func (h *DeviceHandler) Identify(w http.ResponseWriter, r *http.Request) {
	d, err := h.Devices.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	info := d.Info()
	gallery, err := h.Store.List(r.Context(), info.Driver, info.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	match, _, err := d.Identify(r.Context(), gallery)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := MatchResponse{Match: match != nil}
	if match != nil {
		s := summarize(match)
		resp.Print = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/devices/{id}/prints/{username}/{finger}. The
// print is removed from the device first when it was stored there.
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	d, err := h.Devices.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	finger, err := print.ParseFinger(chi.URLParam(r, "finger"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.load(r.Context(), d, chi.URLParam(r, "username"), finger)
	if err != nil {
		writeError(w, err)
		return
	}
	if p.DeviceStored {
		if err := d.DeletePrint(r.Context(), p); err != nil && !errors.Is(err, device.ErrDataNotFound) {
			writeError(w, err)
			return
		}
	}
	if err := h.Store.Delete(r.Context(), storage.KeyOf(p)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) load(ctx context.Context, d *device.Device, username string, finger print.Finger) (*print.Print, error) {
	info := d.Info()
	p, err := h.Store.Load(ctx, storage.Key{
		Driver:   info.Driver,
		DeviceID: info.DeviceID,
		Username: username,
		Finger:   finger,
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s's %s: %w", username, finger, err)
	}
	return p, nil
}
