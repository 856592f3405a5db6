package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/pkg/httputil"
	"github.com/ignite/prospect-cadence/internal/warmup"
	"github.com/ignite/prospect-cadence/internal/worker"
)

// GetWarmup returns the warm-up ramp of an account.
//
//	GET /api/accounts/{id}/warmup
func (h *Handlers) GetWarmup(w http.ResponseWriter, r *http.Request) {
	p, err := h.warmups.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.warmupError(w, err)
		return
	}
	httputil.OK(w, p)
}

// StartWarmup enrolls an account in a ramp. The body may carry custom steps.
//
//	POST /api/accounts/{id}/warmup
func (h *Handlers) StartWarmup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Steps []domain.WarmupStep `json:"steps"`
	}
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := h.store.GetChannelAccount(ctx, id); err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			httputil.NotFound(w, "channel account not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	steps := req.Steps
	if len(steps) == 0 {
		steps = h.opts.WarmupSteps
	}
	p, err := h.warmups.Start(ctx, id, steps)
	if err != nil {
		h.warmupError(w, err)
		return
	}
	httputil.Created(w, p)
}

// OverrideWarmup sets the day and/or daily limit by hand.
//
//	PUT /api/accounts/{id}/warmup
func (h *Handlers) OverrideWarmup(w http.ResponseWriter, r *http.Request) {
	var in warmup.OverrideInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	p, err := h.warmups.Override(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.warmupError(w, err)
		return
	}
	httputil.OK(w, p)
}

func (h *Handlers) warmupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, warmup.ErrNotFound):
		httputil.NotFound(w, "warm-up not found")
	case errors.Is(err, warmup.ErrAlreadyStarted):
		httputil.Conflict(w, "warm-up already started")
	case errors.Is(err, warmup.ErrInvalidInput):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
