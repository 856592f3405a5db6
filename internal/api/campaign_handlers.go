package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/prospect-cadence/internal/cadence"
	"github.com/ignite/prospect-cadence/internal/domain"
	"github.com/ignite/prospect-cadence/internal/pkg/httputil"
	"github.com/ignite/prospect-cadence/internal/queue"
	"github.com/ignite/prospect-cadence/internal/scoring"
	"github.com/ignite/prospect-cadence/internal/worker"
)

type createCampaignRequest struct {
	domain.Campaign
	LeadIDs []string       `json:"lead_ids"`
	Rules   []scoring.Rule `json:"scoring_rules"`
}

// CreateCampaign creates a campaign and enrolls its leads as pending links.
//
//	POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	c := req.Campaign
	c.DailySent = 0
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignActive {
		httputil.BadRequest(w, "a new campaign must be draft or active")
		return
	}
	if c.OrganizationID == "" {
		httputil.BadRequest(w, "organization_id is required")
		return
	}
	if err := c.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := cadence.ValidateWindow(c.Window); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := scoring.Validate(req.Rules); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	enrolled, err := h.store.CreateCampaign(r.Context(), &c, req.LeadIDs, req.Rules)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, map[string]any{"campaign": c, "enrolled": enrolled})
}

// GetCampaign returns one campaign.
//
//	GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, worker.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, c)
}

// ResumeCampaign moves a paused campaign back to active. Campaigns paused by
// the anti-ban monitor only come back through here.
//
//	POST /api/campaigns/{id}/resume
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.moveCampaign(w, r, domain.CampaignPaused, domain.CampaignActive, domain.AuditCampaignResumed)
}

// PauseCampaign stops dispatch for an active campaign.
//
//	POST /api/campaigns/{id}/pause
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.moveCampaign(w, r, domain.CampaignActive, domain.CampaignPaused, domain.AuditCampaignPaused)
}

func (h *Handlers) moveCampaign(w http.ResponseWriter, r *http.Request, from, to domain.CampaignStatus, action domain.AuditAction) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	c, err := h.store.GetCampaign(ctx, id)
	if errors.Is(err, worker.ErrNotFound) {
		httputil.NotFound(w, "campaign not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if c.Status != from {
		httputil.Conflict(w, "campaign is "+string(c.Status)+", expected "+string(from))
		return
	}

	ok, err := h.store.SetCampaignStatus(ctx, id, from, to)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if !ok {
		httputil.Conflict(w, "campaign status changed concurrently")
		return
	}
	h.audit(r, c.OrganizationID, "campaign", id, action, map[string]any{"source": "operator", "from": from})
	c.Status = to
	httputil.OK(w, c)
}

// ListReviewQueue lists links waiting for a human reply.
//
//	GET /api/review-queue?organization_id=...&page=1&limit=50
func (h *Handlers) ListReviewQueue(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		httputil.BadRequest(w, "organization_id is required")
		return
	}
	p := parsePage(r, 50, 200)

	links, total, err := h.store.ListReviewQueue(r.Context(), orgID, p.Limit, p.Offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, newPage(links, p, total))
}

var triggerableTasks = map[string]bool{
	worker.TaskFeed:   true,
	worker.TaskReset:  true,
	worker.TaskWarmup: true,
	worker.TaskHealth: true,
}

// TriggerTask asks the worker to run a periodic task now.
//
//	POST /api/tasks/{name}
func (h *Handlers) TriggerTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !triggerableTasks[name] {
		httputil.NotFound(w, "unknown task")
		return
	}
	job, err := h.queue.Enqueue(r.Context(), queue.SchedulerTicks, worker.KindTick,
		worker.TickJob{Task: name, At: h.now()}, 0)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Accepted(w, map[string]string{"task": name, "job_id": job.ID})
}
