package approval

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"acquisition_backend/platform/httpkit"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidID      = "invalid approval request id"
)

// Handler exposes the approval surface over HTTP.
type Handler struct {
	svc    *Service
	signer *LinkSigner
}

func NewHandler(svc *Service, signer *LinkSigner) *Handler {
	return &Handler{svc: svc, signer: signer}
}

// RegisterRoutes mounts the operator approval routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Status)
	rg.POST("/:id/approve", h.Approve)
	rg.POST("/:id/reject", h.Reject)
}

type resolveRequest struct {
	Reason string `json:"reason"`
}

// List handles GET /api/v1/approvals. By default it returns pending
// requests; ?lead_id= returns the full history for one lead.
func (h *Handler) List(c *gin.Context) {
	if raw := c.Query("lead_id"); raw != "" {
		leadID, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid lead_id", nil)
			return
		}
		items, err := h.svc.ListByLead(c.Request.Context(), leadID)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, gin.H{"approvals": items})
		return
	}

	items, err := h.svc.ListPending(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"approvals": items})
}

// Status handles GET /api/v1/approvals/:id
func (h *Handler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	req, err := h.svc.Status(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, req)
}

// Approve handles POST /api/v1/approvals/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	h.resolve(c, true)
}

// Reject handles POST /api/v1/approvals/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	h.resolve(c, false)
}

func (h *Handler) resolve(c *gin.Context, approved bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req resolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}

	resolved, err := h.svc.Resolve(c.Request.Context(), id, approved, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resolved)
}

// ResolveLink handles GET /api/v1/approvals/resolve?token=... reached from
// the one-click links in notification emails. It renders plain text, since
// the caller is a browser, not an API client.
func (h *Handler) ResolveLink(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.String(http.StatusBadRequest, "Missing token.")
		return
	}

	requestID, action, err := h.signer.Parse(token)
	if httpkit.HandleError(c, err) {
		return
	}

	_, err = h.svc.Resolve(c.Request.Context(), requestID, action == LinkApprove, "resolved via email link")
	if httpkit.HandleError(c, err) {
		return
	}

	if action == LinkApprove {
		c.String(http.StatusOK, "Approved. You can close this tab.")
		return
	}
	c.String(http.StatusOK, "Rejected. You can close this tab.")
}
