package leads

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/platform/httpkit"
)

const msgInvalidLeadID = "invalid lead id"

// Handler exposes the lead pipeline over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the operator lead routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/stats", h.Stats)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Archive)
	rg.POST("/:id/abandon", h.Abandon)
	rg.POST("/:id/reset", h.Reset)
	rg.POST("/:id/transcript", h.AttachTranscript)
	rg.GET("/:id/transcript", h.TranscriptURL)
}

// Create handles POST /api/v1/leads
func (h *Handler) Create(c *gin.Context) {
	var req CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	lead, err := h.svc.Create(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, lead)
}

// List handles GET /api/v1/leads?stage=SENT
func (h *Handler) List(c *gin.Context) {
	stage := domain.Stage(c.Query("stage"))
	if stage == "" {
		httpkit.Error(c, http.StatusBadRequest, "stage query parameter is required", gin.H{
			"stages": domain.AllStages(),
		})
		return
	}

	items, err := h.svc.ListByStage(c.Request.Context(), stage)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"leads": items, "count": len(items)})
}

// Stats handles GET /api/v1/leads/stats
func (h *Handler) Stats(c *gin.Context) {
	counts, err := h.svc.StageCounts(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"stages": counts})
}

// Get handles GET /api/v1/leads/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

type abandonRequest struct {
	Reason string `json:"reason"`
}

// Abandon handles POST /api/v1/leads/:id/abandon
func (h *Handler) Abandon(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	var req abandonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
			return
		}
	}

	lead, err := h.svc.Abandon(c.Request.Context(), id, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

// Reset handles POST /api/v1/leads/:id/reset
func (h *Handler) Reset(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	lead, err := h.svc.ResetFailed(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

// AttachTranscript handles POST /api/v1/leads/:id/transcript. The body is
// either a multipart upload with a "file" field or raw text.
func (h *Handler) AttachTranscript(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	reader, size, cleanup, err := h.transcriptBody(c)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	defer cleanup()

	lead, err := h.svc.AttachTranscript(c.Request.Context(), id, reader, size)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

// TranscriptURL handles GET /api/v1/leads/:id/transcript
func (h *Handler) TranscriptURL(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	url, err := h.svc.TranscriptURL(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, url)
}

// Archive handles DELETE /api/v1/leads/:id
func (h *Handler) Archive(c *gin.Context) {
	id, ok := h.leadID(c)
	if !ok {
		return
	}

	if err := h.svc.Archive(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.NoContent(c)
}

func (h *Handler) leadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) transcriptBody(c *gin.Context) (io.Reader, int64, func(), error) {
	file, err := c.FormFile("file")
	if err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, 0, nil, err
		}
		return f, file.Size, func() { f.Close() }, nil
	}

	// Not multipart; treat the raw body as the transcript text.
	return c.Request.Body, c.Request.ContentLength, func() {}, nil
}
