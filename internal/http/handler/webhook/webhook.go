package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leadbridge/bridge/common/logger"
	"github.com/leadbridge/bridge/internal/model"
)

// Submitter is the fast-path enqueue surface of the webhook processor.
type Submitter interface {
	Submit(ctx context.Context, source model.Source, payload []byte) (string, error)
}

// Handler receives inbound CRM webhooks and enqueues them unvalidated.
// Business content is never inspected here; a webhook sender retries on
// 5xx, so the only failure worth surfacing is a failed enqueue.
type Handler struct {
	submitter Submitter
}

func NewHandler(submitter Submitter) *Handler {
	return &Handler{submitter: submitter}
}

// HandleAmoCRM accepts AmoCRM's form-encoded webhooks. The bracketed form
// keys (`leads[status][0][id]`) are flattened into a string map and stored
// as the job payload.
func (h *Handler) HandleAmoCRM(c *gin.Context) {
	ctx := c.Request.Context()

	if err := c.Request.ParseForm(); err != nil {
		slog.WarnContext(ctx, "unparsable amocrm webhook form", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form payload"})
		return
	}

	fields := make(map[string]string, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty payload"})
		return
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	h.submit(c, model.SourceAmoCRM, payload)
}

// HandleLPTracker accepts LPTracker's JSON webhooks verbatim.
func (h *Handler) HandleLPTracker(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	// Shape check only: the pipeline decodes for real on the worker side.
	var shape map[string]any
	if err := json.Unmarshal(body, &shape); err != nil {
		slog.WarnContext(ctx, "unparsable lptracker webhook body",
			"error", err,
			"body", logger.Truncate(string(body), 200),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	h.submit(c, model.SourceLPTracker, body)
}

func (h *Handler) submit(c *gin.Context, source model.Source, payload []byte) {
	ctx := c.Request.Context()

	jobID, err := h.submitter.Submit(ctx, source, payload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to submit webhook", "error", err, "source", source)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "job_id": jobID})
}
