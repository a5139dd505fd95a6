package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GraysonWills/Portfolio-sub001/models"
)

// IngestRequest is the batch submitted by the browser event reporter. Each
// member stays raw JSON so one malformed event cannot fail the whole bind.
type IngestRequest struct {
	Events []json.RawMessage `json:"events"`
}

// ingestEvents receives a batch of client events. Anything past a parseable
// request body answers 200: per-event problems are counts in the response,
// and a disabled queue is not the visitor's problem.
func (s *Server) ingestEvents(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rc := models.RequestContext{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
		Route:     c.GetHeader("X-Client-Route"),
	}

	result := s.gateway.Ingest(c.Request.Context(), req.Events, rc)
	c.JSON(http.StatusOK, result)
}
