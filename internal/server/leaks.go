package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	fulfillmentdomain "github.com/smallbiznis/carebill/internal/fulfillment/domain"
)

type detectLeakRequest struct {
	EntityType string       `json:"entity_type"`
	EntityID   snowflake.ID `json:"entity_id"`
}

type sweepLeaksRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type resolveLeakRequest struct {
	Notes string `json:"notes"`
}

// RecordFulfillment takes clinical result postings. A leak check runs later,
// on demand or in the sweep.
func (s *Server) RecordFulfillment(c *gin.Context) {
	var req fulfillmentdomain.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.fulfillmentSvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": event})
}

func (s *Server) DetectLeak(c *gin.Context) {
	var req detectLeakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rec, err := s.leakSvc.DetectLeak(c.Request.Context(), actorFromContext(c), req.EntityType, req.EntityID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rec, "leak_detected": rec != nil})
}

func (s *Server) SweepLeaks(c *gin.Context) {
	var req sweepLeaksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.leakSvc.Sweep(c.Request.Context(), actorFromContext(c), req.From, req.To)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListUnresolvedLeaks(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	leaks, err := s.leakSvc.ListUnresolved(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": leaks})
}

func (s *Server) GetLeak(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rec, err := s.leakSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rec})
}

func (s *Server) ResolveLeak(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req resolveLeakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rec, err := s.leakSvc.Resolve(c.Request.Context(), actorFromContext(c), id, strings.TrimSpace(req.Notes))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rec})
}
