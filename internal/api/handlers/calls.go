package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-orchestrator/internal/callcontrol"
	"github.com/troikatech/voice-orchestrator/internal/orchestrator"
	"github.com/troikatech/voice-orchestrator/internal/store"
	"github.com/troikatech/voice-orchestrator/pkg/errors"
	"github.com/troikatech/voice-orchestrator/pkg/logger"
)

type CreateCallRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	AgentID  string `json:"agent_id"`
	To       string `json:"to" binding:"required"`
	From     string `json:"from"`
	Greeting string `json:"greeting"`
}

// CreateCall places an outbound call on operator request.
func (h *Handler) CreateCall(c *gin.Context) {
	var req CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, "tenant_id and to are required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	rec, err := h.adapter.PlaceOutboundCall(ctx, callcontrol.PlaceCallRequest{
		TenantID: req.TenantID,
		AgentID:  req.AgentID,
		To:       req.To,
		From:     req.From,
		Greeting: req.Greeting,
	})
	if err != nil {
		if stderrors.Is(err, callcontrol.ErrInvalidAddress) {
			errors.BadRequest(c, "to must be a valid E.164 number")
			return
		}
		errors.InternalError(c, err, h.logger)
		return
	}

	h.logger.Info("call placed via API",
		zap.String("call_id", rec.ID),
		zap.String("tenant_id", req.TenantID),
		logger.MaskPhone("to", rec.Counterpart))
	c.JSON(http.StatusCreated, rec)
}

// GetCall returns the durable record; a still-live call also carries its
// session snapshot.
func (h *Handler) GetCall(c *gin.Context) {
	callID := c.Param("call_id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.store.GetCallRecord(ctx, callID)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}
	if rec == nil {
		errors.NotFound(c, "call not found")
		return
	}

	resp := gin.H{"call": rec}
	if events, err := h.store.ListCallEvents(ctx, callID); err == nil && len(events) > 0 {
		resp["events"] = events
	}
	if snap, ok := h.orchestrator.GetSession(callID); ok {
		resp["session"] = snap
	}
	c.JSON(http.StatusOK, resp)
}

// ListCalls returns recent call records, newest first, filtered by the
// tenant_id, status, from, to (RFC3339), and limit query parameters.
func (h *Handler) ListCalls(c *gin.Context) {
	q := store.CallQuery{
		TenantID: c.Query("tenant_id"),
		Status:   c.Query("status"),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errors.BadRequest(c, "from must be RFC3339")
			return
		}
		q.Since = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errors.BadRequest(c, "to must be RFC3339")
			return
		}
		q.Until = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			errors.BadRequest(c, "limit must be a positive integer")
			return
		}
		q.Limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	records, err := h.store.ListCallRecords(ctx, q)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}
	active, err := h.store.CountActiveCalls(ctx, q.TenantID)
	if err != nil {
		h.logger.Warn("active call count unavailable", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(records),
		"active": active,
		"calls":  records,
	})
}

// ListCallbacks returns pending follow-up requests for a tenant.
func (h *Handler) ListCallbacks(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	callbacks, err := h.store.ListCallbackRequests(ctx, c.Query("tenant_id"))
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":     len(callbacks),
		"callbacks": callbacks,
	})
}

// CompleteCallback removes a follow-up request once an operator has
// called the customer back.
func (h *Handler) CompleteCallback(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.DeleteCallbackRequest(ctx, c.Param("callback_id")); err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "callback completed"})
}

// ListSessions returns snapshots of every live session.
func (h *Handler) ListSessions(c *gin.Context) {
	sessions := h.orchestrator.ListSessions()
	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// HoldCall pauses a live call.
func (h *Handler) HoldCall(c *gin.Context) {
	callID := c.Param("call_id")
	if err := h.orchestrator.Hold(c.Request.Context(), callID); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "call on hold"})
}

// ResumeCall takes a call off hold.
func (h *Handler) ResumeCall(c *gin.Context) {
	callID := c.Param("call_id")
	if err := h.orchestrator.Resume(c.Request.Context(), callID); err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "call resumed"})
}

// sessionError maps orchestrator errors onto the problem+json taxonomy:
// a missing session is 404, a lifecycle violation is 409.
func (h *Handler) sessionError(c *gin.Context, err error) {
	if stderrors.Is(err, orchestrator.ErrSessionNotFound) {
		errors.NotFound(c, err.Error())
		return
	}
	errors.Conflict(c, err.Error())
}

type TransferCallRequest struct {
	Target string `json:"target"`
}

// TransferCall hands a live call to a human target.
func (h *Handler) TransferCall(c *gin.Context) {
	callID := c.Param("call_id")
	var req TransferCallRequest
	_ = c.ShouldBindJSON(&req)

	snap, ok := h.orchestrator.GetSession(callID)
	if !ok {
		errors.NotFound(c, "no live session for call")
		return
	}

	_, err := h.orchestrator.Transfer(c.Request.Context(), callID, req.Target)
	if err != nil {
		errors.Conflict(c, err.Error())
		return
	}

	// The session is transferring; push the connect flow to the live leg.
	if snap.CorrelationID != "" {
		target := req.Target
		if target == "" {
			target = snap.Meta.EscalationTarget
		}
		if err := h.adapter.TransferLiveCall(c.Request.Context(), snap.CorrelationID, callID, target, ""); err != nil {
			h.logger.Warn("live transfer push failed",
				zap.String("call_id", callID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "transfer started"})
}

// HangupCall ends a live call on operator request.
func (h *Handler) HangupCall(c *gin.Context) {
	callID := c.Param("call_id")
	if err := h.orchestrator.Hangup(c.Request.Context(), callID); err != nil {
		errors.NotFound(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "call ended"})
}
