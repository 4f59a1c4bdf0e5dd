package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/outreach"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/loop"
)

func (r *Router) GetLoopSettings(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}
	settings, err := r.loopSvc.Settings(c.Request.Context(), inst.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (r *Router) UpdateLoopSettings(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	var in loop.UpdateSettingsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	settings, err := r.loopSvc.UpdateSettings(c.Request.Context(), inst.ID, in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (r *Router) GetLoopState(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}
	state, err := r.loopSvc.State(c.Request.Context(), inst.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (r *Router) StartLoop(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	if err := r.manager.Start(inst.ID); err != nil {
		if errors.Is(err, outreach.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (r *Router) StopLoop(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	if err := r.manager.Stop(inst.ID); err != nil {
		if errors.Is(err, outreach.ErrNotRunning) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
}

type addContactRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone" binding:"required"`
	Niche string `json:"niche"`
}

func (r *Router) AddLoopContact(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	var req addContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone is required"})
		return
	}

	status, err := r.loopSvc.AddContact(c.Request.Context(), inst.ID, req.Name, req.Phone, req.Niche, outreach.SourceManual)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if status == loop.AddOK {
		c.JSON(http.StatusCreated, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "skipped", "reason": string(status)})
}

// ImportLoopContacts ingests a CSV upload (multipart field "file").
func (r *Router) ImportLoopContacts(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	result, err := r.importer.Import(c.Request.Context(), inst.ID, file)
	if err != nil {
		if errors.Is(err, loop.ErrNoPhoneColumn) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) ListLoopQueue(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	limit, offset := paging(c)
	items, total, err := r.loopSvc.ListQueue(c.Request.Context(), inst.ID, c.Query("search"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (r *Router) ListLoopTotals(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	limit, offset := paging(c)
	items, total, err := r.loopSvc.ListTotals(c.Request.Context(), inst.ID, c.Query("search"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (r *Router) ListLoopEvents(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	events, err := r.hub.Replay(c.Request.Context(), inst.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// StreamLoop serves the SSE progress stream: stored history first, then
// live events until the client goes away.
func (r *Router) StreamLoop(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	replay, err := r.hub.Replay(c.Request.Context(), inst.ID)
	if err != nil {
		r.logger.Error("stream_replay_failed", zap.String("instance_id", inst.ID), zap.Error(err))
	}
	for _, event := range replay {
		writeSSE(c, event)
	}
	flusher.Flush()

	ch := r.hub.Subscribe(inst.ID)
	defer r.hub.Unsubscribe(inst.ID, ch)

	heartbeat := newHeartbeat()
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event := <-ch:
			writeSSE(c, event)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// newHeartbeat keeps idle SSE connections alive through proxies.
func newHeartbeat() *time.Ticker {
	return time.NewTicker(15 * time.Second)
}

func writeSSE(c *gin.Context, event *outreach.Event) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
}

func paging(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
