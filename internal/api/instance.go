package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/instance"
)

type createInstanceRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateInstance provisions a new WhatsApp line on the gateway and
// stores it pending operator review.
func (r *Router) CreateInstance(c *gin.Context) {
	var req createInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	userID := c.GetInt64("UserID")

	resp, err := r.gateway.InitInstance(c.Request.Context(), req.Name, r.cfg.AppName)
	if err != nil {
		r.logger.Error("instance_init_failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_init_failed"})
		return
	}

	id := resp.Instance.ID
	if id == "" {
		id = resp.Token
	}

	now := time.Now().UTC()
	inst := &instance.Instance{
		ID:          id,
		UserID:      userID,
		Name:        req.Name,
		Token:       resp.Token,
		Host:        r.gateway.BaseURL(),
		Status:      instance.StatusDisconnected,
		AdminStatus: instance.AdminPendingConfig,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.instances.Save(c.Request.Context(), inst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, inst)
}

func (r *Router) ListInstances(c *gin.Context) {
	items, err := r.instances.FindByUserID(c.Request.Context(), c.GetInt64("UserID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": items})
}

func (r *Router) GetInstance(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, inst)
}

// ConnectInstance starts gateway pairing and returns the QR payload.
func (r *Router) ConnectInstance(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	resp, err := r.gateway.Connect(c.Request.Context(), inst.Host, inst.Token)
	if err != nil {
		r.logger.Error("instance_connect_failed", zap.String("instance_id", inst.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_connect_failed"})
		return
	}

	if err := r.instances.UpdateStatus(c.Request.Context(), inst.ID, instance.StatusConnecting); err != nil {
		r.logger.Error("instance_status_update_failed", zap.String("instance_id", inst.ID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"qrcode":   resp.Instance.Qrcode,
		"paircode": resp.Instance.Paircode,
	})
}

// InstanceStatus polls the gateway and mirrors the reported state into
// the local row. Only instance.status from the gateway is trusted.
func (r *Router) InstanceStatus(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	resp, err := r.gateway.Status(c.Request.Context(), inst.Host, inst.Token)
	if err != nil {
		r.logger.Error("instance_status_failed", zap.String("instance_id", inst.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_status_failed"})
		return
	}

	switch strings.ToLower(resp.Instance.Status) {
	case "connected":
		inst.MarkConnected(resp.Instance.Owner, resp.Instance.ProfileName)
	case "connecting":
		inst.Status = instance.StatusConnecting
		inst.UpdatedAt = time.Now().UTC()
	default:
		inst.MarkDisconnected()
	}
	if err := r.instances.Save(c.Request.Context(), inst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       inst.Status,
		"phone_number": inst.PhoneNumber,
		"phone_name":   inst.PhoneName,
	})
}

type configureWebhookRequest struct {
	URL string `json:"url" binding:"required"`
}

func (r *Router) ConfigureInstanceWebhook(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	var req configureWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if err := r.gateway.ConfigureWebhook(c.Request.Context(), inst.Host, inst.Token, req.URL); err != nil {
		r.logger.Error("webhook_configure_failed", zap.String("instance_id", inst.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "gateway_webhook_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DeleteInstance removes the line from the gateway and the panel. A
// gateway failure does not keep the local row alive.
func (r *Router) DeleteInstance(c *gin.Context) {
	inst, ok := r.resolveInstance(c)
	if !ok {
		return
	}

	if err := r.gateway.DeleteInstance(c.Request.Context(), inst.Host, inst.Token); err != nil {
		r.logger.Warn("gateway_delete_failed", zap.String("instance_id", inst.ID), zap.Error(err))
	}
	if err := r.instances.Delete(c.Request.Context(), inst.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (r *Router) AdminListInstances(c *gin.Context) {
	items, err := r.instances.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": items})
}

type adminConfigureRequest struct {
	Prompt        string `json:"prompt" binding:"required"`
	AdminNotes    string `json:"admin_notes"`
	RedirectPhone string `json:"redirect_phone"`
	AdminStatus   string `json:"admin_status"`
	ConfiguredBy  string `json:"configured_by"`
}

// AdminConfigureInstance applies the operator review: system prompt,
// redirect phone and activation state.
func (r *Router) AdminConfigureInstance(c *gin.Context) {
	var req adminConfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	inst, err := r.instances.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance_not_found"})
		return
	}

	inst.Configure(req.Prompt, req.AdminNotes, normalizeRedirect(req.RedirectPhone), req.ConfiguredBy)
	switch instance.AdminStatus(req.AdminStatus) {
	case instance.AdminActive:
		inst.AdminStatus = instance.AdminActive
	case instance.AdminSuspended:
		inst.AdminStatus = instance.AdminSuspended
	}

	if err := r.instances.Save(c.Request.Context(), inst); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, inst)
}

// AdminResetMemory wipes the model's conversation memory for an
// instance. The durable message log is untouched.
func (r *Router) AdminResetMemory(c *gin.Context) {
	inst, err := r.instances.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance_not_found"})
		return
	}

	if err := r.memory.DeleteByInstance(c.Request.Context(), inst.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	r.logger.Info("memory_reset", zap.String("instance_id", inst.ID))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func normalizeRedirect(phone string) string {
	return strings.TrimSpace(phone)
}
