package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/buffer"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/conversation"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/loop"
)

// HandleWebhook ingests gateway callbacks. Whatever arrives, the
// gateway gets a 200 back; anything else makes it retry forever.
func (r *Router) HandleWebhook(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "invalid_json"})
		return
	}

	instanceID := extractInstanceID(body)
	if instanceID == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no_instance"})
		return
	}

	if extractFromMe(body) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "from_me"})
		return
	}

	number := extractNumber(body)
	if number == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no_number"})
		return
	}

	text := extractText(body)
	if strings.TrimSpace(text) == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "no_text"})
		return
	}

	// Each raw fragment is stored before buffering, so nothing is lost
	// if the process dies during the quiet period.
	if err := r.messages.Save(c.Request.Context(), &conversation.StoredMessage{
		ID:         ulid.Make().String(),
		InstanceID: instanceID,
		ChatID:     number,
		FromMe:     false,
		Timestamp:  time.Now().Unix(),
		Content:    text,
	}); err != nil {
		r.logger.Error("message_save_failed", zap.Error(err))
	}

	r.logger.Debug("webhook_buffered",
		zap.String("instance_id", instanceID),
		zap.String("chat_id", number),
	)
	r.buffer.Push(buffer.Key{InstanceID: instanceID, ChatID: number}, text)

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func extractInstanceID(body map[string]any) string {
	for _, key := range []string{"instance_id", "instanceId", "instance"} {
		if v, ok := body[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func extractFromMe(body map[string]any) bool {
	for _, path := range [][]string{
		{"fromMe"},
		{"message", "fromMe"},
		{"message", "key", "fromMe"},
	} {
		if v, ok := dig(body, path...).(bool); ok && v {
			return true
		}
	}
	return false
}

// extractNumber finds the sender phone across the payload shapes the
// gateway emits. The JID suffix and any formatting are stripped so the
// same sender always yields the same digits-only key.
func extractNumber(body map[string]any) string {
	keys := []string{"number", "from", "chatid", "chatId", "phone", "sender"}

	scopes := []map[string]any{body}
	if m, ok := body["message"].(map[string]any); ok {
		scopes = append(scopes, m)
	}
	if m, ok := body["chat"].(map[string]any); ok {
		scopes = append(scopes, m)
	}

	for _, scope := range scopes {
		for _, key := range keys {
			if v, ok := scope[key].(string); ok && v != "" {
				if number := loop.NormalizePhone(strings.SplitN(v, "@", 2)[0]); number != "" {
					return number
				}
			}
		}
	}
	return ""
}

// extractText finds the message body across the payload shapes the
// gateway emits.
func extractText(body map[string]any) string {
	paths := [][]string{
		{"text"},
		{"message", "conversation"},
		{"message", "extendedTextMessage", "text"},
		{"body"},
		{"caption"},
		{"chat", "text"},
		{"data", "message", "conversation"},
	}
	for _, path := range paths {
		if v, ok := dig(body, path...).(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func dig(m map[string]any, path ...string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}
