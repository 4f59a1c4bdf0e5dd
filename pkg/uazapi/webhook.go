package uazapi

import (
	"context"
	"net/http"
)

// webhookEvents are the gateway events our webhook consumes.
var webhookEvents = []string{
	"messages",
	"messages_update",
	"connection_update",
	"status_update",
}

// webhookExcludes filters out traffic the pipeline never acts on.
var webhookExcludes = []string{
	"wasSentByApi",
	"isGroupYes",
}

type webhookRequest struct {
	Enabled         bool     `json:"enabled"`
	URL             string   `json:"url"`
	Events          []string `json:"events"`
	ExcludeMessages []string `json:"excludeMessages"`
}

// ConfigureWebhook points the instance's event delivery at url.
func (c *Client) ConfigureWebhook(ctx context.Context, host, token, url string) error {
	body := webhookRequest{
		Enabled:         true,
		URL:             url,
		Events:          webhookEvents,
		ExcludeMessages: webhookExcludes,
	}
	return c.doRequest(ctx, http.MethodPost, host, "/webhook", instanceAuth(token), body, nil)
}
