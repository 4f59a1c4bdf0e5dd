package uazapi

import (
	"context"
	"net/http"
)

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText delivers a plain text message. Not retried: a timeout after
// delivery would otherwise duplicate the message.
func (c *Client) SendText(ctx context.Context, host, token, number, text string) error {
	body := sendTextRequest{Number: number, Text: text}
	return c.doRequest(ctx, http.MethodPost, host, "/send/text", instanceAuth(token), body, nil)
}
