package uazapi

import (
	"context"
	"net/http"
)

// InstanceInfo is the gateway's view of a WhatsApp line.
type InstanceInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Qrcode      string `json:"qrcode,omitempty"`
	Paircode    string `json:"paircode,omitempty"`
	Owner       string `json:"owner,omitempty"`
	ProfileName string `json:"profileName,omitempty"`
}

type InitResponse struct {
	Token    string       `json:"token"`
	Instance InstanceInfo `json:"instance"`
}

type ConnectResponse struct {
	Instance InstanceInfo `json:"instance"`
}

type StatusResponse struct {
	Instance InstanceInfo `json:"instance"`
}

// InitInstance provisions a new line on the gateway. Admin credential.
func (c *Client) InitInstance(ctx context.Context, name, systemName string) (*InitResponse, error) {
	body := map[string]string{
		"name":       name,
		"systemName": systemName,
	}
	var out InitResponse
	if err := c.doRequest(ctx, http.MethodPost, "", "/instance/init", adminAuth(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Connect asks the gateway to start pairing and returns the QR payload.
func (c *Client) Connect(ctx context.Context, host, token string) (*ConnectResponse, error) {
	var out ConnectResponse
	if err := c.doRequest(ctx, http.MethodPost, host, "/instance/connect", instanceAuth(token), map[string]string{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status reads the current connection state. Only instance.status is
// authoritative; other fields may lag.
func (c *Client) Status(ctx context.Context, host, token string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.doRequest(ctx, http.MethodGet, host, "/instance/status", instanceAuth(token), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteInstance removes the line from the gateway.
func (c *Client) DeleteInstance(ctx context.Context, host, token string) error {
	return c.doRequest(ctx, http.MethodDelete, host, "/instance", instanceAuth(token), nil, nil)
}
