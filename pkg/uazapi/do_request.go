package uazapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// auth selects the credential attached to a request.
type auth struct {
	instanceToken string
	admin         bool
}

func instanceAuth(token string) auth { return auth{instanceToken: token} }
func adminAuth() auth                { return auth{admin: true} }

func (c *Client) doRequest(ctx context.Context, method, host, path string, a auth, body any, out any) error {
	if host == "" {
		host = c.cfg.BaseURL
	}
	url := strings.TrimRight(host, "/") + path

	safe := method == http.MethodGet

	call := func() error {
		var reqBody io.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reqBody = bytes.NewBuffer(b)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return err
		}

		req.Header.Set("Content-Type", "application/json")
		if a.admin {
			req.Header.Set("admintoken", c.cfg.AdminToken)
		} else {
			req.Header.Set("token", a.instanceToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			bodyBytes, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("gateway error: %s (failed to read body: %v)", resp.Status, err)
			}
			return fmt.Errorf("gateway error: %s: %s", resp.Status, string(bodyBytes))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return err
			}
		}

		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.breaker.Execute(func() error {
		return c.retry.Do(ctx, safe, call)
	})
}
