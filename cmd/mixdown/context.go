package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mixdown/internal/config"
)

// commandContext carries the lazily loaded configuration and the HTTP
// client used to reach the daemon API.
type commandContext struct {
	configFlag *string
	addrFlag   *string
	tokenFlag  *string

	cfg    *config.Config
	client *http.Client
}

func newCommandContext(configFlag, addrFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		addrFlag:   addrFlag,
		tokenFlag:  tokenFlag,
		client:     &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, _, _, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) baseURL() (string, error) {
	addr := strings.TrimSpace(*c.addrFlag)
	if addr == "" && c.cfg != nil {
		addr = strings.TrimSpace(c.cfg.Paths.APIBind)
	}
	if addr == "" {
		return "", errors.New("no daemon address configured (set paths.api_bind or pass --addr)")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/"), nil
}

func (c *commandContext) token() string {
	if token := strings.TrimSpace(*c.tokenFlag); token != "" {
		return token
	}
	if c.cfg != nil {
		return strings.TrimSpace(c.cfg.Paths.APIToken)
	}
	return ""
}

// do issues an authenticated request against the daemon API and decodes a
// JSON response into out when it is non-nil.
func (c *commandContext) do(method, path string, body io.Reader, contentType string, out any) error {
	base, err := c.baseURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apiError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		return fmt.Errorf("daemon: %s (%d)", body.Error, resp.StatusCode)
	}
	return fmt.Errorf("daemon returned %d", resp.StatusCode)
}
