package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// BotClient communicates with the chat bot's internal API, which performs
// role changes and direct messages on the platform.
type BotClient struct {
	baseURL    string
	roleID     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewBotClient(baseURL, roleID string, log *zap.Logger) *BotClient {
	return &BotClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		roleID:  roleID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

type roleRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (c *BotClient) GrantRole(ctx context.Context, userID, reason string) error {
	return c.post(ctx, "/internal/roles/grant", roleRequest{UserID: userID, RoleID: c.roleID, Reason: reason})
}

func (c *BotClient) RevokeRole(ctx context.Context, userID, reason string) error {
	return c.post(ctx, "/internal/roles/revoke", roleRequest{UserID: userID, RoleID: c.roleID, Reason: reason})
}

// RoleMembers lists the ids of members currently holding the role.
func (c *BotClient) RoleMembers(ctx context.Context) ([]string, error) {
	u := fmt.Sprintf("%s/internal/roles/members?role_id=%s", c.baseURL, url.QueryEscape(c.roleID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bot service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bot service returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.UserIDs, nil
}

func (c *BotClient) SendNotification(ctx context.Context, userID, text string) error {
	body, _ := json.Marshal(map[string]any{
		"user_id": userID,
		"text":    text,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/notify", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("failed to send bot notification", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("bot notification failed", zap.Int("status", resp.StatusCode))
	}
	return nil
}

func (c *BotClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bot service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bot service returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
