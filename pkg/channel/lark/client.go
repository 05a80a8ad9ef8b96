package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultDomain is the Lark global API endpoint. Feishu tenants use
	// open.feishu.cn instead.
	DefaultDomain = "https://open.larksuite.com"

	tokenPath         = "/open-apis/auth/v3/tenant_access_token/internal"
	tokenExpiryBuffer = 3 * time.Minute
)

// isTokenError reports whether a Lark error code means the tenant token is
// expired or invalid, and a refresh plus retry is worth attempting.
func isTokenError(code int) bool {
	return code == 99991663 || code == 99991664 || code == 99991671
}

// Client calls the Lark REST API with automatic tenant token refresh.
type Client struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewClient(appID, appSecret, domain string) *Client {
	if domain == "" {
		domain = DefaultDomain
	}
	return &Client{
		baseURL:    domain,
		appID:      appID,
		appSecret:  appSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	body, _ := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lark token request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("lark token decode: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("lark token error: code=%d msg=%s", result.Code, result.Msg)
	}

	c.token = result.TenantAccessToken
	c.tokenExp = time.Now().Add(time.Duration(result.Expire)*time.Second - tokenExpiryBuffer)
	return c.token, nil
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExp = time.Time{}
	c.mu.Unlock()
}

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// doJSON performs an authenticated call, refreshing the token and retrying
// once when the API reports a token error.
func (c *Client) doJSON(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	resp, err := c.doJSONOnce(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if isTokenError(resp.Code) {
		c.clearToken()
		return c.doJSONOnce(ctx, method, path, body)
	}
	return resp, nil
}

func (c *Client) doJSONOnce(ctx context.Context, method, path string, body any) (*apiResponse, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lark api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("lark api decode: %w", err)
	}
	return &result, nil
}

// SendMessage posts a message to a chat. Content must already be the
// JSON-encoded body for the message type.
func (c *Client) SendMessage(ctx context.Context, chatID, msgType, content string) (string, error) {
	path := "/open-apis/im/v1/messages?receive_id_type=chat_id"
	resp, err := c.doJSON(ctx, http.MethodPost, path, map[string]string{
		"receive_id": chatID,
		"msg_type":   msgType,
		"content":    content,
	})
	if err != nil {
		return "", err
	}
	if resp.Code != 0 {
		return "", fmt.Errorf("send message: code=%d msg=%s", resp.Code, resp.Msg)
	}

	var data struct {
		MessageID string `json:"message_id"`
	}
	json.Unmarshal(resp.Data, &data)
	return data.MessageID, nil
}

// ReplyMessage replies to an existing message. Replying to a topic's anchor
// message places the reply inside the topic thread.
func (c *Client) ReplyMessage(ctx context.Context, messageID, msgType, content string) (string, error) {
	path := fmt.Sprintf("/open-apis/im/v1/messages/%s/reply", messageID)
	resp, err := c.doJSON(ctx, http.MethodPost, path, map[string]string{
		"msg_type": msgType,
		"content":  content,
	})
	if err != nil {
		return "", err
	}
	if resp.Code != 0 {
		return "", fmt.Errorf("reply message: code=%d msg=%s", resp.Code, resp.Msg)
	}

	var data struct {
		MessageID string `json:"message_id"`
	}
	json.Unmarshal(resp.Data, &data)
	return data.MessageID, nil
}

// GetBotInfo returns the bot's open_id, doubling as a connectivity probe.
func (c *Client) GetBotInfo(ctx context.Context) (string, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/open-apis/bot/v3/info", nil)
	if err != nil {
		return "", err
	}
	if resp.Code != 0 {
		return "", fmt.Errorf("get bot info: code=%d msg=%s", resp.Code, resp.Msg)
	}

	var result struct {
		Bot struct {
			OpenID string `json:"open_id"`
		} `json:"bot"`
	}
	json.Unmarshal(resp.Data, &result)
	return result.Bot.OpenID, nil
}
