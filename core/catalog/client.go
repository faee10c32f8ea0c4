package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"SquizFM/config"
	"SquizFM/logger"

	"github.com/go-redis/redis/v8"
)

const cacheTTL = time.Hour

// Client 曲库API客户端。
// 响应通过 Redis 缓存，降低对上游接口的请求频率。
type Client struct {
	baseURL    string
	country    string
	token      string
	httpClient *http.Client
	redis      *redis.Client
}

// NewClient 创建曲库客户端。redisClient 可为 nil，此时不做缓存。
func NewClient(cfg *config.Config, redisClient *redis.Client) *Client {
	return &Client{
		baseURL: cfg.CatalogAPIURL,
		country: cfg.CatalogCountry,
		token:   cfg.CatalogToken,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
		redis: redisClient,
	}
}

// SetToken 更新访问令牌
func (c *Client) SetToken(token string) {
	c.token = token
}

func cacheKey(path string) string {
	return "sqz:catalog:" + path
}

// getJSON 请求上游接口并解析响应，命中缓存时不发请求
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	if c.redis != nil {
		cached, err := c.redis.Get(ctx, cacheKey(path)).Result()
		if err == nil {
			if err := json.Unmarshal([]byte(cached), out); err == nil {
				return nil
			}
			// 缓存内容损坏，回退到上游请求
			logger.Warn("曲库缓存内容无效，重新请求", logger.String("path", path))
		} else if err != redis.Nil {
			logger.Warn("读取曲库缓存失败", logger.String("path", path), logger.ErrorField(err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("曲库API返回错误状态码: %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, cacheKey(path), []byte(raw), cacheTTL).Err(); err != nil {
			logger.Warn("写入曲库缓存失败", logger.String("path", path), logger.ErrorField(err))
		}
	}
	return nil
}
