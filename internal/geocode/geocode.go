package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"khedma/internal/config"
	"khedma/internal/geo"
)

const cacheKeyPrefix = "geocode:addr:"

// Client 调用 Nominatim 兼容接口把自由文本地址解析为坐标。
// 解析是尽力而为的：查不到返回 found=false 而不是错误；
// 网络失败由调用方记录日志后继续，绝不中断主流程。
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	redis      redis.UniversalClient
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewClient 构造地理编码客户端；redisClient 可为 nil（不缓存）。
func NewClient(cfg config.GeocoderConfig, redisClient redis.UniversalClient, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		userAgent:  cfg.UserAgent,
		redis:      redisClient,
		cacheTTL:   cfg.CacheTTL,
		logger:     logger,
	}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

type cachedPoint struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Found bool    `json:"found"`
}

// Lookup 解析地址。found=false 表示服务明确查不到该地址。
func (c *Client) Lookup(ctx context.Context, address string) (geo.Point, bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return geo.Point{}, false, errors.New("address is empty")
	}

	if point, found, ok := c.fromCache(ctx, address); ok {
		return point, found, nil
	}

	point, found, err := c.fetch(ctx, address)
	if err != nil {
		return geo.Point{}, false, err
	}

	c.storeCache(ctx, address, point, found)
	return point, found, nil
}

func (c *Client) fetch(ctx context.Context, address string) (geo.Point, bool, error) {
	if c.baseURL == "" {
		return geo.Point{}, false, errors.New("geocoder base url missing")
	}

	query := url.Values{}
	query.Set("format", "json")
	query.Set("limit", "1")
	query.Set("q", address)
	targetURL := c.baseURL + "/search?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return geo.Point{}, false, fmt.Errorf("build geocode request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return geo.Point{}, false, fmt.Errorf("request geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return geo.Point{}, false, fmt.Errorf("geocoder status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return geo.Point{}, false, fmt.Errorf("decode geocoder response: %w", err)
	}
	if len(results) == 0 {
		return geo.Point{}, false, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return geo.Point{}, false, fmt.Errorf("parse latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return geo.Point{}, false, fmt.Errorf("parse longitude %q: %w", results[0].Lon, err)
	}

	return geo.Point{Lat: lat, Lon: lon}, true, nil
}

func (c *Client) fromCache(ctx context.Context, address string) (geo.Point, bool, bool) {
	if c.redis == nil {
		return geo.Point{}, false, false
	}

	raw, err := c.redis.Get(ctx, cacheKey(address)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("geocode cache read failed", slog.Any("error", err))
		}
		return geo.Point{}, false, false
	}

	var cached cachedPoint
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return geo.Point{}, false, false
	}
	return geo.Point{Lat: cached.Lat, Lon: cached.Lon}, cached.Found, true
}

func (c *Client) storeCache(ctx context.Context, address string, point geo.Point, found bool) {
	if c.redis == nil {
		return
	}

	raw, err := json.Marshal(cachedPoint{Lat: point.Lat, Lon: point.Lon, Found: found})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKey(address), raw, c.cacheTTL).Err(); err != nil {
		c.logger.Warn("geocode cache write failed", slog.Any("error", err))
	}
}

func cacheKey(address string) string {
	return cacheKeyPrefix + strings.ToLower(address)
}
