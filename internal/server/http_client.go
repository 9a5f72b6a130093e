package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mapsite/mapsite/internal/config"
)

// ErrTooManyRedirects 表示跳转次数超过 MaxRedirects。
var ErrTooManyRedirects = errors.New("too many redirects")

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   16,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回共享 http.Client，用于 KML/CSV 下载与图片抓取。
// 超时与最大跳转次数来自全局配置，缺省为 30s / 5 次。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 30 * time.Second
	maxRedirects := 5
	if cfg != nil {
		if cfg.Global.FetchTimeout.DurationValue() > 0 {
			timeout = cfg.Global.FetchTimeout.DurationValue()
		}
		if cfg.Global.MaxRedirects >= 0 {
			maxRedirects = cfg.Global.MaxRedirects
		}
	}

	return &http.Client{
		Timeout:       timeout,
		Transport:     defaultTransport.Clone(),
		CheckRedirect: limitRedirects(maxRedirects),
	}
}

func limitRedirects(max int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > max {
			return fmt.Errorf("%w: stopped after %d hops", ErrTooManyRedirects, max)
		}
		return nil
	}
}
