package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrResponseTooLarge は取得したレスポンスが上限サイズを超えたことを表す。
var ErrResponseTooLarge = errors.New("response exceeds size limit")

// LinkGuard は利用者が入力した外部URL（ポートフォリオ、アバター画像の取り込み元）を検証し、
// 内部ネットワークへ到達しないクライアントで取得する。
type LinkGuard interface {
	// ValidateURL はDNS解決を伴わない静的な検証を行う。
	ValidateURL(rawURL string) error

	// Fetch は検証済みURLを取得し、本文とContent-Typeを返す。
	// 本文がmaxBytesを超える場合はErrResponseTooLargeを返す。
	Fetch(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error)
}

// blockedNetworks は静的検証で拒否するネットワーク範囲。
// 接続時のIP検証はsafeurlのDialer側で行う。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR: %s: %v", cidr, err))
		}
		out = append(out, network)
	}
	return out
}

type linkGuard struct {
	client *http.Client
}

// NewLinkGuard はhttpsの443番ポートのみ許可するLinkGuardを生成する。
func NewLinkGuard(timeout time.Duration) LinkGuard {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()
	return &linkGuard{client: safeurl.Client(config).Client}
}

func (g *linkGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}
	if port := parsed.Port(); port != "" && port != "443" {
		return fmt.Errorf("disallowed port: %s", port)
	}
	if parsed.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host")
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
		return nil
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".internal") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}

func (g *linkGuard) Fetch(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error) {
	if err := g.ValidateURL(rawURL); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if resp.ContentLength > maxBytes {
		return nil, "", ErrResponseTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("本文の読み取りに失敗しました: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, "", ErrResponseTooLarge
	}
	return body, resp.Header.Get("Content-Type"), nil
}
