// Package transport builds the HTTP client and puller used to talk to
// origin servers: client construction with proxying, TLS laxity and
// content-coding support; Prefetch for the initial probe; and Puller for
// the ranged/sequential pulls the engines drive.
//
// Grounded on _examples/original_source/src/downloader/puller.rs
// (build_client, FastDownPuller, Clone) for the contract shape, and on
// the teacher's internal/engine/probe.go for prefetch behavior and
// _examples/other_examples teal33t-Surge single-downloader for the
// SOCKS5 dialer pattern.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/fastdown/fastdown/internal/config"
	"github.com/fastdown/fastdown/internal/ferrors"
)

const (
	dialTimeout           = 10 * time.Second
	keepAlive             = 30 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 30 * time.Second
	idleConnTimeout       = 90 * time.Second
	expectContinueTimeout = 1 * time.Second
	maxIdleConns          = 100
	maxConnsPerHost       = 64
)

// DefaultUserAgent is sent on every request unless a caller-supplied
// header overrides it.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// NewClient builds an *http.Client configured per eff: proxy (http(s) or
// socks5://), TLS certificate/hostname laxity, and transparent
// gzip/deflate/br/zstd decoding via codecRoundTripper.
func NewClient(eff config.EffectiveConfig) (*http.Client, error) {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: keepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		IdleConnTimeout:       idleConnTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		MaxIdleConns:          maxIdleConns,
		MaxConnsPerHost:       maxConnsPerHost,
		DisableCompression:    true, // codecRoundTripper negotiates and decodes codings itself
	}

	if eff.AcceptInvalidCerts || eff.AcceptInvalidHostnames {
		base.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: eff.AcceptInvalidCerts || eff.AcceptInvalidHostnames,
		}
	}

	if eff.Proxy != "" {
		if err := wireProxy(base, eff.Proxy); err != nil {
			return nil, &ferrors.ClientBuildError{Err: err}
		}
	}

	return &http.Client{
		Transport: &codecRoundTripper{base: base},
	}, nil
}

// wireProxy configures base.Proxy (http/https) or replaces base.DialContext
// with a SOCKS5 dialer, matching the fallback shape in the teacher's
// single-stream downloader. A proxy URL that fails to parse is an error;
// a socks5 URL whose dialer cannot be constructed falls back to the
// environment proxy rather than hard-failing client construction.
func wireProxy(base *http.Transport, rawProxy string) error {
	u, err := url.Parse(rawProxy)
	if err != nil {
		return fmt.Errorf("parse proxy url: %w", err)
	}

	if !strings.HasPrefix(u.Scheme, "socks5") {
		base.Proxy = http.ProxyURL(u)
		return nil
	}

	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}

	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, &net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive})
	if err != nil {
		base.Proxy = http.ProxyFromEnvironment
		return nil
	}

	base.Proxy = nil
	base.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}
	return nil
}
