package transport

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// codecRoundTripper negotiates gzip/deflate/br/zstd content coding and
// transparently decodes the response body. Go's net/http only
// auto-negotiates gzip, and only when Accept-Encoding is left unset; since
// base.DisableCompression is true here we own the whole negotiation, the
// same set the Rust source's ClientBuilder enables directly
// (.brotli(true).gzip(true).deflate(true).zstd(true)).
type codecRoundTripper struct {
	base http.RoundTripper
}

func (c *codecRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, deflate, br, zstd")
	}

	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	coding := resp.Header.Get("Content-Encoding")
	if coding == "" || coding == "identity" {
		return resp, nil
	}

	decoded, err := decodeBody(coding, resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("decode %s body: %w", coding, err)
	}
	resp.Body = decoded
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return resp, nil
}

func decodeBody(coding string, body io.ReadCloser) (io.ReadCloser, error) {
	switch coding {
	case "gzip":
		r, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		return &readCloser{Reader: r, closer: body, extra: r}, nil
	case "deflate":
		r := flate.NewReader(body)
		return &readCloser{Reader: r, closer: body, extra: r}, nil
	case "br":
		r := brotli.NewReader(body)
		return &readCloser{Reader: r, closer: body}, nil
	case "zstd":
		r, err := zstd.NewReader(body)
		if err != nil {
			return nil, err
		}
		return &readCloser{Reader: r, closer: body, extra: zstdCloser{r}}, nil
	default:
		return body, nil
	}
}

// readCloser combines a decoding Reader with the underlying body's
// Close, additionally closing extra (a decoder with its own Close, like
// gzip.Reader or the zstd decoder) when present.
type readCloser struct {
	io.Reader
	closer io.Closer
	extra  io.Closer
}

func (r *readCloser) Close() error {
	if r.extra != nil {
		r.extra.Close()
	}
	return r.closer.Close()
}

// zstdCloser adapts *zstd.Decoder's Close (no error return) to io.Closer.
type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}
