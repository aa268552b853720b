package inbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	fetchTimeout = 60 * time.Second
	maxRedirects = 5
)

// ErrBlockedHost is returned when a URL resolves to an address the server
// must not reach on a client's behalf.
var ErrBlockedHost = errors.New("inbox: blocked host")

var extByMediaType = map[string]string{
	"application/pdf": ".pdf",
	"text/markdown":   ".md",
	"text/x-markdown": ".md",
	"text/plain":      ".txt",
}

// blocked reports addresses that downloads may not connect to: loopback,
// link-local (which covers cloud metadata endpoints) and unspecified.
var blocked = func(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// guardedClient checks every address actually dialed, so redirects and DNS
// answers cannot reach a blocked host.
func guardedClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(_, address string, _ syscall.RawConn) error {
			ap, err := netip.ParseAddrPort(address)
			if err != nil {
				return err
			}
			if blocked(ap.Addr()) {
				return fmt.Errorf("%w: %s", ErrBlockedHost, ap.Addr())
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Timeout:   fetchTimeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("inbox: more than %d redirects", maxRedirects)
			}
			return checkScheme(req.URL)
		},
	}
}

// Fetch downloads a source from an http(s) URL or decodes a base64 data
// URI. It returns the content and a suggested filename.
func Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if rest, ok := strings.CutPrefix(rawURL, "data:"); ok {
		data, ext, err := decodeDataURI(rest)
		if err != nil {
			return nil, "", err
		}
		return data, uuid.NewString() + ext, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("inbox: invalid URL: %w", err)
	}
	if err := checkScheme(u); err != nil {
		return nil, "", err
	}
	data, ext, err := download(ctx, u)
	if err != nil {
		return nil, "", err
	}
	return data, filenameFromURL(rawURL, ext), nil
}

func checkScheme(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("inbox: unsupported scheme %q (only http and https)", u.Scheme)
	}
	return nil
}

// decodeDataURI parses the part after "data:", i.e. <mediatype>[;params];base64,<data>.
func decodeDataURI(rest string) ([]byte, string, error) {
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("inbox: data URI without comma")
	}
	meta, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", errors.New("inbox: only base64 data URIs are supported")
	}
	ext, err := extFor(meta)
	if err != nil {
		return nil, "", err
	}
	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxSourceSize+3 {
		return nil, "", fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, MaxSourceSize)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, "", fmt.Errorf("inbox: invalid base64 data: %w", err)
		}
	}
	if len(data) > MaxSourceSize {
		return nil, "", fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, MaxSourceSize)
	}
	return data, ext, nil
}

func extFor(mediaType string) (string, error) {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return "", fmt.Errorf("%w: media type %q", ErrUnsupported, mediaType)
	}
	ext, ok := extByMediaType[mt]
	if !ok {
		return "", fmt.Errorf("%w: media type %s", ErrUnsupported, mt)
	}
	return ext, nil
}

// download GETs u. The returned extension comes from Content-Type and is
// empty when the type is unknown.
func download(ctx context.Context, u *url.URL) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("inbox: build request: %w", err)
	}
	resp, err := guardedClient().Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("inbox: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("inbox: download: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSourceSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("inbox: read body: %w", err)
	}
	if len(data) > MaxSourceSize {
		return nil, "", fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, MaxSourceSize)
	}
	ext, _ := extFor(resp.Header.Get("Content-Type"))
	return data, ext, nil
}

// filenameFromURL takes the last path element of the URL when it has an
// extension, otherwise a random name with fallbackExt (.txt if empty).
func filenameFromURL(rawURL, fallbackExt string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); path.Ext(base) != "" {
			return base
		}
	}
	if fallbackExt == "" {
		fallbackExt = ".txt"
	}
	return uuid.NewString() + fallbackExt
}
