package adapter

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // RFC 7616 digest auth mandates MD5; not used for integrity
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/accessgrid/fleet-core/internal/device"
)

// Default bounds for vendor HTTP traffic.
const (
	defaultCommandTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20 // 1 MiB, device APIs return small payloads
)

// authMode selects how credentials are presented to the device.
type authMode int

const (
	authBasic authMode = iota
	authDigest
)

// vendorHTTP is the shared HTTP plumbing for vendor adapters.
// Devices sit on private networks with self-signed or absent TLS and all
// traffic is bounded by per-command timeouts.
type vendorHTTP struct {
	client *http.Client
	auth   authMode
}

func newVendorHTTP(auth authMode) *vendorHTTP {
	return &vendorHTTP{
		client: &http.Client{
			// Per-request contexts carry the real timeout; this is a backstop.
			Timeout: 30 * time.Second,
		},
		auth: auth,
	}
}

// baseURL builds the device's root URL from its registration.
func baseURL(dev *device.Device) string {
	scheme := "http"
	if dev.Protocol == device.ProtocolHTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, dev.Host, dev.Port)
}

// do performs an authenticated request and returns the response body.
// Digest mode answers a 401 challenge with a computed response; basic mode
// sends the Authorization header up front.
func (v *vendorHTTP) do(ctx context.Context, method, url string, creds device.Credentials, body []byte, timeout time.Duration) ([]byte, int, error) {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := v.send(reqCtx, method, url, creds, body, "")
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && v.auth == authDigest {
		challenge := resp.Header.Get("WWW-Authenticate")
		drainAndClose(resp.Body)

		if !strings.HasPrefix(strings.ToLower(challenge), "digest") {
			return nil, resp.StatusCode, ErrBadCredentials
		}

		authz, err := digestAuthorization(challenge, creds, method, url)
		if err != nil {
			return nil, resp.StatusCode, err
		}

		resp, err = v.send(reqCtx, method, url, creds, body, authz)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, resp.StatusCode, ErrBadCredentials
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	return data, resp.StatusCode, nil
}

// doJSON performs a request with a JSON body and decodes a JSON response.
// A nil result map is returned for empty bodies.
func (v *vendorHTTP) doJSON(ctx context.Context, method, url string, creds device.Credentials, payload any, timeout time.Duration) (map[string]any, int, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshalling request: %w", err)
		}
	}

	data, status, err := v.do(ctx, method, url, creds, body, timeout)
	if err != nil {
		return nil, status, err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, status, nil
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		// Vendors sometimes answer XML or plain text; hand back the raw body.
		return map[string]any{"raw": string(data)}, status, nil
	}

	return result, status, nil
}

func (v *vendorHTTP) send(ctx context.Context, method, url string, creds device.Credentials, body []byte, authz string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	switch {
	case authz != "":
		req.Header.Set("Authorization", authz)
	case v.auth == authBasic:
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	return v.client.Do(req)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseBytes))
	_ = body.Close()
}

// digestAuthorization computes an RFC 2617 digest response for a challenge.
// Supports the qop="auth" flow used by Hikvision and Dahua firmware.
func digestAuthorization(challenge string, creds device.Credentials, method, rawURL string) (string, error) {
	params := parseDigestChallenge(challenge)

	realm := params["realm"]
	nonce := params["nonce"]
	if nonce == "" {
		return "", fmt.Errorf("%w: digest challenge missing nonce", ErrBadCredentials)
	}

	uri := requestURI(rawURL)

	ha1 := md5Hex(creds.Username + ":" + realm + ":" + creds.Password)
	ha2 := md5Hex(method + ":" + uri)

	var response string
	qop := params["qop"]
	cnonce := ""
	nc := "00000001"

	if strings.Contains(qop, "auth") {
		qop = "auth"
		cnonce = randomCnonce()
		response = md5Hex(strings.Join([]string{ha1, nonce, nc, cnonce, qop, ha2}, ":"))
	} else {
		qop = ""
		response = md5Hex(ha1 + ":" + nonce + ":" + ha2)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `Digest username=%q, realm=%q, nonce=%q, uri=%q, response=%q`,
		creds.Username, realm, nonce, uri, response)
	if opaque := params["opaque"]; opaque != "" {
		fmt.Fprintf(&sb, `, opaque=%q`, opaque)
	}
	if qop != "" {
		fmt.Fprintf(&sb, `, qop=%s, nc=%s, cnonce=%q`, qop, nc, cnonce)
	}

	return sb.String(), nil
}

// parseDigestChallenge extracts key/value pairs from a WWW-Authenticate header.
func parseDigestChallenge(challenge string) map[string]string {
	challenge = strings.TrimSpace(challenge)
	if i := strings.IndexByte(challenge, ' '); i > 0 {
		challenge = challenge[i+1:] // drop the "Digest" scheme token
	}

	params := make(map[string]string)
	for _, part := range splitChallengeParams(challenge) {
		k, v, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.Trim(strings.TrimSpace(v), `"`)
		params[k] = v
	}
	return params
}

// splitChallengeParams splits on commas outside quoted strings.
func splitChallengeParams(s string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// requestURI strips scheme and host, keeping path and query.
func requestURI(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rest := rawURL[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return rest[j:]
		}
		return "/"
	}
	return rawURL
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // digest auth, not integrity
	return hex.EncodeToString(sum[:])
}

func randomCnonce() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0a1b2c3d4e5f6071"
	}
	return hex.EncodeToString(b)
}
