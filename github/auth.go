package github

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AppTransport is an http.RoundTripper that authenticates requests as a
// GitHub App installation. The installation access token is cached and
// refreshed shortly before it expires.
type AppTransport struct {
	appID      int64
	privateKey *rsa.PrivateKey
	baseURL    string

	mu             sync.Mutex
	installationID int64
	token          string
	tokenExpiry    time.Time
}

// NewAppTransport creates an AppTransport from an App ID and its PEM private key.
func NewAppTransport(appID int64, privateKeyPEM []byte) (*AppTransport, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// GitHub issues PKCS1 keys, but converted keys may be PKCS8
		parsed, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("failed to parse private key (PKCS1: %v, PKCS8: %v)", err, err2)
		}
		var ok bool
		key, ok = parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not an RSA key")
		}
	}

	return &AppTransport{
		appID:      appID,
		privateKey: key,
		baseURL:    "https://api.github.com",
	}, nil
}

// RoundTrip attaches an installation token to the request.
func (t *AppTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.installationToken()
	if err != nil {
		return nil, fmt.Errorf("failed to get installation token: %w", err)
	}

	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+token)
	req2.Header.Set("Accept", "application/vnd.github+json")

	return http.DefaultTransport.RoundTrip(req2)
}

// installationToken returns the cached token, refreshing it when it is
// within a minute of expiring.
func (t *AppTransport) installationToken() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.tokenExpiry.Add(-1*time.Minute)) {
		return t.token, nil
	}

	if t.installationID == 0 {
		id, err := t.fetchInstallationID()
		if err != nil {
			return "", err
		}
		t.installationID = id
	}

	token, expiry, err := t.fetchInstallationToken(t.installationID)
	if err != nil {
		return "", err
	}

	t.token = token
	t.tokenExpiry = expiry
	return t.token, nil
}

// appJWT signs a short-lived RS256 JWT identifying the App itself.
func (t *AppTransport) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(t.appID, 10),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(t.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign app JWT: %w", err)
	}
	return signed, nil
}

// fetchInstallationID returns the first installation of the App.
func (t *AppTransport) fetchInstallationID() (int64, error) {
	body, err := t.appRequest("GET", t.baseURL+"/app/installations", http.StatusOK)
	if err != nil {
		return 0, err
	}

	var installations []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &installations); err != nil {
		return 0, fmt.Errorf("failed to parse installations response: %w", err)
	}
	if len(installations) == 0 {
		return 0, fmt.Errorf("no installation found for App")
	}

	return installations[0].ID, nil
}

// fetchInstallationToken mints an installation access token.
func (t *AppTransport) fetchInstallationToken(installationID int64) (string, time.Time, error) {
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", t.baseURL, installationID)
	body, err := t.appRequest("POST", url, http.StatusCreated)
	if err != nil {
		return "", time.Time{}, err
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to parse access_tokens response: %w", err)
	}

	return result.Token, result.ExpiresAt, nil
}

// appRequest performs a request authenticated with the App JWT.
func (t *AppTransport) appRequest(method, url string, wantStatus int) ([]byte, error) {
	token, err := t.appJWT()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if resp.StatusCode != wantStatus {
		return nil, fmt.Errorf("request to %s failed (status=%d): %s", url, resp.StatusCode, body)
	}

	return body, nil
}
