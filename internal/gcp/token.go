package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// cloudPlatformScope grants access to Vertex AI prediction endpoints.
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// refreshSkew renews tokens this long before they actually expire so
	// in-flight requests never carry a token about to lapse.
	refreshSkew = 60 * time.Second
)

// TokenSource yields bearer tokens for Google Cloud API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token. Used in tests and in environments
// where a token is injected externally.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	return string(s), nil
}

// serviceAccountKey is the subset of a Google service account JSON key file
// the token source needs.
type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// ServiceAccountTokenSource exchanges a signed RS256 assertion for an OAuth2
// access token and caches it until shortly before expiry.
type ServiceAccountTokenSource struct {
	email    string
	signKey  any
	tokenURI string
	client   *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewServiceAccountTokenSource loads the service account key file referenced
// by GOOGLE_APPLICATION_CREDENTIALS (or an explicit path).
func NewServiceAccountTokenSource(credentialsPath string) (*ServiceAccountTokenSource, error) {
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading service account key: %w", err)
	}
	return newTokenSourceFromKey(raw)
}

func newTokenSourceFromKey(raw []byte) (*ServiceAccountTokenSource, error) {
	var key serviceAccountKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, fmt.Errorf("parsing service account key: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("service account key missing client_email or private_key")
	}
	if key.TokenURI == "" {
		key.TokenURI = "https://oauth2.googleapis.com/token"
	}

	signKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(key.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parsing service account private key: %w", err)
	}

	return &ServiceAccountTokenSource{
		email:    key.ClientEmail,
		signKey:  signKey,
		tokenURI: key.TokenURI,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Token returns a cached access token, exchanging a fresh assertion when the
// cached one is missing or near expiry.
func (ts *ServiceAccountTokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Now().Before(ts.expiry.Add(-refreshSkew)) {
		return ts.token, nil
	}

	assertion, err := ts.assertion()
	if err != nil {
		return "", err
	}

	token, expiresIn, err := ts.exchange(ctx, assertion)
	if err != nil {
		return "", err
	}

	ts.token = token
	ts.expiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return ts.token, nil
}

func (ts *ServiceAccountTokenSource) assertion() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   ts.email,
		"scope": cloudPlatformScope,
		"aud":   ts.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(ts.signKey)
	if err != nil {
		return "", fmt.Errorf("signing token assertion: %w", err)
	}
	return signed, nil
}

func (ts *ServiceAccountTokenSource) exchange(ctx context.Context, assertion string) (string, int, error) {
	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, fmt.Errorf("parsing token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", 0, fmt.Errorf("token response contained no access_token")
	}
	return parsed.AccessToken, parsed.ExpiresIn, nil
}
