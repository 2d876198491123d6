package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opsdash/commesse-api/config"
)

// Auth0UserInfo represents the user information returned from Auth0's /userinfo endpoint
type Auth0UserInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// lookupBackoff is how long a subject whose lookup failed is served its
// own id before /userinfo is asked again
const lookupBackoff = time.Minute

// Auth0Service resolves display names for token subjects. Names are cached
// per subject for the lifetime of the process, failed lookups for lookupBackoff.
type Auth0Service struct {
	domain     string
	httpClient *http.Client
	now        func() time.Time

	mu       sync.RWMutex
	names    map[string]string
	failures map[string]time.Time
}

// NewAuth0Service creates a new Auth0 service instance
func NewAuth0Service(cfg *config.Config) *Auth0Service {
	return &Auth0Service{
		domain: cfg.Auth0Domain,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		now:      time.Now,
		names:    make(map[string]string),
		failures: make(map[string]time.Time),
	}
}

// GetUserInfo fetches user information from Auth0's /userinfo endpoint
func (s *Auth0Service) GetUserInfo(ctx context.Context, accessToken string) (*Auth0UserInfo, error) {
	// A domain with a scheme is used as-is (test servers)
	var url string
	if strings.HasPrefix(s.domain, "http://") || strings.HasPrefix(s.domain, "https://") {
		url = fmt.Sprintf("%s/userinfo", s.domain)
	} else {
		url = fmt.Sprintf("https://%s/userinfo", s.domain)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("userinfo endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo Auth0UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	return &userInfo, nil
}

// DisplayName returns the name of subject, asking /userinfo on a cache miss.
// It falls back to the email, then to the subject itself. After a failed
// lookup the subject is returned without a call until the backoff expires.
func (s *Auth0Service) DisplayName(ctx context.Context, subject, accessToken string) (string, error) {
	s.mu.RLock()
	name, ok := s.names[subject]
	retryAt, failed := s.failures[subject]
	s.mu.RUnlock()
	if ok {
		return name, nil
	}
	if failed && s.now().Before(retryAt) {
		return subject, nil
	}

	info, err := s.GetUserInfo(ctx, accessToken)
	if err != nil {
		s.mu.Lock()
		s.failures[subject] = s.now().Add(lookupBackoff)
		s.mu.Unlock()
		return subject, err
	}

	name = info.Name
	if name == "" {
		name = info.Email
	}
	if name == "" {
		name = subject
	}

	s.mu.Lock()
	s.names[subject] = name
	delete(s.failures, subject)
	s.mu.Unlock()
	return name, nil
}
