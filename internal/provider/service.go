package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"open-finance-sync-go/internal/models"
	"open-finance-sync-go/internal/retry"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	DefaultPageSize = 500
	DefaultMaxPages = 5

	maxErrorBody = 64 << 10
	dateLayout   = "2006-01-02"
)

// Service is a typed client for the Open Finance aggregator API.
type Service struct {
	name         string
	baseURL      string
	clientId     string
	clientSecret string
	redirectURL  string

	httpClient  *http.Client
	tokens      *TokenCache
	retryPolicy retry.Policy
	pageSize    int
	maxPages    int
}

// ServiceConfig wires a Service. HTTPClient and Now are optional.
type ServiceConfig struct {
	Provider   models.ProviderConfig
	Retry      models.RetryConfig
	HTTPClient *http.Client
	Now        func() time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("provider base url cannot be empty")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		c, err := createCustomHttpClient(cfg.Provider.HTTPTimeout)
		if err != nil {
			return nil, fmt.Errorf("unable to create custom http client: %w", err)
		}
		httpClient = c
	}

	pageSize := cfg.Provider.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxPages := cfg.Provider.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	s := &Service{
		name:         cfg.Provider.Name,
		baseURL:      strings.TrimRight(cfg.Provider.BaseURL, "/"),
		clientId:     cfg.Provider.ClientId,
		clientSecret: cfg.Provider.ClientSecret,
		redirectURL:  cfg.Provider.RedirectURL,
		httpClient:   httpClient,
		retryPolicy:  newRetryPolicy(cfg.Retry),
		pageSize:     pageSize,
		maxPages:     maxPages,
	}
	s.tokens = NewTokenCache(s.authenticate, cfg.Provider.TokenTTL, cfg.Now)

	if missing := s.missingCredentials(); len(missing) > 0 {
		zap.L().Warn("Open Finance credentials are not set; provider calls will fail",
			zap.Strings("missing", missing))
	}

	return s, nil
}

// Name returns the provider name stored on synced rows.
func (s *Service) Name() string {
	return s.name
}

func createCustomHttpClient(timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// newRetryPolicy fills unset fields from retry.DefaultPolicy.
func newRetryPolicy(cfg models.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelay > 0 {
		policy.InitialDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		policy.MaxDelay = cfg.MaxDelay
	}
	if cfg.BackoffFactor >= 1 {
		policy.BackoffFactor = cfg.BackoffFactor
	}
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		zap.L().Warn("Provider call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return policy
}

func (s *Service) missingCredentials() []string {
	var missing []string
	if s.clientId == "" {
		missing = append(missing, "OPEN_FINANCE_CLIENT_ID")
	}
	if s.clientSecret == "" {
		missing = append(missing, "OPEN_FINANCE_CLIENT_SECRET")
	}
	return missing
}

type authRequest struct {
	ClientId     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type authResponse struct {
	ApiKey      string `json:"apiKey"`
	AccessToken string `json:"accessToken"`
}

// authenticate exchanges the client credentials for a bearer token.
func (s *Service) authenticate(ctx context.Context) (string, error) {
	if missing := s.missingCredentials(); len(missing) > 0 {
		return "", &ConfigurationError{Missing: missing}
	}

	zap.L().Debug("Authenticating with Open Finance provider", zap.String("provider", s.name))

	var out authResponse
	err := s.send(ctx, http.MethodPost, "/auth", nil, authRequest{
		ClientId:     s.clientId,
		ClientSecret: s.clientSecret,
	}, &out, "")
	if err != nil {
		return "", fmt.Errorf("unable to authenticate with provider: %w", err)
	}

	token := out.ApiKey
	if token == "" {
		token = out.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("provider authentication returned an empty token")
	}
	return token, nil
}

// AccessToken returns the cached bearer token, performing the handshake
// when needed.
func (s *Service) AccessToken(ctx context.Context) (string, error) {
	return s.tokens.Get(ctx)
}

type listResponse[T any] struct {
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
	Page       int `json:"page"`
	Results    []T `json:"results"`
}

// ListInstitutions returns the connectors available to link, optionally
// filtered by name.
func (s *Service) ListInstitutions(ctx context.Context, search string) ([]models.Institution, error) {
	query := url.Values{}
	if search != "" {
		query.Set("name", search)
	}

	var out listResponse[models.Institution]
	if err := s.do(ctx, http.MethodGet, "/connectors", query, nil, &out); err != nil {
		return nil, fmt.Errorf("unable to list institutions: %w", err)
	}
	return out.Results, nil
}

type connectTokenRequest struct {
	ClientUserId     string `json:"clientUserId"`
	OauthRedirectUri string `json:"oauthRedirectUri,omitempty"`
}

// CreateConnectToken creates a widget token scoped to one end user.
func (s *Service) CreateConnectToken(ctx context.Context, userId string) (*models.ConnectToken, error) {
	if userId == "" {
		return nil, fmt.Errorf("user id is required")
	}

	var out models.ConnectToken
	err := s.do(ctx, http.MethodPost, "/connect_token", nil, connectTokenRequest{
		ClientUserId:     userId,
		OauthRedirectUri: s.redirectURL,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("unable to create connect token: %w", err)
	}
	return &out, nil
}

// GetItem returns the provider-side state of a linkage.
func (s *Service) GetItem(ctx context.Context, itemId string) (*models.ProviderItem, error) {
	var out models.ProviderItem
	if err := s.do(ctx, http.MethodGet, "/items/"+url.PathEscape(itemId), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("unable to get item %s: %w", itemId, err)
	}
	return &out, nil
}

// GetAccounts lists the accounts behind an item.
func (s *Service) GetAccounts(ctx context.Context, itemId string) ([]models.ProviderAccount, error) {
	query := url.Values{}
	query.Set("itemId", itemId)

	var out listResponse[models.ProviderAccount]
	if err := s.do(ctx, http.MethodGet, "/accounts", query, nil, &out); err != nil {
		return nil, fmt.Errorf("unable to get accounts for item %s: %w", itemId, err)
	}

	zap.L().Debug("Provider accounts received",
		zap.String("item_id", itemId),
		zap.Int("count", len(out.Results)))
	return out.Results, nil
}

// TransactionsParams selects a window of provider transactions. Zero To
// leaves the window open-ended; zero PageSize/MaxPages use the service
// defaults.
type TransactionsParams struct {
	AccountId string
	From      time.Time
	To        time.Time
	PageSize  int
	MaxPages  int
}

// GetTransactions pages through an account's transactions until a short
// page is returned or MaxPages is reached.
func (s *Service) GetTransactions(ctx context.Context, params TransactionsParams) ([]models.ProviderTransaction, error) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	maxPages := params.MaxPages
	if maxPages <= 0 {
		maxPages = s.maxPages
	}

	var transactions []models.ProviderTransaction
	for page := 1; page <= maxPages; page++ {
		query := url.Values{}
		query.Set("accountId", params.AccountId)
		query.Set("page", strconv.Itoa(page))
		query.Set("pageSize", strconv.Itoa(pageSize))
		query.Set("from", params.From.UTC().Format(dateLayout))
		if !params.To.IsZero() {
			query.Set("to", params.To.UTC().Format(dateLayout))
		}

		var out listResponse[models.ProviderTransaction]
		if err := s.do(ctx, http.MethodGet, "/transactions", query, nil, &out); err != nil {
			return nil, fmt.Errorf("unable to get transactions for account %s (page %d): %w", params.AccountId, page, err)
		}

		transactions = append(transactions, out.Results...)

		zap.L().Debug("Provider transactions page received",
			zap.String("account_id", params.AccountId),
			zap.Int("page", page),
			zap.Int("count", len(out.Results)))

		if len(out.Results) < pageSize {
			break
		}
		if page == maxPages {
			zap.L().Warn("Transaction pagination stopped at page limit",
				zap.String("account_id", params.AccountId),
				zap.Int("max_pages", maxPages))
		}
	}

	return transactions, nil
}

// SyncItem asks the provider to refresh its own view of the institution.
func (s *Service) SyncItem(ctx context.Context, itemId string) error {
	if err := s.do(ctx, http.MethodPost, "/items/"+url.PathEscape(itemId)+"/sync", nil, nil, nil); err != nil {
		return fmt.Errorf("unable to sync item %s: %w", itemId, err)
	}
	return nil
}

// DeleteItem disconnects the item at the provider.
func (s *Service) DeleteItem(ctx context.Context, itemId string) error {
	if err := s.do(ctx, http.MethodDelete, "/items/"+url.PathEscape(itemId), nil, nil, nil); err != nil {
		return fmt.Errorf("unable to delete item %s: %w", itemId, err)
	}
	return nil
}

// do sends an authenticated request. A 401 drops the cached token and the
// request is replayed once with a fresh one.
func (s *Service) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	token, err := s.tokens.Get(ctx)
	if err != nil {
		return err
	}

	err = s.send(ctx, method, path, query, in, out, token)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		zap.L().Info("Provider rejected access token, refreshing", zap.String("path", path))
		s.tokens.Invalidate()
		token, err = s.tokens.Refresh(ctx)
		if err != nil {
			return err
		}
		return s.send(ctx, method, path, query, in, out, token)
	}
	return err
}

func (s *Service) send(ctx context.Context, method, path string, query url.Values, in, out any, token string) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("unable to encode request: %w", err)
		}
	}

	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	zap.L().Debug("Making provider API request",
		zap.String("method", method),
		zap.String("path", path))

	resp, err := retry.DoFetch(ctx, s.httpClient, func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req, nil
	}, s.retryPolicy)
	if err != nil {
		return translateError(err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newAPIError(resp.StatusCode, resp.Status, body)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unable to decode provider response: %w", err)
	}
	return nil
}

// translateError maps retry exhaustion onto the provider error taxonomy.
func translateError(err error) error {
	var statusErr *retry.StatusError
	if errors.As(err, &statusErr) {
		return newAPIError(statusErr.StatusCode, statusErr.Status, statusErr.Body)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}
	return err
}
