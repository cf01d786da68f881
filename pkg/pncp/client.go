// Package pncp is a client for Brazil's PNCP public procurement registry.
// It layers sliding-window rate limiting, token management and a bounded
// retry ladder under typed listing and detail operations.
package pncp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sealtrack/pncp-radar/internal/resilience"
)

const (
	defaultBaseURL = "https://pncp.gov.br/api"

	loginPath   = "/v1/usuarios/login"
	listingPath = "/consulta/v1/contratacoes/publicacao"
	itemsPath   = "/pncp/v1/orgaos/%s/compras/%d/%d/itens"

	// Server-enforced page size bounds on the listing endpoint.
	minPageSize     = 10
	maxPageSize     = 50
	defaultPageSize = 50
	itemPageSize    = 100

	// Hard pagination ceiling. The upstream API documents no limit, so this
	// keeps a runaway page count from hanging a partition indefinitely.
	maxPages = 20

	rateLimitCap = 60 * time.Second
)

// Client defines the PNCP operations used by the discovery pipeline.
type Client interface {
	// SearchTenders fetches a single listing page for the query.
	SearchTenders(ctx context.Context, q SearchQuery, pageNum int) ([]Tender, int, error)
	// SearchAllTenders fetches every listing page for the query, up to the
	// pagination ceiling.
	SearchAllTenders(ctx context.Context, q SearchQuery) ([]Tender, error)
	// TenderItems fetches all line items of a tender, following pagination.
	TenderItems(ctx context.Context, ref TenderRef) ([]Item, error)
	// SampleItems fetches at most n line items of a tender with one call.
	SampleItems(ctx context.Context, ref TenderRef, n int) ([]Item, error)
}

// APIError is returned when the registry responds with a non-2xx status, or
// when the retry budget is exhausted (StatusCode 500 class in that case).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pncp: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithCredentials enables authenticated mode. Without this option the
// client reads the public consultation endpoints anonymously.
func WithCredentials(creds Credentials) Option {
	return func(c *httpClient) { c.creds = creds }
}

// WithTokenBuffer sets how long before actual expiry a token is treated as
// expired.
func WithTokenBuffer(d time.Duration) Option {
	return func(c *httpClient) { c.tokenBuffer = d }
}

// WithLimiter replaces the default sliding-window rate limiter.
func WithLimiter(l *WindowLimiter) Option {
	return func(c *httpClient) { c.limiter = l }
}

// WithRetry sets the attempt budget and base backoff delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *httpClient) {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			c.baseDelay = baseDelay
		}
	}
}

// WithPagePacing sets the requests-per-second pacing between successive
// pages of one paginated fetch.
func WithPagePacing(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.pacer = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	http        *http.Client
	baseURL     string
	creds       Credentials
	tokenBuffer time.Duration
	limiter     *WindowLimiter
	pacer       *rate.Limiter
	maxRetries  int
	baseDelay   time.Duration
	sess        *session

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a PNCP client. Without WithCredentials it operates in
// anonymous mode against the public consultation endpoints.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:     defaultBaseURL,
		tokenBuffer: 5 * time.Minute,
		maxRetries:  3,
		baseDelay:   time.Second,
		pacer:       rate.NewLimiter(10, 1),
		sleep:       resilience.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = NewWindowLimiter(60, 1000)
	}
	c.sess = newSession(c.creds, c.tokenBuffer)
	return c
}

// SearchTenders fetches one listing page. The returned int is the number of
// pages the server reports as remaining after this one, counted before the
// ongoing filter is applied.
func (c *httpClient) SearchTenders(ctx context.Context, q SearchQuery, pageNum int) ([]Tender, int, error) {
	tenders, remaining, err := c.searchPage(ctx, q, pageNum)
	if err != nil {
		return nil, 0, err
	}
	if q.OnlyOngoing {
		tenders = FilterOngoing(tenders)
	}
	return tenders, remaining, nil
}

// searchPage fetches one raw listing page. Status filtering happens after
// pagination decisions: a page whose tenders all filter out must not look
// like the end of the listing.
func (c *httpClient) searchPage(ctx context.Context, q SearchQuery, pageNum int) ([]Tender, int, error) {
	params := url.Values{}
	params.Set("dataInicial", q.Window.StartParam())
	params.Set("dataFinal", q.Window.EndParam())
	params.Set("codigoModalidadeContratacao", strconv.Itoa(q.Modality))
	params.Set("pagina", strconv.Itoa(pageNum))
	params.Set("tamanhoPagina", strconv.Itoa(clampPageSize(q.PageSize)))
	if q.UF != "" {
		params.Set("uf", q.UF)
	}
	if q.MunicipalityCode != "" {
		params.Set("codigoMunicipioIbge", q.MunicipalityCode)
	}
	if q.CNPJ != "" {
		params.Set("cnpj", q.CNPJ)
	}

	var pg page[Tender]
	if err := c.doJSON(ctx, http.MethodGet, listingPath, params, nil, &pg, false); err != nil {
		return nil, 0, eris.Wrapf(err, "pncp: search tenders %s modality %d page %d", q.UF, q.Modality, pageNum)
	}

	return pg.Data, pg.PagesRemaining, nil
}

// SearchAllTenders fetches every listing page for the query.
func (c *httpClient) SearchAllTenders(ctx context.Context, q SearchQuery) ([]Tender, error) {
	tenders, err := collectPages(ctx, c.pacer, func(ctx context.Context, pageNum int) ([]Tender, int, error) {
		return c.searchPage(ctx, q, pageNum)
	})
	if err != nil {
		return nil, err
	}
	if q.OnlyOngoing {
		tenders = FilterOngoing(tenders)
	}
	return tenders, nil
}

// TenderItems fetches all line items of a tender, following pagination up
// to the page ceiling.
func (c *httpClient) TenderItems(ctx context.Context, ref TenderRef) ([]Item, error) {
	return collectPages(ctx, c.pacer, func(ctx context.Context, pageNum int) ([]Item, int, error) {
		return c.itemPage(ctx, ref, pageNum)
	})
}

// SampleItems fetches the first page of a tender's items and truncates to n.
// One call regardless of how many items the tender has; the point of
// sampling is to spend as little as possible deciding relevance.
func (c *httpClient) SampleItems(ctx context.Context, ref TenderRef, n int) ([]Item, error) {
	if n <= 0 {
		return nil, nil
	}
	items, _, err := c.itemPage(ctx, ref, 1)
	if err != nil {
		return nil, err
	}
	if len(items) > n {
		items = items[:n]
	}
	return items, nil
}

func (c *httpClient) itemPage(ctx context.Context, ref TenderRef, pageNum int) ([]Item, int, error) {
	path := fmt.Sprintf(itemsPath, ref.CNPJ, ref.Year, ref.Sequential)
	params := url.Values{}
	params.Set("pagina", strconv.Itoa(pageNum))
	params.Set("tamanhoPagina", strconv.Itoa(itemPageSize))

	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, params, nil, &raw, true); err != nil {
		return nil, 0, eris.Wrapf(err, "pncp: tender items %s/%d/%d page %d", ref.CNPJ, ref.Year, ref.Sequential, pageNum)
	}
	return decodeItemPage(raw)
}

// decodeItemPage handles both shapes the items endpoint responds with: a
// bare JSON array, or the usual page envelope.
func decodeItemPage(raw json.RawMessage) ([]Item, int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, 0, nil
	}
	if trimmed[0] == '[' {
		var items []Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, 0, eris.Wrap(err, "pncp: decode item list")
		}
		return items, 0, nil
	}
	var pg page[Item]
	if err := json.Unmarshal(trimmed, &pg); err != nil {
		return nil, 0, eris.Wrap(err, "pncp: decode item page")
	}
	return pg.Data, pg.PagesRemaining, nil
}

// login authenticates and swaps the session token. Runs through doJSON with
// auth disabled so it cannot recurse into itself.
func (c *httpClient) login(ctx context.Context) error {
	body := map[string]string{
		"login": c.creds.Login,
		"senha": c.creds.Password,
	}
	var resp struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expiresIn"`
	}
	if err := c.doJSON(ctx, http.MethodPost, loginPath, nil, body, &resp, true); err != nil {
		return eris.Wrap(err, "pncp: login")
	}

	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return eris.New("pncp: login succeeded but response carried no token")
	}

	// PNCP tokens last about an hour; the server does not always say so.
	ttl := time.Hour
	if resp.ExpiresIn > 0 {
		ttl = time.Duration(resp.ExpiresIn) * time.Second
	}
	c.sess.replace(AuthToken{Token: token, ExpiresAt: time.Now().Add(ttl)})
	zap.L().Info("pncp: authenticated", zap.Duration("token_ttl", ttl))
	return nil
}

// ensureAuth makes sure a usable token is held before an authenticated
// request. Anonymous mode succeeds immediately: the upstream API supports
// unauthenticated reads on every endpoint this client touches.
func (c *httpClient) ensureAuth(ctx context.Context) error {
	if !c.sess.needsLogin() {
		return nil
	}
	return c.login(ctx)
}

// doJSON runs one logical request through the full ladder: rate limiter
// admission, auth, then up to maxRetries attempts with exponential backoff.
// A 401 on a request that carried a token triggers a single refresh-and-replay
// that does not consume the retry budget. Exhausting the budget returns a
// 500-class APIError; nothing is ever raised past this boundary.
func (c *httpClient) doJSON(ctx context.Context, method, path string, params url.Values, body, out any, skipAuth bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "pncp: marshal request body")
		}
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	refreshed := false
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "pncp: rate limiter wait")
		}
		if !skipAuth {
			if err := c.ensureAuth(ctx); err != nil {
				return err
			}
		}

		status, data, err := c.attempt(ctx, method, fullURL, payload, skipAuth)
		if err != nil {
			if ctx.Err() != nil {
				return eris.Wrap(err, "pncp: request cancelled")
			}
			lastErr = err
			zap.L().Warn("pncp: request failed, retrying",
				zap.String("url", fullURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		switch {
		case status == http.StatusUnauthorized && !skipAuth && !c.sess.anonymous() && !refreshed:
			// Expired token despite the buffer: refresh once and replay the
			// same attempt without charging the retry budget.
			refreshed = true
			zap.L().Info("pncp: token rejected, refreshing", zap.String("url", fullURL))
			if err := c.login(ctx); err != nil {
				return err
			}
			attempt--
			continue

		case status == http.StatusTooManyRequests:
			lastErr = &APIError{StatusCode: status, Body: string(data)}
			wait := resilience.Delay(attempt, c.baseDelay, rateLimitCap)
			zap.L().Warn("pncp: rate limited by server, backing off",
				zap.String("url", fullURL),
				zap.Duration("wait", wait),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return eris.Wrap(err, "pncp: backoff interrupted")
			}
			continue

		case resilience.IsTransientHTTPStatus(status):
			lastErr = &APIError{StatusCode: status, Body: string(data)}
			zap.L().Warn("pncp: server error, retrying",
				zap.String("url", fullURL),
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
			)
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
			continue

		case status < 200 || status >= 300:
			// Non-retryable client error: terminal for this call only.
			return &APIError{StatusCode: status, Body: string(data)}
		}

		if out == nil || status == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			// Malformed body from a 2xx counts as transient: the registry
			// intermittently serves truncated JSON under load.
			lastErr = eris.Wrap(err, "pncp: decode response")
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
			continue
		}
		return nil
	}

	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Body:       fmt.Sprintf("retry budget exhausted after %d attempts: %v", c.maxRetries, lastErr),
	}
}

// attempt issues exactly one HTTP round trip and drains the body.
func (c *httpClient) attempt(ctx context.Context, method, fullURL string, payload []byte, skipAuth bool) (int, []byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, rd)
	if err != nil {
		return 0, nil, eris.Wrap(err, "pncp: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "pncp-radar/1.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !skipAuth {
		if tok, ok := c.sess.bearer(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, eris.Wrap(err, "pncp: execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, eris.Wrap(err, "pncp: read response body")
	}
	return resp.StatusCode, data, nil
}

func (c *httpClient) backoff(ctx context.Context, attempt int) error {
	wait := resilience.Delay(attempt, c.baseDelay, rateLimitCap)
	if err := c.sleep(ctx, wait); err != nil {
		return eris.Wrap(err, "pncp: backoff interrupted")
	}
	return nil
}

func clampPageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	if n < minPageSize {
		return minPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
