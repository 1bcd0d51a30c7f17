package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rugbyfantasy/sixnations-optimizer/internal/rugby"
)

const (
	defaultPageSize = 50
	statsCacheTTL   = 1 * time.Hour

	// The web client always sends this sort key; the API rejects requests
	// without it. Result order does not matter to us.
	sortCriterion = "critere_16"

	criterionAveragePoints = "Average points"
	criterionTotalPoints   = "Total points"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// StatsConfig carries connection settings for the fantasy stats API.
type StatsConfig struct {
	BaseURL   string
	Token     string // JWT issued to a logged-in fantasy account
	AccessKey string
	PageSize  int
	RateLimit time.Duration // minimum spacing between successive requests
	Timeout   time.Duration
}

// SixNationsClient implements rugby.StatsProvider against the official
// fantasy game's private stats endpoint.
type SixNationsClient struct {
	baseURL     string
	token       string
	accessKey   string
	pageSize    int
	httpClient  *http.Client
	cache       rugby.CacheProvider
	logger      *logrus.Logger
	rateLimiter *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
}

// NewSixNationsClient creates a stats client. Tokens are issued per fantasy
// account session and expire; an expired token is logged at construction so
// operators find out before the first scheduled sync fails.
func NewSixNationsClient(cfg StatsConfig, cache rugby.CacheProvider, logger *logrus.Logger) *SixNationsClient {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	warnIfTokenStale(cfg.Token, logger)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sixnations-stats",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker":    name,
				"from_state": from,
				"to_state":   to,
			}).Warn("Stats API circuit breaker state changed")
		},
	})

	return &SixNationsClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		token:     cfg.Token,
		accessKey: cfg.AccessKey,
		pageSize:  cfg.PageSize,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:       cache,
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Every(cfg.RateLimit), 1),
		breaker:     cb,
	}
}

// Stats API request structures. Field names follow the upstream wire format,
// which is French: critereRecherche is the search filter, journee the
// matchday. The web app sends null for an unset club and an empty string for
// an unset journee, so both fields stay loosely typed.
type statsRequest struct {
	Credentials statsCredentials `json:"credentials"`
}

type statsCredentials struct {
	CritereRecherche statsSearch `json:"critereRecherche"`
	CritereTri       string      `json:"critereTri"`
	LoadSelect       int         `json:"loadSelect"`
	PageIndex        int         `json:"pageIndex"`
	PageSize         int         `json:"pageSize"`
}

type statsSearch struct {
	Nom      string      `json:"nom"`
	Club     interface{} `json:"club"`
	Position string      `json:"position"`
	Journee  interface{} `json:"journee"`
}

// Stats API response structures. idws and position arrive as numbers or
// strings depending on endpoint version, so they are normalized on read.
type statsResponse struct {
	Joueurs []statsPlayer `json:"joueurs"`
	Total   int           `json:"total"`
}

type statsPlayer struct {
	ID       interface{}    `json:"idws"`
	Name     string         `json:"nomaffiche"`
	Club     string         `json:"club"`
	Position interface{}    `json:"position"`
	Criteres []statsCritere `json:"criteres"`
}

type statsCritere struct {
	Nom     string      `json:"nom"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
}

// GetPlayers fetches the full player pool for a round, paginating until the
// reported total is reached. Round 0 requests season-to-date figures.
func (c *SixNationsClient) GetPlayers(ctx context.Context, round int) ([]rugby.PlayerRecord, error) {
	cacheKey := fmt.Sprintf("sixnations:players:round:%d", round)

	// Check cache first
	if c.cache != nil {
		var cached []rugby.PlayerRecord
		if err := c.cache.GetSimple(cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	now := time.Now().UTC()
	var all []rugby.PlayerRecord
	pageIndex := 0

	for {
		// Rate limiting
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := c.fetchPage(ctx, round, pageIndex)
		if err != nil {
			return nil, fmt.Errorf("fetching stats page %d: %w", pageIndex, err)
		}
		if len(page.Joueurs) == 0 {
			break
		}

		for _, p := range page.Joueurs {
			all = append(all, c.convertPlayer(p, now))
		}

		c.logger.WithFields(logrus.Fields{
			"page":    pageIndex,
			"fetched": len(all),
			"total":   page.Total,
		}).Debug("Fetched stats page")

		if len(all) >= page.Total {
			break
		}
		pageIndex++
	}

	// Cache for an hour; scores only move after matchdays
	if len(all) > 0 && c.cache != nil {
		if err := c.cache.SetSimple(cacheKey, all, statsCacheTTL); err != nil {
			c.logger.WithError(err).Warn("Failed to cache player stats")
		}
	}

	return all, nil
}

func (c *SixNationsClient) fetchPage(ctx context.Context, round, pageIndex int) (*statsResponse, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doFetchPage(ctx, round, pageIndex)
	})
	if err != nil {
		return nil, err
	}
	return result.(*statsResponse), nil
}

func (c *SixNationsClient) doFetchPage(ctx context.Context, round, pageIndex int) (*statsResponse, error) {
	search := statsSearch{Nom: "", Position: ""}
	if round > 0 {
		search.Journee = round
	} else {
		search.Journee = ""
	}

	payload := statsRequest{
		Credentials: statsCredentials{
			CritereRecherche: search,
			CritereTri:       sortCriterion,
			LoadSelect:       0,
			PageIndex:        pageIndex,
			PageSize:         c.pageSize,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/v1/private/stats?lg=en"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("X-Access-Key", c.accessKey)
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/m6n/")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("stats API rejected token (status 401); refresh STATS_API_TOKEN")
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(snippet))
	}

	var page statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding stats response: %w", err)
	}
	return &page, nil
}

// convertPlayer flattens a wire player into a PlayerRecord. Criteria are
// keyed by their display message; a missing or unparseable stat reads as 0.
func (c *SixNationsClient) convertPlayer(p statsPlayer, now time.Time) rugby.PlayerRecord {
	criteria := make(map[string]float64, len(p.Criteres))
	for _, cr := range p.Criteres {
		if cr.Message == "" {
			continue
		}
		criteria[cr.Message] = asFloat(cr.Value)
	}

	// The selection score is non-negative; a negative upstream average reads
	// as missing. Raw criteria keep their sign.
	score := criteria[criterionAveragePoints]
	if score < 0 {
		score = 0
	}

	return rugby.PlayerRecord{
		ID:            asString(p.ID),
		Name:          p.Name,
		Club:          p.Club,
		Position:      rugby.PositionFromCode(asString(p.Position)),
		AveragePoints: score,
		TotalPoints:   criteria[criterionTotalPoints],
		Criteria:      criteria,
		LastUpdated:   now,
		Source:        "sixnations",
	}
}

// Helper functions

// warnIfTokenStale inspects the JWT expiry without verifying the signature.
// We never validate the token ourselves; the API does that. This is purely an
// operator early warning.
func warnIfTokenStale(token string, logger *logrus.Logger) {
	if token == "" {
		logger.Warn("Stats API token is empty; private stats requests will be rejected")
		return
	}

	parsed, _, err := new(jwt.Parser).ParseUnverified(token, &jwt.RegisteredClaims{})
	if err != nil {
		logger.WithError(err).Warn("Stats API token is not a parseable JWT")
		return
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.ExpiresAt == nil {
		return
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		logger.WithField("expired_at", claims.ExpiresAt.Time.UTC()).
			Warn("Stats API token has expired; refresh STATS_API_TOKEN")
	} else if remaining < 48*time.Hour {
		logger.WithField("expires_in", remaining.Round(time.Hour)).
			Warn("Stats API token expires soon")
	}
}

// asString renders an upstream field that may arrive as a string or a number.
func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// IDs and position codes are integral; avoid a decimal tail.
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// asFloat parses an upstream stat value, tolerating strings and missing data.
func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case int:
		return float64(n)
	default:
		return 0
	}
}
