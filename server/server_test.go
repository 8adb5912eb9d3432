package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"promogate/lifecycle"
	"promogate/models"
	"promogate/oracle"
	"promogate/store"
)

type doerFunc func(req *http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func fixedPriceFeed() oracle.HTTPDoer {
	return doerFunc(func(req *http.Request) (*http.Response, error) {
		body := `{
			"ethereum": {"usd": 3250.0},
			"matic-network": {"usd": 0.65},
			"ripple": {"usd": 0.55},
			"solana": {"usd": 200.0}
		}`
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil
	})
}

func newTestServer(t *testing.T) (*Server, *lifecycle.Manager) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	priceOracle := oracle.New(fixedPriceFeed(), "", time.Minute)
	manager, err := lifecycle.NewManager(lifecycle.Config{
		Store:  store.New(db),
		Oracle: priceOracle,
		Collectors: map[models.Chain]string{
			models.ChainEthereum: "0x2222222222222222222222222222222222222222",
			models.ChainSolana:   "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		},
		Deadline: 2 * time.Hour,
	})
	require.NoError(t, err)
	return New(manager, priceOracle, nil), manager
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreatePromotion(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/promotions", map[string]string{
		"tokenAddress": "0xAbc0000000000000000000000000000000000001",
		"chain":        "Ethereum",
		"packageType":  "trending_boost",
		"duration":     "7d",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var result lifecycle.CreateResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Equal(t, 26.00, result.AmountUSD)
	require.Equal(t, 0.008, result.AmountNative)
	require.Equal(t, "0x2222222222222222222222222222222222222222", result.PaymentAddress)
	require.Equal(t, models.StatusPendingPayment, result.Status)
	require.NotEqual(t, uuid.Nil, result.RequestID)
}

func TestCreatePromotionRejectsInvalid(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/promotions", map[string]string{
		"tokenAddress": "0xabc",
		"chain":        "ethereum",
		"packageType":  "golden_ticket",
		"duration":     "7d",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/promotions", strings.NewReader("not json"))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPromotion(t *testing.T) {
	s, manager := newTestServer(t)

	created, err := manager.CreateRequest(context.Background(), lifecycle.CreateInput{
		TokenAddress: "0xabc0000000000000000000000000000000000001",
		Chain:        models.ChainSolana,
		PackageType:  "featured_token",
		Duration:     "24h",
	})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/promotions/"+created.RequestID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.PromotionRequest
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, created.RequestID, got.ID)
	require.Equal(t, models.ChainSolana, got.Chain)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/promotions/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/promotions/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListActivePromotions(t *testing.T) {
	s, manager := newTestServer(t)
	ctx := context.Background()

	created, err := manager.CreateRequest(ctx, lifecycle.CreateInput{
		TokenAddress: "0xabc0000000000000000000000000000000000002",
		Chain:        models.ChainEthereum,
		PackageType:  "hero_banner",
		Duration:     "7d",
	})
	require.NoError(t, err)
	_, err = manager.Activate(ctx, created.RequestID, "0xpaid")
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/promotions/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Promotions []models.PromotionRequest `json:"promotions"`
		Count      int                       `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Equal(t, 1, payload.Count)
	require.Equal(t, created.RequestID, payload.Promotions[0].ID)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/promotions/active?package=trending_boost", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Zero(t, payload.Count)
}

func TestPackagesEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/promotions/packages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Packages []struct {
			Type      string             `json:"type"`
			PricesUSD map[string]float64 `json:"pricesUsd"`
			Quotes    map[string][]struct {
				Chain        string  `json:"chain"`
				AmountNative float64 `json:"amountNative"`
			} `json:"quotes"`
		} `json:"packages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Len(t, payload.Packages, 4)

	var trending map[string][]struct {
		Chain        string  `json:"chain"`
		AmountNative float64 `json:"amountNative"`
	}
	for _, pkg := range payload.Packages {
		if pkg.Type == "trending_boost" {
			require.Equal(t, 26.00, pkg.PricesUSD["7d"])
			trending = pkg.Quotes
		}
	}
	require.NotNil(t, trending)
	found := false
	for _, quote := range trending["7d"] {
		if quote.Chain == "ethereum" {
			require.Equal(t, 0.008, quote.AmountNative)
			found = true
		}
	}
	require.True(t, found, "expected an ethereum quote for trending_boost 7d")
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
