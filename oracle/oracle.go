// Package oracle converts USD catalog prices into native-token amounts using
// the CoinGecko simple price API, with a conservative hard-coded fallback so
// a feed outage never blocks promotion creation.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"promogate/models"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// nativeDecimals is the precision native amounts are rounded to at creation.
const nativeDecimals = 6

// currencyIDs maps each chain to its upstream quote identifier.
var currencyIDs = map[models.Chain]string{
	models.ChainSolana:   "solana",
	models.ChainEthereum: "ethereum",
	models.ChainPolygon:  "matic-network",
	models.ChainXRP:      "ripple",
}

// fallbackPrices is the conservative table used whenever the upstream feed is
// unavailable or returns an unusable payload.
var fallbackPrices = map[string]float64{
	"solana":        200.0,
	"ethereum":      3500.0,
	"matic-network": 0.70,
	"ripple":        0.55,
}

// quoteCache holds the last successful price snapshot together with the time
// it was fetched. Owned by the oracle instance; there is no process-wide
// price state.
type quoteCache struct {
	mu        sync.Mutex
	prices    map[string]float64
	fetchedAt time.Time
}

// Oracle fetches USD quotes for the fixed set of accepted currencies.
type Oracle struct {
	client   HTTPDoer
	endpoint string
	ttl      time.Duration
	cache    quoteCache
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises the oracle instance.
type Option func(*Oracle)

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Oracle) { o.now = clock }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Oracle) { o.logger = logger }
}

// New constructs an oracle. When the client is nil http.DefaultClient is used
// and when the endpoint is empty the public CoinGecko endpoint applies.
func New(client HTTPDoer, endpoint string, ttl time.Duration, opts ...Option) *Oracle {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	o := &Oracle{
		client:   client,
		endpoint: ep,
		ttl:      ttl,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Prices returns the USD price per currency identifier. A cached snapshot is
// reused within the TTL; on refresh failure the fallback table is returned.
// Prices never errors so a feed outage cannot block request intake.
func (o *Oracle) Prices(ctx context.Context) map[string]float64 {
	o.cache.mu.Lock()
	defer o.cache.mu.Unlock()
	now := o.now()
	if o.cache.prices != nil && now.Sub(o.cache.fetchedAt) < o.ttl {
		return clonePrices(o.cache.prices)
	}
	fetched, err := o.fetch(ctx)
	if err != nil {
		o.logger.Warn("price feed unavailable, using fallback table", "error", err)
		return clonePrices(fallbackPrices)
	}
	o.cache.prices = fetched
	o.cache.fetchedAt = now
	return clonePrices(fetched)
}

func (o *Oracle) fetch(ctx context.Context) (map[string]float64, error) {
	ids := make([]string, 0, len(currencyIDs))
	for _, id := range currencyIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint, nil)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("ids", strings.Join(ids, ","))
	values.Set("vs_currencies", "usd")
	req.URL.RawQuery = values.Encode()

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("oracle: decode: %w", err)
	}

	prices := make(map[string]float64, len(ids))
	for _, id := range ids {
		if entry, ok := payload[id]; ok {
			if usd, ok := entry["usd"]; ok && usd > 0 {
				prices[id] = usd
				continue
			}
		}
		// Missing coins fall back individually rather than failing the batch.
		prices[id] = fallbackPrices[id]
		o.logger.Warn("quote missing from feed, using fallback", "currency", id, "price", prices[id])
	}
	return prices, nil
}

// USDToNative converts a USD price into the chain's native amount rounded to
// six decimal places. A non-positive quote yields an error; callers must
// treat that as "cannot price this request right now".
func USDToNative(usdPrice float64, chain models.Chain, prices map[string]float64) (float64, error) {
	id, ok := currencyIDs[chain]
	if !ok {
		return 0, fmt.Errorf("oracle: unsupported chain %q", chain)
	}
	perCoin := prices[id]
	if perCoin <= 0 {
		return 0, fmt.Errorf("oracle: no positive quote for %s", id)
	}
	native := usdPrice / perCoin
	scale := math.Pow10(nativeDecimals)
	return math.Round(native*scale) / scale, nil
}

// CurrencyID exposes the upstream quote identifier for a chain.
func CurrencyID(chain models.Chain) string {
	return currencyIDs[chain]
}

func clonePrices(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
