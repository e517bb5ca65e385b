package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/lox/medcast/internal/cache"
	"github.com/lox/medcast/internal/httputil"
	"github.com/lox/medcast/internal/logging"
	"github.com/lox/medcast/internal/metrics"
	"github.com/lox/medcast/internal/models"
)

const referenceTTL = time.Hour

// Client reads medications, municipalities and predictions from the
// prediction backend.
type Client struct {
	baseURL    string
	token      string
	http       *http.Client
	cache      cache.Cache
	log        *zap.Logger
	maxElapsed time.Duration
}

type Option func(*Client)

// WithCache caches reference data responses.
func WithCache(c cache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

func WithHTTPClient(h *http.Client) Option {
	return func(cl *Client) { cl.http = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.log = l.Named("backend") }
}

// WithMaxElapsed bounds the total retry time for rate-limited calls.
func WithMaxElapsed(d time.Duration) Option {
	return func(cl *Client) { cl.maxElapsed = d }
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		http:       httputil.NewClient(),
		log:        logging.OrNop(nil),
		maxElapsed: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchResult describes a single backend response.
type FetchResult struct {
	HTTPStatus   int
	ResponseSize int
	RecordCount  int
	Body         []byte
}

// PredictionQuery selects predictions. Empty fields are omitted from the request.
type PredictionQuery struct {
	MedicationID   string
	MunicipalityID string
	PeriodType     models.PeriodType
}

func (q PredictionQuery) values() url.Values {
	v := url.Values{}
	if q.MedicationID != "" {
		v.Set("medicationId", q.MedicationID)
	}
	if q.MunicipalityID != "" {
		v.Set("municipalityId", q.MunicipalityID)
	}
	if q.PeriodType != "" {
		v.Set("periodType", string(q.PeriodType))
	}
	return v
}

// Scope is a short description used for ingest run auditing.
func (q PredictionQuery) Scope() string {
	parts := []string{q.MedicationID, string(q.PeriodType)}
	if q.MunicipalityID != "" {
		parts = append(parts, q.MunicipalityID)
	}
	return strings.Join(parts, "/")
}

// PredictionBatch is the validated content of one predictions response.
type PredictionBatch struct {
	Predictions []models.Prediction
	Rejected    []Rejection
	FetchResult
}

func (c *Client) Medications(ctx context.Context) ([]models.Medication, error) {
	return cache.Load(ctx, c.cache, "medications", referenceTTL, func(ctx context.Context) ([]models.Medication, error) {
		res, err := c.get(ctx, "medications", nil)
		if err != nil {
			return nil, err
		}
		items, err := decodeList[wireMedication](res.Body, "medications")
		if err != nil {
			return nil, err
		}
		meds := make([]models.Medication, 0, len(items))
		for _, it := range items {
			if it.ID == "" {
				continue
			}
			meds = append(meds, cleanMedication(it))
		}
		return meds, nil
	})
}

func (c *Client) Municipalities(ctx context.Context) ([]models.Municipality, error) {
	return cache.Load(ctx, c.cache, "municipalities", referenceTTL, func(ctx context.Context) ([]models.Municipality, error) {
		res, err := c.get(ctx, "municipalities", nil)
		if err != nil {
			return nil, err
		}
		items, err := decodeList[wireMunicipality](res.Body, "municipalities")
		if err != nil {
			return nil, err
		}
		munis := make([]models.Municipality, 0, len(items))
		for _, it := range items {
			if it.ID == "" {
				continue
			}
			munis = append(munis, cleanMunicipality(it))
		}
		return munis, nil
	})
}

// Predictions fetches and validates predictions. Malformed records are
// dropped and reported in the batch rather than failing the call.
func (c *Client) Predictions(ctx context.Context, q PredictionQuery) (*PredictionBatch, error) {
	res, err := c.get(ctx, "predictions", q.values())
	if err != nil {
		if res != nil {
			return &PredictionBatch{FetchResult: *res}, err
		}
		return nil, err
	}

	batch := &PredictionBatch{FetchResult: *res}
	items, err := decodeList[wirePrediction](res.Body, "predictions")
	if err != nil {
		return batch, err
	}
	batch.RecordCount = len(items)

	for _, it := range items {
		p, err := ValidatePrediction(it)
		if err != nil {
			var rej Rejection
			if errors.As(err, &rej) {
				batch.Rejected = append(batch.Rejected, rej)
				metrics.PredictionsRejected.WithLabelValues(rej.Reason).Inc()
			}
			continue
		}
		batch.Predictions = append(batch.Predictions, p)
	}
	if len(batch.Rejected) > 0 {
		c.log.Warn("dropped malformed predictions",
			zap.String("scope", q.Scope()),
			zap.Int("rejected", len(batch.Rejected)),
			zap.Int("total", len(items)))
	}
	return batch, nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values) (*FetchResult, error) {
	u := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	result := &FetchResult{}
	start := time.Now()
	defer func() {
		metrics.BackendLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.BackendCallsTotal.WithLabelValues(endpoint, "error").Inc()
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", endpoint, err))
		}
		defer resp.Body.Close()

		result.HTTPStatus = resp.StatusCode
		metrics.BackendCallsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
			c.log.Debug("backend rate limited", zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode))
			return fmt.Errorf("rate limited: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", endpoint, resp.StatusCode, string(b)))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		result.Body = body
		result.ResponseSize = len(body)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return result, err
	}
	return result, nil
}
