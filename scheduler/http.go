package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/dataloader/bundle"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/internal/httpclient"
	"github.com/teranos/dataloader/logger"
)

// maxErrorBody bounds how much of a rejection body ends up in the error
const maxErrorBody = 512

// HTTPOptions tune the remote gateway
type HTTPOptions struct {
	Timeout           time.Duration
	RequestsPerMinute int // 0 = unthrottled
	AllowPrivateHosts bool
}

// HTTPGateway POSTs bundles to a remote scheduler
type HTTPGateway struct {
	url     string
	client  *httpclient.SaferClient
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

type submitRequest struct {
	RecordID string         `json:"recordId"`
	Bundle   *bundle.Bundle `json:"bundle"`
	Digest   string         `json:"digest"`
	Schedule string         `json:"schedule,omitempty"`
}

// NewHTTPGateway validates url against the SSRF policy and builds the gateway
func NewHTTPGateway(url string, opts HTTPOptions, log *zap.SugaredLogger) (*HTTPGateway, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := httpclient.New(opts.Timeout, httpclient.Options{AllowPrivateHosts: opts.AllowPrivateHosts})
	if _, err := client.ValidateURL(url); err != nil {
		return nil, errors.Wrapf(err, "scheduler url %q rejected", url)
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(opts.RequestsPerMinute) / 60)
	}

	return &HTTPGateway{
		url:     url,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  log,
	}, nil
}

// Submit sends sub and decodes the scheduler's handle
func (g *HTTPGateway) Submit(ctx context.Context, sub Submission) (Handle, error) {
	if sub.Bundle == nil {
		return Handle{}, errors.New("no bundle to submit")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return Handle{}, errors.Wrap(err, "submission throttled")
	}

	digest, err := sub.Bundle.Digest()
	if err != nil {
		return Handle{}, errors.Wrap(err, "digest bundle")
	}
	body, err := json.Marshal(submitRequest{
		RecordID: sub.RecordID,
		Bundle:   sub.Bundle,
		Digest:   digest,
		Schedule: sub.ScheduleExpression,
	})
	if err != nil {
		return Handle{}, errors.Wrap(err, "encode submission")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return Handle{}, errors.Wrap(err, "build submission request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return Handle{}, errors.Wrap(err, "post bundle")
	}
	defer resp.Body.Close()

	g.logger.Debugw("Scheduler responded",
		logger.FieldRecordID, sub.RecordID,
		logger.FieldStatus, resp.StatusCode,
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Handle{}, errors.WithDetail(
			errors.Newf("scheduler rejected bundle with status %d", resp.StatusCode),
			string(snippet))
	}

	var h Handle
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Handle{}, errors.Wrap(err, "decode scheduler response")
	}
	if h.RemoteJobID == "" {
		return Handle{}, errors.New("scheduler response carries no jobId")
	}
	return h, nil
}
