package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/sourcegraph/conc/pool"
)

// Coordinator runs independent object transfers concurrently and presents
// them as one batch.
//
// Every request gets its own input struct; nothing is shared or mutated
// across concurrent requests. Results are written into a slice indexed by
// request position, so callers see them in request order regardless of
// completion order. The coordinator never retries: a failed request stays
// failed and fails its batch.
type Coordinator struct {
	client  ObjectAPI
	bucket  string
	metrics S3Metrics

	// maxConcurrency bounds in-flight requests; 0 leaves the bound to the
	// HTTP transport.
	maxConcurrency int

	// integrity adds Content-MD5 and Content-Length to every PUT and checks
	// the returned ETag.
	integrity bool

	// requestTimeout bounds each sub-request; 0 disables it.
	requestTimeout time.Duration
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Client         ObjectAPI
	Bucket         string
	Metrics        S3Metrics
	MaxConcurrency int
	Integrity      bool
	RequestTimeout time.Duration
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Coordinator{
		client:         cfg.Client,
		bucket:         cfg.Bucket,
		metrics:        metrics,
		maxConcurrency: cfg.MaxConcurrency,
		integrity:      cfg.Integrity,
		requestTimeout: cfg.RequestTimeout,
	}
}

// PutRequest is one object upload.
type PutRequest struct {
	Key  string
	Data []byte
}

// PutResult is the outcome of one upload.
type PutResult struct {
	Key  string
	ETag string
	Err  error
}

// PutOutcome aggregates a batch of uploads.
type PutOutcome struct {
	// Status is StatusCreated only when every request succeeded.
	Status  block.Status
	Results []PutResult
}

// Failed returns the number of failed uploads.
func (o *PutOutcome) Failed() int {
	n := 0
	for _, r := range o.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// FetchResult pairs a downloaded body with its response metadata.
type FetchResult struct {
	Key           string
	Body          io.ReadCloser
	ETag          string
	ContentLength int64
	Err           error
}

// HeadResult is the outcome of one existence check.
type HeadResult struct {
	Key           string
	Exists        bool
	ContentLength int64
	ETag          string
	Err           error
}

// fanOut runs fn for 0..n-1 concurrently and waits for all of them.
func fanOut[T any](c *Coordinator, n int, fn func(i int) T) []T {
	results := make([]T, n)

	p := pool.New()
	if c.maxConcurrency > 0 {
		p = p.WithMaxGoroutines(c.maxConcurrency)
	}
	for i := 0; i < n; i++ {
		p.Go(func() {
			results[i] = fn(i)
		})
	}
	p.Wait()

	return results
}

func (c *Coordinator) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout > 0 {
		return context.WithTimeout(ctx, c.requestTimeout)
	}
	return context.WithCancel(ctx)
}

// communicationError wraps a transport failure in ErrBackendCommunication.
func communicationError(op, key string, err error) error {
	return fmt.Errorf("%s %s: %w: %w", op, key, block.ErrBackendCommunication, err)
}

// PutAll uploads every request concurrently.
func (c *Coordinator) PutAll(ctx context.Context, reqs []PutRequest) *PutOutcome {
	start := time.Now()

	results := fanOut(c, len(reqs), func(i int) PutResult {
		return c.put(ctx, reqs[i])
	})

	outcome := &PutOutcome{Status: block.StatusCreated, Results: results}
	failed := outcome.Failed()
	if failed > 0 {
		outcome.Status = block.StatusServerError
		logger.Warn("s3 batch put: %d of %d requests failed", failed, len(reqs))
	}

	c.metrics.ObserveBatch("PutObject", len(reqs), failed, time.Since(start))
	return outcome
}

func (c *Coordinator) put(ctx context.Context, req PutRequest) PutResult {
	if err := ctx.Err(); err != nil {
		return PutResult{Key: req.Key, Err: err}
	}

	rctx, cancel := c.requestContext(ctx)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(req.Key),
		Body:   bytes.NewReader(req.Data),
	}

	var digest [md5.Size]byte
	if c.integrity {
		digest = md5.Sum(req.Data)
		input.ContentMD5 = aws.String(base64.StdEncoding.EncodeToString(digest[:]))
		input.ContentLength = aws.Int64(int64(len(req.Data)))
	}

	start := time.Now()
	out, err := c.client.PutObject(rctx, input)
	c.metrics.ObserveOperation("PutObject", time.Since(start), err)
	if err != nil {
		return PutResult{Key: req.Key, Err: communicationError("put", req.Key, err)}
	}
	c.metrics.RecordBytes("PutObject", int64(len(req.Data)))

	etag := strings.Trim(aws.ToString(out.ETag), `"`)
	if c.integrity && etag != "" && etag != hex.EncodeToString(digest[:]) {
		return PutResult{
			Key:  req.Key,
			ETag: etag,
			Err:  communicationError("put", req.Key, fmt.Errorf("etag %s does not match content md5", etag)),
		}
	}

	return PutResult{Key: req.Key, ETag: etag}
}

// GetAll downloads every key concurrently. Bodies of successful results
// belong to the caller.
func (c *Coordinator) GetAll(ctx context.Context, keys []string) []FetchResult {
	start := time.Now()

	results := fanOut(c, len(keys), func(i int) FetchResult {
		return c.get(ctx, keys[i])
	})

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	c.metrics.ObserveBatch("GetObject", len(keys), failed, time.Since(start))
	return results
}

func (c *Coordinator) get(ctx context.Context, key string) FetchResult {
	if err := ctx.Err(); err != nil {
		return FetchResult{Key: key, Err: err}
	}

	// The timeout context must outlive this call: it is released when the
	// caller closes the body.
	rctx, cancel := c.requestContext(ctx)

	start := time.Now()
	out, err := c.client.GetObject(rctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	c.metrics.ObserveOperation("GetObject", time.Since(start), err)
	if err != nil {
		cancel()
		if isNotFound(err) {
			return FetchResult{Key: key, Err: fmt.Errorf("object %s: %w", key, block.ErrBlockNotFound)}
		}
		return FetchResult{Key: key, Err: communicationError("get", key, err)}
	}

	return FetchResult{
		Key: key,
		Body: &metricsReadCloser{
			ReadCloser: out.Body,
			metrics:    c.metrics,
			operation:  "GetObject",
			onClose:    cancel,
		},
		ETag:          strings.Trim(aws.ToString(out.ETag), `"`),
		ContentLength: aws.ToInt64(out.ContentLength),
	}
}

// HeadAll checks existence of every key concurrently.
func (c *Coordinator) HeadAll(ctx context.Context, keys []string) []HeadResult {
	return fanOut(c, len(keys), func(i int) HeadResult {
		return c.head(ctx, keys[i])
	})
}

func (c *Coordinator) head(ctx context.Context, key string) HeadResult {
	if err := ctx.Err(); err != nil {
		return HeadResult{Key: key, Err: err}
	}

	rctx, cancel := c.requestContext(ctx)
	defer cancel()

	start := time.Now()
	out, err := c.client.HeadObject(rctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			c.metrics.ObserveOperation("HeadObject", time.Since(start), nil)
			return HeadResult{Key: key}
		}
		c.metrics.ObserveOperation("HeadObject", time.Since(start), err)
		return HeadResult{Key: key, Err: communicationError("head", key, err)}
	}
	c.metrics.ObserveOperation("HeadObject", time.Since(start), nil)

	return HeadResult{
		Key:           key,
		Exists:        true,
		ContentLength: aws.ToInt64(out.ContentLength),
		ETag:          strings.Trim(aws.ToString(out.ETag), `"`),
	}
}

// DeleteAll deletes every key concurrently. Missing keys are not errors.
func (c *Coordinator) DeleteAll(ctx context.Context, keys []string) []error {
	return fanOut(c, len(keys), func(i int) error {
		return c.delete(ctx, keys[i])
	})
}

func (c *Coordinator) delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rctx, cancel := c.requestContext(ctx)
	defer cancel()

	start := time.Now()
	_, err := c.client.DeleteObject(rctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	c.metrics.ObserveOperation("DeleteObject", time.Since(start), err)
	if err != nil && !isNotFound(err) {
		return communicationError("delete", key, err)
	}
	return nil
}
