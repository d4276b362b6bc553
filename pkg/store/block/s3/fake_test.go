package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory ObjectAPI for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte

	// failPut makes PutObject fail for matching keys.
	failPut func(key string) bool

	// putDelay slows PutObject down so concurrency can be observed.
	putDelay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	puts        atomic.Int32
	lastPut     []*s3.PutObjectInput
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: make(map[string][]byte)}
}

var errTransport = errors.New("connection reset by peer")

func (f *fakeS3) checkBucket(b *string) error {
	if aws.ToString(b) != f.bucket {
		return &types.NoSuchBucket{Message: aws.String("no such bucket")}
	}
	return nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	f.puts.Add(1)

	if f.putDelay > 0 {
		select {
		case <-time.After(f.putDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	if f.failPut != nil && f.failPut(key) {
		return nil, fmt.Errorf("put %s: %w", key, errTransport)
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(data)
	if in.ContentMD5 != nil && *in.ContentMD5 != base64.StdEncoding.EncodeToString(sum[:]) {
		return nil, errors.New("BadDigest")
	}
	if in.ContentLength != nil && *in.ContentLength != int64(len(data)) {
		return nil, errors.New("IncompleteBody")
	}

	f.mu.Lock()
	f.objects[key] = data
	f.lastPut = append(f.lastPut, in)
	f.mu.Unlock()

	return &s3.PutObjectOutput{ETag: aws.String(`"` + hex.EncodeToString(sum[:]) + `"`)}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	data, ok := f.objects[aws.ToString(in.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	sum := md5.Sum(data)
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          aws.String(`"` + hex.EncodeToString(sum[:]) + `"`),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	data, ok := f.objects[aws.ToString(in.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NotFound{Message: aws.String("not found")}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.ToString(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	after := aws.ToString(in.StartAfter)
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		after = tok
	}
	maxKeys := int(aws.ToInt32(in.MaxKeys))
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > maxKeys {
		keys = keys[:maxKeys]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(k),
			Size: aws.Int64(int64(len(f.objects[k]))),
		})
	}
	out.KeyCount = aws.Int32(int32(len(keys)))
	return out, nil
}
