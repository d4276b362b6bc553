//go:build integration

package s3_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittovault/pkg/store/block"
	s3store "github.com/marmos91/dittovault/pkg/store/block/s3"
	blocktesting "github.com/marmos91/dittovault/pkg/store/block/testing"
	"github.com/stretchr/testify/require"
)

// setupTestS3 connects to Localstack and creates a bucket that is emptied
// and removed when the test ends.
//
// Run with:
//
//	docker run --rm -p 4566:4566 localstack/localstack
//	go test -tags=integration ./pkg/store/block/s3/...
func setupTestS3(t *testing.T, bucketName string) *s3.Client {
	t.Helper()
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)})
	require.NoError(t, err)

	t.Cleanup(func() {
		paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{Bucket: aws.String(bucketName)})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucketName), Key: obj.Key})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucketName)})
	})

	return client
}

func TestS3BlockStore_Integration(t *testing.T) {
	bucket := fmt.Sprintf("dittovault-test-%d", time.Now().UnixNano())
	client := setupTestS3(t, bucket)

	n := 0
	suite := &blocktesting.StoreTestSuite{
		NewStore: func(t *testing.T) block.Store {
			n++
			store, err := s3store.NewS3BlockStore(context.Background(), s3store.S3BlockStoreConfig{
				Client:    client,
				Bucket:    bucket,
				KeyPrefix: fmt.Sprintf("run-%d/", n),
				Integrity: true,
			})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}
