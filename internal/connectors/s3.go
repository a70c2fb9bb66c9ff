package connectors

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/Dcup-dev/dcup-ingest/internal/models"
)

const s3PageSize = 100

// S3 streams objects from a bucket prefix. The connection's identifier is
// the bucket name; the folder filter is the key prefix. Stored credentials
// carry the access key id and secret.
type S3 struct {
	conn    *models.Connection
	payload models.JobPayload

	// newClient is swappable for tests.
	newClient func(ctx context.Context) (s3API, error)
}

// s3API is the subset of the S3 client the connector uses.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var _ Connector = (*S3)(nil)

func newS3(conn *models.Connection, payload models.JobPayload) *S3 {
	c := &S3{conn: conn, payload: payload}
	c.newClient = func(ctx context.Context) (s3API, error) {
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(conn.AccessToken, conn.RefreshToken, ""),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return s3.NewFromConfig(cfg), nil
	}
	return c
}

// Documents lists objects under the prefix page by page and fetches each
// object lazily. A per-object fetch failure is yielded as a failure marker.
func (c *S3) Documents(ctx context.Context, fn func(Document) error) error {
	client, err := c.newClient(ctx)
	if err != nil {
		return err
	}

	pageLimit := limitOrDefault(c.payload.PageLimit, c.conn.PageLimit)
	fileLimit := limitOrDefault(c.payload.FileLimit, c.conn.FileLimit)

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.conn.Identifier),
		MaxKeys: aws.Int32(s3PageSize),
	}
	if c.conn.FolderName != "" {
		input.Prefix = aws.String(c.conn.FolderName)
	}

	var (
		pages   int
		yielded int
	)

	for {
		if pageLimit > 0 && pages >= pageLimit {
			return nil
		}

		page, err := client.ListObjectsV2(ctx, input)
		if err != nil {
			return classifyS3Error(err)
		}
		pages++

		for _, obj := range page.Contents {
			if fileLimit > 0 && yielded >= fileLimit {
				return nil
			}
			key := aws.ToString(obj.Key)
			doc := c.fetchObject(ctx, client, key)
			yielded++
			if err := fn(doc); err != nil {
				if err == ErrStopIteration {
					return nil
				}
				return err
			}
		}

		if page.NextContinuationToken == nil {
			return nil
		}
		input.ContinuationToken = page.NextContinuationToken
	}
}

func (c *S3) fetchObject(ctx context.Context, client s3API, key string) Document {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.conn.Identifier),
		Key:    aws.String(key),
	})
	if err != nil {
		return fetchFailure(key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, 64<<20))
	if err != nil {
		return fetchFailure(key, err)
	}

	return Document{
		Name:        key,
		ContentType: aws.ToString(out.ContentType),
		Data:        data,
		Metadata:    c.conn.Metadata,
	}
}

// classifyS3Error maps S3 failures onto the job error taxonomy.
func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return &models.AuthError{Err: err}
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return &models.TransientError{Err: err}
		}
		return err
	}
	return &models.TransientError{Err: err}
}
