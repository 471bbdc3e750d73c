package saved

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds the construction parameters of an S3Store.
type S3Config struct {
	Bucket          string
	Prefix          string // key prefix, e.g. "tql/saved/"
	Region          string // default us-east-1
	Endpoint        string // optional; S3-compatible endpoint such as MinIO
	AccessKeyID     string // optional; falls back to the default credential chain
	SecretAccessKey string
	PathStyle       bool
}

// S3Store keeps one JSON document per saved query at <prefix><id>.json.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Store creates a store from cfg.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3StoreFromClient(client, cfg.Bucket, cfg.Prefix, nil), nil
}

// NewS3StoreFromClient wraps an existing client. A nil clock means
// time.Now.
func NewS3StoreFromClient(client *s3.Client, bucket, prefix string, now func() time.Time) *S3Store {
	if now == nil {
		now = time.Now
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix, now: now}
}

func (s *S3Store) key(id string) string {
	return s.prefix + id + ".json"
}

// Save implements Store.
func (s *S3Store) Save(ctx context.Context, q Query) (string, error) {
	var prev *Query
	if q.ID != "" {
		existing, err := s.Get(ctx, q.ID)
		switch {
		case err == nil:
			prev = &existing
		case !IsNotFound(err):
			return "", err
		}
	}
	q, err := Prepare(q, prev, s.now())
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("encode saved query: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(q.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put saved query %s: %w", q.ID, err)
	}
	return q.ID, nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, id string) (Query, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return Query{}, ErrNotFound
		}
		return Query{}, fmt.Errorf("get saved query %s: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return Query{}, fmt.Errorf("read saved query %s: %w", id, err)
	}
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return Query{}, fmt.Errorf("decode saved query %s: %w", id, err)
	}
	return q, nil
}

// List implements Store. It reads every document under the prefix.
func (s *S3Store) List(ctx context.Context) ([]Query, error) {
	out := []Query{}
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list saved queries: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			id := strings.TrimSuffix(path.Base(key), ".json")
			q, err := s.Get(ctx, id)
			if err != nil {
				if IsNotFound(err) {
					continue // deleted between list and get
				}
				return nil, err
			}
			out = append(out, q)
		}
	}
	Sort(out)
	return out, nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	key := aws.String(s.key(id))
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: key}); err != nil {
		if isS3NotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("head saved query %s: %w", id, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: key}); err != nil {
		return fmt.Errorf("delete saved query %s: %w", id, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
