package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/OFFIS-RIT/netunion/internal/util"
	"github.com/OFFIS-RIT/netunion/pkg/export"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
)

const (
	putTries = 3
	putDelay = 200 * time.Millisecond
)

// objectAPI is the part of the S3 API the artifact store needs.
type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// NewS3Client builds an S3 client from the AWS_REGION, AWS_ENDPOINT,
// AWS_ACCESS_KEY and AWS_SECRET_KEY environment variables.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(region),
		config.WithBaseEndpoint(endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			secretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// ArtifactStore keeps run artifacts in one bucket.
type ArtifactStore struct {
	bucket string
	client objectAPI
	raw    *s3.Client
}

// NewArtifactStore wraps client for the given bucket.
func NewArtifactStore(client *s3.Client, bucket string) *ArtifactStore {
	return &ArtifactStore{bucket: bucket, client: client, raw: client}
}

func newArtifactStore(client objectAPI, bucket string) *ArtifactStore {
	return &ArtifactStore{bucket: bucket, client: client}
}

// Bucket returns the bucket name.
func (a *ArtifactStore) Bucket() string {
	return a.bucket
}

func (a *ArtifactStore) GetFile(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s from S3: %w", key, err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}

	return buf.Bytes(), nil
}

// PutFile uploads data to key. The content type is derived from the key's
// extension. Failed uploads are retried a few times.
func (a *ArtifactStore) PutFile(ctx context.Context, key string, data []byte) error {
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	err := util.RetryErrWithContext(ctx, putTries, putDelay, func(ctx context.Context) error {
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			logger.Warn("[Storage] Upload failed", "key", key, "err", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload file %s to S3: %w", key, err)
	}
	return nil
}

// GenerateDownloadLink presigns a GET for key against AWS_PUBLIC_ENDPOINT.
func (a *ArtifactStore) GenerateDownloadLink(ctx context.Context, key string) (string, error) {
	if a.raw == nil {
		return "", errors.New("download links need a real S3 client")
	}
	publicEndpoint := util.GetEnv("AWS_PUBLIC_ENDPOINT")

	publicURL, err := url.Parse(publicEndpoint)
	if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
		return "", fmt.Errorf("invalid AWS_PUBLIC_ENDPOINT: %s", publicEndpoint)
	}
	prefix := strings.TrimSuffix(publicURL.Path, "/")

	publicBaseEndpoint := fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host)

	// Presign against the public host so the signature matches the Host
	// header the client will send.
	presignClientS3 := s3.NewFromConfig(
		aws.Config{
			Region:      a.raw.Options().Region,
			Credentials: a.raw.Options().Credentials,
			HTTPClient:  a.raw.Options().HTTPClient,
		},
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(publicBaseEndpoint)
			o.UsePathStyle = true
		},
	)

	out, err := s3.NewPresignClient(presignClientS3).PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(linkExpiry()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	if prefix != "" {
		signedURL, parseErr := url.Parse(out.URL)
		if parseErr != nil {
			return "", fmt.Errorf("failed to parse presigned url: %w", parseErr)
		}
		signedURL.Path = prefix + signedURL.Path
		return signedURL.String(), nil
	}

	return out.URL, nil
}

// linkExpiry reads AWS_LINK_EXPIRY_MINUTES, which may be fractional.
func linkExpiry() time.Duration {
	minutes := util.GetEnvNumeric("AWS_LINK_EXPIRY_MINUTES", 15)
	if minutes <= 0 {
		minutes = 15
	}
	return time.Duration(minutes * float64(time.Minute))
}

// DeleteFolder removes every object below prefix.
func (a *ArtifactStore) DeleteFolder(ctx context.Context, prefix string) error {
	keys, err := a.ListFilesWithPrefix(ctx, prefix)
	if err != nil {
		return err
	}

	// DeleteObjects takes at most 1000 keys per call.
	for start := 0; start < len(keys); start += 1000 {
		end := min(start+1000, len(keys))
		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		_, err = a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects in folder %s: %w", prefix, err)
		}
	}

	return nil
}

func (a *ArtifactStore) ListFilesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := a.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}

		if listOutput.IsTruncated != nil && *listOutput.IsTruncated {
			listInput.ContinuationToken = listOutput.NextContinuationToken
		} else {
			break
		}
	}

	return keys, nil
}

// S3Sink is an export.Sink writing below a key prefix of an ArtifactStore.
type S3Sink struct {
	Store  *ArtifactStore
	Prefix string
}

var _ export.Sink = S3Sink{}

// Put uploads data to <Prefix>/<name>.
func (s S3Sink) Put(ctx context.Context, name string, data []byte) error {
	return s.Store.PutFile(ctx, ArtifactKey(s.Prefix, name), data)
}

// ArtifactKey joins a run prefix and an artifact name into an object key.
func ArtifactKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
