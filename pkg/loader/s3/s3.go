package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/OFFIS-RIT/netunion/pkg/loader"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
)

// objectLister is the part of the S3 API used for discovery and reads.
type objectLister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3NetworkSource is a NetworkSource implementation that loads network
// files from an Amazon S3 (or S3-compatible) bucket. Size directories are
// the key segments directly below the root prefix.
type S3NetworkSource struct {
	bucket string
	client objectLister

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewS3NetworkSourceWithClient creates a new S3NetworkSource using an
// existing s3.Client.
func NewS3NetworkSourceWithClient(bucket string, client *s3.Client) *S3NetworkSource {
	return newS3NetworkSource(bucket, client)
}

func newS3NetworkSource(bucket string, client objectLister) *S3NetworkSource {
	return &S3NetworkSource{
		bucket: bucket,
		client: client,
		cache:  make(map[string][]byte),
	}
}

// NewS3NetworkSourceParams defines the configuration parameters for
// creating a new S3NetworkSource.
//
// Endpoint allows overriding the S3 endpoint (useful for MinIO).
// AccessKey and SecretKey provide static credentials.
type NewS3NetworkSourceParams struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3NetworkSource creates a new S3NetworkSource with static credentials
// and the given endpoint/region.
//
// Example:
//
//	src, err := s3.NewS3NetworkSource(ctx, s3.NewS3NetworkSourceParams{
//		Bucket:    "networks",
//		Endpoint:  "http://localhost:9000",
//		Region:    "us-east-1",
//		AccessKey: os.Getenv("AWS_ACCESS_KEY"),
//		SecretKey: os.Getenv("AWS_SECRET_KEY"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	files, err := src.Discover(ctx, loader.DiscoverParams{Root: "runs/eqtl"})
func NewS3NetworkSource(ctx context.Context, params NewS3NetworkSourceParams) (*S3NetworkSource, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return newS3NetworkSource(params.Bucket, client), nil
}

// Discover lists every key below params.Root and keeps the ones shaped
// <root>/<size dir>/<file> where both segments match their patterns.
func (l *S3NetworkSource) Discover(ctx context.Context, params loader.DiscoverParams) ([]loader.NetworkFile, error) {
	params = params.WithDefaults()

	prefix := strings.Trim(params.Root, "/")
	if prefix != "" {
		prefix += "/"
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(prefix),
	}

	files := make([]loader.NetworkFile, 0)
	for {
		out, err := l.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			key := *obj.Key
			rel := strings.TrimPrefix(key, prefix)
			dir, name, ok := strings.Cut(rel, "/")
			if !ok || strings.Contains(name, "/") {
				continue
			}

			dirOK, err := path.Match(params.DirPattern, dir)
			if err != nil {
				return nil, fmt.Errorf("invalid directory pattern %q: %w", params.DirPattern, err)
			}
			fileOK, err := path.Match(params.FilePattern, name)
			if err != nil {
				return nil, fmt.Errorf("invalid file pattern %q: %w", params.FilePattern, err)
			}
			if !dirOK || !fileOK {
				continue
			}

			size, err := loader.SizeFromDir(dir)
			if err != nil {
				return nil, err
			}
			files = append(files, loader.NetworkFile{
				Size:   size,
				Path:   key,
				Source: l,
			})
		}

		if out.IsTruncated != nil && *out.IsTruncated {
			input.ContinuationToken = out.NextContinuationToken
		} else {
			break
		}
	}

	logger.Debug("[Loader] Discovered S3 network files", "bucket", l.bucket, "prefix", prefix, "files", len(files))

	loader.SortFiles(files)
	return files, nil
}

// GetFileText retrieves the contents of the given NetworkFile from the
// configured bucket. Results are cached.
func (l *S3NetworkSource) GetFileText(ctx context.Context, file loader.NetworkFile) ([]byte, error) {
	cacheKey := loader.CacheKey(file)

	l.cacheMu.RLock()
	if cached, ok := l.cache[cacheKey]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(cacheKey, func() (any, error) {
		l.cacheMu.RLock()
		if cached, ok := l.cache[cacheKey]; ok {
			l.cacheMu.RUnlock()
			return cached, nil
		}
		l.cacheMu.RUnlock()

		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(file.Path),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, err
		}

		byts := buf.Bytes()

		l.cacheMu.Lock()
		l.cache[cacheKey] = byts
		l.cacheMu.Unlock()

		return byts, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
