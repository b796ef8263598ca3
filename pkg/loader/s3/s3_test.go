package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/netunion/pkg/loader"
)

type fakeLister struct {
	objects map[string]string
	gets    atomic.Int32
}

func (f *fakeLister) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	// one key per page to exercise pagination
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(start+1 < len(keys))}
	if start < len(keys) {
		out.Contents = []types.Object{{Key: aws.String(keys[start])}}
	}
	if start+1 < len(keys) {
		out.NextContinuationToken = aws.String(keys[start+1])
	}
	return out, nil
}

func (f *fakeLister) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets.Add(1)
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(data)))}, nil
}

func TestDiscover(t *testing.T) {
	fake := &fakeLister{objects: map[string]string{
		"runs/eqtl/size_3/result-0.network":  "three",
		"runs/eqtl/size_2/result-1.network":  "two-1",
		"runs/eqtl/size_2/result-0.network":  "two-0",
		"runs/eqtl/size_2/deep/x.network":    "nested, ignored",
		"runs/eqtl/size_2/result-0.txt":      "wrong extension",
		"runs/eqtl/logs/result-0.network":    "wrong directory",
		"runs/other/size_4/result-0.network": "other prefix",
	}}
	src := newS3NetworkSource("bucket", fake)

	files, err := src.Discover(context.Background(), loader.DiscoverParams{Root: "/runs/eqtl/"})
	require.NoError(t, err)

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	assert.Equal(t, []string{
		"runs/eqtl/size_2/result-0.network",
		"runs/eqtl/size_2/result-1.network",
		"runs/eqtl/size_3/result-0.network",
	}, paths)
	assert.Equal(t, 3, files[2].Size)

	records, err := loader.LoadRecords(context.Background(), files, 4)
	require.NoError(t, err)
	assert.Equal(t, "two-0", string(records[0].Text))
	assert.Equal(t, "three", string(records[2].Text))
}

func TestDiscoverBadSizeDir(t *testing.T) {
	fake := &fakeLister{objects: map[string]string{
		"root/size_x/result-0.network": "x",
	}}
	_, err := newS3NetworkSource("bucket", fake).Discover(context.Background(), loader.DiscoverParams{Root: "root"})
	assert.True(t, errors.Is(err, loader.ErrBadSizeDir))
}

func TestGetFileTextCaches(t *testing.T) {
	fake := &fakeLister{objects: map[string]string{"k/size_2/a.network": "data"}}
	src := newS3NetworkSource("bucket", fake)
	file := loader.NetworkFile{Size: 2, Path: "k/size_2/a.network", Source: src}

	for i := 0; i < 3; i++ {
		text, err := file.GetText(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "data", string(text))
	}
	assert.Equal(t, int32(1), fake.gets.Load())
}
