// Package publish uploads the rendered site to S3.
package publish

import (
	"bytes"
	"context"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const uploadWorkers = 4

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from the default AWS credential chain.
// An empty region leaves the chain's region in place.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "publish: load aws config")
	}
	return s3.NewFromConfig(cfg), nil
}

// Publisher mirrors a directory into a bucket under a key prefix.
type Publisher struct {
	client ObjectPutter
	bucket string
	prefix string
}

// New creates a Publisher.
func New(client ObjectPutter, bucket, prefix string) *Publisher {
	return &Publisher{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Result counts what Publish uploaded.
type Result struct {
	Objects int   `json:"objects"`
	Bytes   int64 `json:"bytes"`
}

// Publish uploads every regular file under dir. Dot files (locks, temp
// files) are skipped. HTML is sent with no-cache so new dates show up.
func (p *Publisher) Publish(ctx context.Context, dir string) (Result, error) {
	var files []string
	err := filepath.WalkDir(dir, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && fp != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, fp)
		}
		return nil
	})
	if err != nil {
		return Result{}, eris.Wrapf(err, "publish: walk %s", dir)
	}

	var (
		objects int64
		size    int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadWorkers)
	for _, fp := range files {
		g.Go(func() error {
			n, err := p.upload(gctx, dir, fp)
			if err != nil {
				return err
			}
			atomic.AddInt64(&objects, 1)
			atomic.AddInt64(&size, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Objects: int(objects), Bytes: size}
	zap.L().Info("publish: upload complete",
		zap.String("bucket", p.bucket),
		zap.String("prefix", p.prefix),
		zap.Int("objects", res.Objects),
		zap.Int64("bytes", res.Bytes),
	)
	return res, nil
}

func (p *Publisher) upload(ctx context.Context, root, fp string) (int64, error) {
	rel, err := filepath.Rel(root, fp)
	if err != nil {
		return 0, eris.Wrap(err, "publish: relative path")
	}
	key := Key(p.prefix, rel)

	data, err := os.ReadFile(fp)
	if err != nil {
		return 0, eris.Wrapf(err, "publish: read %s", rel)
	}

	ct := ContentType(fp)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ct),
	}
	if strings.HasPrefix(ct, "text/html") {
		in.CacheControl = aws.String("no-cache")
	}
	if _, err := p.client.PutObject(ctx, in); err != nil {
		return 0, eris.Wrapf(err, "publish: put %s", key)
	}
	zap.L().Debug("publish: uploaded", zap.String("key", key), zap.Int("bytes", len(data)))
	return int64(len(data)), nil
}

// Key joins prefix and a relative file path into an object key.
func Key(prefix, rel string) string {
	rel = filepath.ToSlash(rel)
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

// ContentType guesses a MIME type from the file extension.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
