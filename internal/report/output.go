package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/autofix/pkg/shared/files"
)

const s3Scheme = "s3://"

// Output writes command results to stdout, local files, or S3 objects.
type Output struct {
	logger hclog.Logger

	once        sync.Once
	uploader    s3manageriface.UploaderAPI
	uploaderErr error
	newUploader func() (s3manageriface.UploaderAPI, error)
}

// NewOutput creates an Output. The S3 session is created on first upload
// from the usual AWS environment and shared config.
func NewOutput(logger hclog.Logger) *Output {
	return &Output{logger: logger, newUploader: newS3Uploader}
}

// NewOutputWithUploader creates an Output uploading through u.
func NewOutputWithUploader(logger hclog.Logger, u s3manageriface.UploaderAPI) *Output {
	return &Output{logger: logger, newUploader: func() (s3manageriface.UploaderAPI, error) { return u, nil }}
}

func newS3Uploader() (s3manageriface.UploaderAPI, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create s3 session: %w", err)
	}
	return s3manager.NewUploader(sess), nil
}

// IsS3 reports whether dest names an S3 object or prefix.
func IsS3(dest string) bool {
	return strings.HasPrefix(dest, s3Scheme)
}

// ParseS3 splits s3://bucket/key into bucket and key.
func ParseS3(dest string) (string, string, error) {
	rest := strings.TrimPrefix(dest, s3Scheme)
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid s3 destination %q: bucket is required", dest)
	}
	return bucket, key, nil
}

// Resolve turns dest into the final location of a file called name. Empty
// dest means stdout. Directories, paths without an extension and S3 prefixes
// ending in "/" get name appended.
func Resolve(dest, name string) (string, error) {
	switch {
	case dest == "" || dest == "-":
		return "", nil
	case IsS3(dest):
		if strings.HasSuffix(dest, "/") || path.Ext(dest) == "" {
			return strings.TrimSuffix(dest, "/") + "/" + name, nil
		}
		return dest, nil
	default:
		full, _, err := files.DetermineFileFullPath(dest, name)
		return full, err
	}
}

// Write stores data at dest and returns where it went.
func (o *Output) Write(ctx context.Context, dest string, data []byte) (string, error) {
	switch {
	case dest == "" || dest == "-":
		if _, err := os.Stdout.Write(data); err != nil {
			return "", fmt.Errorf("failed to write result: %w", err)
		}
		return "stdout", nil
	case IsS3(dest):
		return dest, o.upload(ctx, dest, data)
	default:
		if err := files.WriteFile(dest, data); err != nil {
			return "", err
		}
		o.logger.Debug("result written", "path", dest)
		return dest, nil
	}
}

func (o *Output) upload(ctx context.Context, dest string, data []byte) error {
	bucket, key, err := ParseS3(dest)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("invalid s3 destination %q: key is required", dest)
	}

	o.once.Do(func() { o.uploader, o.uploaderErr = o.newUploader() })
	if o.uploaderErr != nil {
		return o.uploaderErr
	}

	res, err := o.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		o.logger.Error("failed to upload result", "bucket", bucket, "key", key, "error", err)
		return fmt.Errorf("failed to upload %q: %w", dest, err)
	}
	o.logger.Info("result uploaded", "location", res.Location)
	return nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json", ".sarif":
		return "application/json"
	case ".md":
		return "text/markdown; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
