package artifacts

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// S3Options configures the S3 artifact backend.
type S3Options struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible stores.
	Endpoint string
	// PublicBaseURL, when set, is used instead of the upload location.
	PublicBaseURL string
	Logger        *slog.Logger
}

// S3Store uploads artifacts to a bucket.
type S3Store struct {
	uploader *s3manager.Uploader
	bucket   string
	baseURL  string
	logger   *slog.Logger
}

// NewS3Store builds a store using the default AWS credential chain.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	cfg := aws.NewConfig()
	if opts.Region != "" {
		cfg = cfg.WithRegion(opts.Region)
	}
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create aws session")
	}
	return NewS3StoreWithSession(sess, opts), nil
}

// NewS3StoreWithSession builds a store over an existing session.
func NewS3StoreWithSession(sess *session.Session, opts S3Options) *S3Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{
		uploader: s3manager.NewUploader(sess),
		bucket:   opts.Bucket,
		baseURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
		logger:   logger,
	}
}

// Save uploads localPath under {uuid}/{name}.
func (s *S3Store) Save(ctx context.Context, localPath, name string) (string, string, error) {
	if name == "" {
		name = filepath.Base(localPath)
	}
	key := path.Join(uuid.NewString(), filepath.Base(name))

	f, err := os.Open(localPath)
	if err != nil {
		return "", "", errors.Wrap(err, "open artifact source")
	}
	defer f.Close()

	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}

	out, err := s.uploader.UploadWithContext(ctx, input)
	if err != nil {
		return "", "", errors.Wrapf(err, "upload artifact %s", key)
	}

	size := int64(0)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	s.logger.Info("artifact uploaded", "bucket", s.bucket, "key", key, "size", humanize.IBytes(uint64(size)))

	if s.baseURL != "" {
		return key, s.baseURL + "/" + key, nil
	}
	return key, out.Location, nil
}
