package document

import (
	"context"
	"errors"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ai4data/dazense/internal/errs"
	"github.com/ai4data/dazense/internal/semantic"
)

// ObjectStoreConfig locates a model document in an S3-compatible
// object store.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint" koanf:"endpoint"`
	AccessKey string `yaml:"access_key" koanf:"access_key"`
	SecretKey string `yaml:"secret_key" koanf:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" koanf:"use_ssl"`
	Region    string `yaml:"region,omitempty" koanf:"region"`
	Bucket    string `yaml:"bucket" koanf:"bucket"`
	// Key defaults to semantic.DocumentPath when empty.
	Key string `yaml:"key,omitempty" koanf:"key"`
}

// ObjectSource reads the document from a MinIO / S3 bucket.
type ObjectSource struct {
	client *miniogo.Client
	bucket string
	key    string
}

// NewObjectSource builds a client for cfg. No network call is made
// until Fetch.
func NewObjectSource(cfg ObjectStoreConfig) (*ObjectSource, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionFailed, "failed to create object store client", err)
	}
	key := cfg.Key
	if key == "" {
		key = semantic.DocumentPath
	}
	return &ObjectSource{client: client, bucket: cfg.Bucket, key: key}, nil
}

func (s *ObjectSource) Fetch(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err)
	}
	data, err := readAll(obj)
	if err != nil {
		return nil, mapError(err)
	}
	return data, nil
}

func (s *ObjectSource) Location() string {
	return "s3://" + s.bucket + "/" + s.key
}

// mapError translates MinIO SDK errors. Missing buckets or keys mean
// the project simply has no model document.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.KindTimeout, "fetching semantic model document", err)
	}

	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		if resp.StatusCode == http.StatusNotFound {
			return semantic.ErrNotConfigured
		}
		switch resp.Code {
		case "NoSuchBucket", "NoSuchKey":
			return semantic.ErrNotConfigured
		case "RequestTimeout", "SlowDown":
			return errs.Wrap(errs.KindTimeout, "fetching semantic model document", err)
		}
	}

	return errs.Wrap(errs.KindConnectionFailed, "fetching semantic model document", err)
}
