package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"

	"github.com/angelmondragon/symmetri/pkg/config"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

const (
	pingTimeout        = 5 * time.Second
	defaultContentType = "application/octet-stream"
)

var errNotInitialized = pkgerrors.New(pkgerrors.CodeDependency, "gcs client not initialized")

// Client talks to the Cloud Storage JSON API for dataset exports.
type Client struct {
	svc           *storagev1.Service
	defaultBucket string
	prefix        string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient builds a client for cfg.BucketName using the same credential
// resolution as the other GCP clients and checks the bucket is reachable.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	opts := []option.ClientOption{option.WithScopes(storagev1.DevstorageReadWriteScope)}
	switch {
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case gcp.ApplicationCredentials != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}

	client, err := newClient(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", client.defaultBucket), "gcs.connected")
	}
	return client, nil
}

func newClient(ctx context.Context, cfg config.GCSConfig, opts ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.BucketName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "gcs bucket name is required")
	}
	svc, err := storagev1.NewService(ctx, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create storage service")
	}
	return &Client{
		svc:           svc,
		defaultBucket: cfg.BucketName,
		prefix:        strings.Trim(cfg.ExportPrefix, "/"),
	}, nil
}

// BucketHandle returns a handle on name, or on the default bucket when name
// is empty.
func (c *Client) BucketHandle(name string) *Bucket {
	if c == nil {
		return nil
	}
	if name == "" {
		name = c.defaultBucket
	}
	return &Bucket{name: name, client: c}
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

func (c *Client) Close() error {
	return nil
}

// Ping lists at most one object, which needs the same role as uploads.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.svc == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	_, err := c.svc.Objects.List(c.defaultBucket).MaxResults(1).Fields("items(name)").Context(ctx).Do()
	if err != nil {
		return classify(err, "gcs health check on "+c.defaultBucket)
	}
	return nil
}

// ObjectName joins the configured export prefix and name.
func (c *Client) ObjectName(name string) string {
	name = strings.TrimLeft(name, "/")
	if c == nil || c.prefix == "" {
		return name
	}
	return c.prefix + "/" + name
}

type Bucket struct {
	name   string
	client *Client
}

func (b *Bucket) Name() string {
	return b.name
}

// URI is the gs:// address of object in this bucket.
func (b *Bucket) URI(object string) string {
	return "gs://" + b.name + "/" + object
}

// Upload streams r to object and returns its gs:// URI. Small payloads go up
// in one multipart request; larger ones switch to a resumable session.
func (b *Bucket) Upload(ctx context.Context, object, contentType string, r io.Reader) (string, error) {
	if b == nil || b.client == nil || b.client.svc == nil {
		return "", errNotInitialized
	}
	if strings.TrimSpace(object) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "gcs object name is required")
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	obj := &storagev1.Object{Name: object, ContentType: contentType}
	_, err := b.client.svc.Objects.Insert(b.name, obj).
		Media(r, googleapi.ContentType(contentType)).
		Fields("name").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify(err, "gcs upload of "+object)
	}
	return b.URI(object), nil
}

// UploadFile uploads the local file at path.
func (b *Bucket) UploadFile(ctx context.Context, object, contentType, path string) (uri string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open "+path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return b.Upload(ctx, object, contentType, f)
}

// classify maps API failures onto error codes: 404 is NotFound, 401 and 403
// are Forbidden, everything else is a dependency failure.
func classify(err error, msg string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, msg)
		case http.StatusUnauthorized, http.StatusForbidden:
			return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, msg)
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
