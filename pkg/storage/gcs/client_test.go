package gcs

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/angelmondragon/symmetri/pkg/config"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

func newTestClient(t *testing.T, srv *httptest.Server, bucket, prefix string) *Client {
	t.Helper()
	client, err := newClient(context.Background(),
		config.GCSConfig{BucketName: bucket, ExportPrefix: prefix},
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return client
}

func TestUploadSendsMultipartMedia(t *testing.T) {
	t.Parallel()

	var (
		gotPath, gotUploadType string
		gotMeta                map[string]any
		gotMediaType, gotBody  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUploadType = r.URL.Query().Get("uploadType")

		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("content type: %v", err)
			return
		}
		parts := multipart.NewReader(r.Body, params["boundary"])
		meta, err := parts.NextPart()
		if err == nil {
			_ = json.NewDecoder(meta).Decode(&gotMeta)
		}
		media, err := parts.NextPart()
		if err == nil {
			gotMediaType = media.Header.Get("Content-Type")
			body, _ := io.ReadAll(media)
			gotBody = string(body)
		}
		_, _ = w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv, "exports-bucket", "/exports/")
	object := client.ObjectName("crm_users.csv.gz")

	uri, err := client.BucketHandle("").Upload(context.Background(), object, "application/gzip", strings.NewReader("payload"))
	require.NoError(t, err)

	assert.Equal(t, "gs://exports-bucket/exports/crm_users.csv.gz", uri)
	assert.Equal(t, "/upload/storage/v1/b/exports-bucket/o", gotPath)
	assert.Equal(t, "multipart", gotUploadType)
	assert.Equal(t, "exports/crm_users.csv.gz", gotMeta["name"])
	assert.Equal(t, "application/gzip", gotMediaType)
	assert.Equal(t, "payload", gotBody)
}

func TestUploadFileClassifiesForbidden(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "t.csv.gz")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	client := newTestClient(t, srv, "b", "")
	_, err := client.BucketHandle("").UploadFile(context.Background(), "t.csv.gz", "application/gzip", path)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), err.Error())
	assert.Contains(t, err.Error(), "t.csv.gz")
}

func TestUploadFileMissingPath(t *testing.T) {
	client := &Client{defaultBucket: "b"}
	_, err := client.BucketHandle("").UploadFile(context.Background(), "o", "", filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestUploadRequiresClientAndObject(t *testing.T) {
	var b *Bucket
	_, err := b.Upload(context.Background(), "o", "", strings.NewReader(""))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err = newTestClient(t, srv, "b", "").BucketHandle("").Upload(context.Background(), "  ", "", strings.NewReader(""))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "exports/run/a.csv.gz", (&Client{prefix: "exports/run"}).ObjectName("/a.csv.gz"))
	assert.Equal(t, "a.csv.gz", (&Client{}).ObjectName("a.csv.gz"))
}

func TestBucketHandle(t *testing.T) {
	c := &Client{defaultBucket: "default"}
	assert.Equal(t, "default", c.BucketHandle("").Name())
	assert.Equal(t, "other", c.BucketHandle("other").Name())
	assert.Equal(t, "gs://other/x/y.csv.gz", c.BucketHandle("other").URI("x/y.csv.gz"))

	var nilClient *Client
	assert.Nil(t, nilClient.BucketHandle(""))
	assert.Empty(t, nilClient.DefaultBucket())
}

func TestPingChecksBucket(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/b/bucket/o" {
			http.Error(w, `{"error":{"code":404,"message":"no such bucket"}}`, http.StatusNotFound)
			return
		}
		assert.Equal(t, "1", r.URL.Query().Get("maxResults"))
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv, "bucket", "").Ping(context.Background()))

	err := newTestClient(t, srv, "other", "").Ping(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), err)
}

func TestNewClientRequiresBucket(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCSConfig{}, config.GCPConfig{}, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfig))

	var c *Client
	assert.True(t, pkgerrors.IsCode(c.Ping(context.Background()), pkgerrors.CodeDependency))
}
