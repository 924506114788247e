package bigquery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/angelmondragon/symmetri/pkg/config"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

const (
	metadataCheckTimeout = 10 * time.Second
)

type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	projectID string
	cfg       config.BigQueryConfig
	retry     RetryPolicy
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
	errLoadSourceRequired   = errors.New("bigquery load needs a gcs uri or a reader")
)

type Pinger interface {
	Ping(context.Context) error
}

// NewClient creates a BigQuery client and makes sure the configured dataset
// exists, creating it in the configured location when missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}

	opts := clientOptions(gcp)
	bqClient, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	client := &Client{
		client:    bqClient,
		dataset:   bqClient.Dataset(datasetID),
		projectID: projectID,
		cfg:       cfg,
		retry:     DefaultRetryPolicy(),
	}

	if err := client.ensureDataset(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dataset", datasetID), "bigquery client initialized")
	}

	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

func (c *Client) ensureDataset(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}

	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	_, err := c.dataset.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}

	meta := &bigquery.DatasetMetadata{Location: strings.TrimSpace(c.cfg.Location)}
	if err := c.dataset.Create(ctx, meta); err != nil {
		return fmt.Errorf("creating dataset %q: %w", c.dataset.DatasetID, err)
	}
	return nil
}

// Ping verifies the dataset is accessible.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errClientNotInitialized
	}
	return c.ensureDataset(ctx)
}

// ProjectID returns the project the client bills to.
func (c *Client) ProjectID() string {
	if c == nil {
		return ""
	}
	return c.projectID
}

// DatasetID returns the configured dataset.
func (c *Client) DatasetID() string {
	if c == nil || c.dataset == nil {
		return ""
	}
	return c.dataset.DatasetID
}

// LoadRequest describes one truncate-and-reload of a table from a CSV file
// with a header row. GCSURI takes precedence over Reader.
type LoadRequest struct {
	Table  string
	Schema bigquery.Schema
	GCSURI string
	// Gzip marks the GCS object as gzip compressed.
	Gzip   bool
	Reader io.Reader
}

// LoadCSV runs a load job that replaces the table contents atomically and
// creates the table when it does not exist yet.
func (c *Client) LoadCSV(ctx context.Context, req LoadRequest) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table := strings.TrimSpace(req.Table)
	if table == "" {
		return errTableNameRequired
	}

	var src bigquery.LoadSource
	switch {
	case strings.TrimSpace(req.GCSURI) != "":
		ref := bigquery.NewGCSReference(req.GCSURI)
		ref.SourceFormat = bigquery.CSV
		ref.SkipLeadingRows = 1
		ref.Schema = req.Schema
		if req.Gzip {
			ref.Compression = bigquery.Gzip
		}
		src = ref
	case req.Reader != nil:
		rs := bigquery.NewReaderSource(req.Reader)
		rs.SourceFormat = bigquery.CSV
		rs.SkipLeadingRows = 1
		rs.Schema = req.Schema
		src = rs
	default:
		return errLoadSourceRequired
	}

	loader := c.dataset.Table(table).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded
	if loc := strings.TrimSpace(c.cfg.Location); loc != "" {
		loader.Location = loc
	}

	// A reader source is consumed by the first attempt, so only GCS loads
	// are retried.
	policy := c.retry
	if req.GCSURI == "" {
		policy.MaxAttempts = 1
	}

	return WithRetry(ctx, policy, func(ctx context.Context) error {
		job, err := loader.Run(ctx)
		if err != nil {
			return fmt.Errorf("starting load of %s: %w", table, err)
		}
		status, err := job.Wait(ctx)
		if err != nil {
			return fmt.Errorf("waiting for load of %s: %w", table, err)
		}
		if err := status.Err(); err != nil {
			return fmt.Errorf("load of %s failed: %w", table, err)
		}
		return nil
	})
}

// Query executes SQL against BigQuery and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	if loc := strings.TrimSpace(c.cfg.Location); loc != "" {
		q.Location = loc
	}
	return q.Read(ctx)
}

// QueryRows runs sql and materializes every row keyed by column name.
func (c *Client) QueryRows(ctx context.Context, sql string, params []bigquery.QueryParameter) ([]map[string]bigquery.Value, error) {
	it, err := c.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	var rows []map[string]bigquery.Value
	for {
		row := map[string]bigquery.Value{}
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading query rows: %w", err)
		}
		rows = append(rows, row)
	}
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}
