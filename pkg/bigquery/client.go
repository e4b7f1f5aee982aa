package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tillstock/tillstock-backend/pkg/config"
	"github.com/tillstock/tillstock-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errNoTables             = errors.New("at least one bigquery table is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// TableSpec describes a table the client writes to. Schema is only used when
// the table is missing and creation is enabled.
type TableSpec struct {
	Name string
	// PartitionField is a TIMESTAMP column used for daily partitioning.
	PartitionField string
	Schema         bigquery.Schema
}

// Client wraps a dataset and the inserters for its registered tables.
type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	specs     []TableSpec
	inserters map[string]*bigquery.Inserter
	create    bool
	logg      *logger.Logger
}

// NewClient connects to BigQuery and makes sure the dataset and every table in
// specs are reachable, creating missing tables when cfg.CreateTables is set.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, specs []TableSpec, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	specs, err := normalizeSpecs(specs)
	if err != nil {
		return nil, err
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}

	c := &Client{
		client:    bqClient,
		dataset:   bqClient.Dataset(datasetID),
		specs:     specs,
		inserters: make(map[string]*bigquery.Inserter, len(specs)),
		create:    cfg.CreateTables,
		logg:      logg,
	}
	if err := c.ensureTables(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}
	for _, spec := range specs {
		c.inserters[spec.Name] = c.dataset.Table(spec.Name).Inserter()
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{"dataset": datasetID, "tables": len(specs)})
		logg.Info(logCtx, "bigquery client initialized")
	}
	return c, nil
}

func normalizeSpecs(specs []TableSpec) ([]TableSpec, error) {
	out := make([]TableSpec, 0, len(specs))
	seen := map[string]bool{}
	for _, spec := range specs {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" || seen[spec.Name] {
			continue
		}
		seen[spec.Name] = true
		out = append(out, spec)
	}
	if len(out) == 0 {
		return nil, errNoTables
	}
	return out, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// tableMetadata builds the create request for a missing table.
func (s TableSpec) tableMetadata() (*bigquery.TableMetadata, error) {
	if len(s.Schema) == 0 {
		return nil, fmt.Errorf("table %q has no schema to create it with", s.Name)
	}
	md := &bigquery.TableMetadata{Schema: s.Schema}
	if s.PartitionField != "" {
		md.TimePartitioning = &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: s.PartitionField,
		}
	}
	return md, nil
}

func (c *Client) ensureTables(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}

	for _, spec := range c.specs {
		table := c.dataset.Table(spec.Name)
		_, err := table.Metadata(ctx)
		switch {
		case err == nil:
			continue
		case !isNotFound(err):
			return fmt.Errorf("checking table %q: %w", spec.Name, err)
		case !c.create:
			return fmt.Errorf("table %q does not exist", spec.Name)
		}

		md, err := spec.tableMetadata()
		if err != nil {
			return err
		}
		if err := table.Create(ctx, md); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("creating table %q: %w", spec.Name, err)
		}
		if c.logg != nil {
			c.logg.Info(c.logg.WithField(ctx, "table", spec.Name), "bigquery table created")
		}
	}
	return nil
}

// Ping verifies the dataset and tables are still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errClientNotInitialized
	}
	return c.ensureTables(ctx)
}

// InsertRows streams rows into a table registered at construction.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	if len(rows) == 0 {
		return nil
	}
	inserter, ok := c.inserters[strings.TrimSpace(table)]
	if !ok {
		return fmt.Errorf("table %q is not registered with this client", table)
	}
	return inserter.Put(ctx, rows)
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	return apiCode(err) == http.StatusNotFound
}

func isAlreadyExists(err error) bool {
	return apiCode(err) == http.StatusConflict
}

func apiCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code
	}
	return 0
}
