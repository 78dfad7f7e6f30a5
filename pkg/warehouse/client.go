// Package warehouse runs queries and bulk loads against BigQuery.
//
// Table and dataset names are passed as the qualified strings BigQuery uses
// ("project.dataset.table", or "dataset.table" within the client's project).
// Query results are materialized into a *tabular.Table.
package warehouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/aguerra09/reusable-components/internal/gcpauth"
	"github.com/aguerra09/reusable-components/internal/logging"
	"github.com/aguerra09/reusable-components/internal/metrics"
	rcerrors "github.com/aguerra09/reusable-components/pkg/errors"
	"github.com/aguerra09/reusable-components/pkg/tabular"
)

const component = "warehouse"

// Client is scoped to one project and default location.
type Client struct {
	projectID string
	location  string
	backend   Backend
	creds     gcpauth.Credentials
	logger    *logging.Logger
	metrics   *metrics.Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithBackend sets the warehouse backend (for testing)
func WithBackend(b Backend) Option {
	return func(c *Client) {
		c.backend = b
	}
}

// WithScopes requests OAuth scopes for application default credentials.
func WithScopes(scopes ...string) Option {
	return func(c *Client) {
		c.creds.Scopes = scopes
	}
}

// WithCredentialsFile authenticates with a service account key file.
func WithCredentialsFile(path string) Option {
	return func(c *Client) {
		c.creds.ServiceAccountKeyPath = path
	}
}

// WithImpersonation impersonates the given service account.
func WithImpersonation(principal string) Option {
	return func(c *Client) {
		c.creds.ImpersonateAccount = principal
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records every operation on r instead of the default registry.
// A nil r disables metrics.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = r
	}
}

// New creates a Client for projectID whose jobs run in location unless a
// call says otherwise.
func New(ctx context.Context, projectID, location string, opts ...Option) (*Client, error) {
	c := &Client{
		projectID: gcpauth.ProjectID(projectID),
		location:  location,
		logger:    logging.New(false, false),
		metrics:   metrics.InitMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named(component)

	if c.projectID == "" {
		return nil, fmt.Errorf("project_id is required for BigQuery: set it explicitly or via GOOGLE_CLOUD_PROJECT")
	}

	if c.backend == nil {
		clientOpts, err := gcpauth.ClientOptions(ctx, c.creds)
		if err != nil {
			return nil, err
		}
		bq, err := bigquery.NewClient(ctx, c.projectID, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
		}
		bq.Location = location
		c.backend = NewBigQueryBackend(bq)
	}

	return c, nil
}

// ProjectID returns the client's project.
func (c *Client) ProjectID() string {
	return c.projectID
}

// Location returns the client's default location.
func (c *Client) Location() string {
	return c.location
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.backend.Close()
}

// Query runs sql as standard SQL in the client's default location.
func (c *Client) Query(ctx context.Context, sql string) (*tabular.Table, error) {
	return c.QueryInLocation(ctx, sql, "")
}

// QueryInLocation runs sql as standard SQL in location ("" for the default)
// and returns every row. Any failure is a QueryExecutionError.
func (c *Client) QueryInLocation(ctx context.Context, sql, location string) (result *tabular.Table, err error) {
	defer c.observe("query", time.Now(), &err)

	result, err = c.backend.Query(ctx, sql, location)
	if err != nil {
		c.logger.Error("Failed to query %s.", sql)
		qerr := rcerrors.QueryExecutionError{Query: sql, Err: err}
		var jobErr *JobError
		if errors.As(err, &jobErr) {
			qerr.Errors = jobErr.Errors
		}
		return nil, qerr
	}

	c.logger.Info("Executed query %s.", sql)
	return result, nil
}

// TableExists reports whether table exists. A not-found answer is a normal
// false result; any other failure is returned.
func (c *Client) TableExists(ctx context.Context, table string) (exists bool, err error) {
	defer c.observe("table_exists", time.Now(), &err)

	ref, err := ParseTableRef(table, c.projectID)
	if err != nil {
		return false, err
	}
	return c.tableExists(ctx, ref)
}

func (c *Client) tableExists(ctx context.Context, ref TableRef) (bool, error) {
	err := c.backend.TableMetadata(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case rcerrors.IsNotFound(err):
		return false, nil
	default:
		c.logger.Error("Failed to check table %s: %v", ref, err)
		return false, rcerrors.Service(component, "get table", ref.String(), err)
	}
}

// LoadTable bulk-loads data into table and waits for the load to finish.
// The schema is inferred; new columns are added and REQUIRED columns relaxed
// when they do not match the destination.
func (c *Client) LoadTable(ctx context.Context, data *tabular.Table, table string, mode WriteMode) (err error) {
	defer c.observe("load_table", time.Now(), &err)

	if mode == "" {
		mode = WriteAppend
	}

	ref, err := ParseTableRef(table, c.projectID)
	if err != nil {
		c.logger.Error("Failed to load %s.", table)
		return rcerrors.LoadError{Table: table, Err: err}
	}

	if data == nil {
		c.logger.Error("Failed to load %s.", table)
		return rcerrors.LoadError{Table: table, Err: fmt.Errorf("no data to load")}
	}

	var buf bytes.Buffer
	defer buf.Reset()
	if err := data.WriteCSV(&buf); err != nil {
		c.logger.Error("Failed to load %s.", table)
		return rcerrors.LoadError{Table: table, Err: err}
	}

	if err := c.backend.LoadCSV(ctx, ref, &buf, mode); err != nil {
		c.logger.Error("Failed to load %s.", table)
		return rcerrors.LoadError{Table: table, Err: err}
	}

	c.logger.Info("Loaded %s.", table)
	return nil
}

// GetLastLoadDate returns a one-row table whose last_load_date column holds
// MAX(dateField) of table. table is qualified with the client's project.
func (c *Client) GetLastLoadDate(ctx context.Context, table, dateField string) (*tabular.Table, error) {
	result, err := c.Query(ctx, LastLoadDateQuery(c.projectID, table, dateField))
	if err != nil {
		c.logger.Error("Failed to get last load date.")
		return nil, err
	}
	return result, nil
}

// LastLoadDateQuery builds the statement used by GetLastLoadDate.
func LastLoadDateQuery(projectID, table, dateField string) string {
	return fmt.Sprintf("SELECT MAX(%s) AS last_load_date FROM `%s.%s`", dateField, projectID, table)
}

// DeleteTable deletes table. Deleting a table that does not exist is a no-op.
func (c *Client) DeleteTable(ctx context.Context, table string) (err error) {
	defer c.observe("delete_table", time.Now(), &err)

	ref, err := ParseTableRef(table, c.projectID)
	if err != nil {
		return err
	}

	exists, err := c.tableExists(ctx, ref)
	if err != nil {
		return err
	}
	if !exists {
		c.logger.Info("Table %s does not exist.", table)
		return nil
	}

	if err := c.backend.DeleteTable(ctx, ref); err != nil {
		c.logger.Error("Failed to delete table %s: %v", table, err)
		return rcerrors.Service(component, "delete table", table, err)
	}

	c.logger.Info("Deleted table %s.", table)
	return nil
}

// CreateDataset creates dataset in location, or in the client's location
// when location is empty. It fails if the dataset already exists.
func (c *Client) CreateDataset(ctx context.Context, dataset, location string) (err error) {
	defer c.observe("create_dataset", time.Now(), &err)

	ref, err := ParseDatasetRef(dataset, c.projectID)
	if err != nil {
		return err
	}
	if location == "" {
		location = c.location
	}

	if err := c.backend.CreateDataset(ctx, ref, location); err != nil {
		c.logger.Error("Failed to create dataset %s: %v", dataset, err)
		return rcerrors.Service(component, "create dataset", dataset, err)
	}

	c.logger.Info("Created dataset %s.", dataset)
	return nil
}

// CreateTable creates table with schema. It fails if the table already exists.
func (c *Client) CreateTable(ctx context.Context, table string, schema []Field) (err error) {
	defer c.observe("create_table", time.Now(), &err)

	ref, err := ParseTableRef(table, c.projectID)
	if err != nil {
		return err
	}

	if err := c.backend.CreateTable(ctx, ref, schema); err != nil {
		c.logger.Error("Failed to create table %s: %v", table, err)
		return rcerrors.Service(component, "create table", table, err)
	}

	c.logger.Info("Created table %s.", table)
	return nil
}

func (c *Client) observe(operation string, start time.Time, err *error) {
	c.metrics.Observe(component, operation, start, *err)
}
