package warehouse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/aguerra09/reusable-components/pkg/tabular"
)

// WriteMode controls what a load does with rows already in the destination.
type WriteMode string

const (
	WriteAppend   WriteMode = "WRITE_APPEND"
	WriteTruncate WriteMode = "WRITE_TRUNCATE"
	WriteEmpty    WriteMode = "WRITE_EMPTY"
)

// Schema update options applied to every load so that new columns are added
// and REQUIRED columns are relaxed to NULLABLE instead of failing the job.
var loadSchemaUpdateOptions = []string{"ALLOW_FIELD_ADDITION", "ALLOW_FIELD_RELAXATION"}

// Field describes one column for CreateTable.
type Field struct {
	Name        string
	Type        string // STRING, INTEGER, FLOAT, BOOLEAN, TIMESTAMP, DATE, ...
	Mode        string // NULLABLE (default), REQUIRED or REPEATED
	Description string
}

// JobError carries the errors a warehouse job reported when it finished.
type JobError struct {
	Errors []string
}

func (e *JobError) Error() string {
	return "job failed: " + strings.Join(e.Errors, "; ")
}

// Backend is the warehouse service as seen by Client. The BigQuery
// implementation is returned by NewBigQueryBackend.
type Backend interface {
	// Query runs standard SQL and materializes every row. Errors reported by
	// the finished job are returned as *JobError.
	Query(ctx context.Context, sql, location string) (*tabular.Table, error)
	// TableMetadata fetches a table's metadata; a missing table yields a 404.
	TableMetadata(ctx context.Context, ref TableRef) error
	DeleteTable(ctx context.Context, ref TableRef) error
	CreateTable(ctx context.Context, ref TableRef, schema []Field) error
	CreateDataset(ctx context.Context, ref DatasetRef, location string) error
	// LoadCSV loads CSV with a header row and waits for the job to finish.
	LoadCSV(ctx context.Context, ref TableRef, r io.Reader, mode WriteMode) error
	Close() error
}

type bigQueryBackend struct {
	client *bigquery.Client
}

// NewBigQueryBackend adapts a BigQuery client to Backend.
func NewBigQueryBackend(client *bigquery.Client) Backend {
	return &bigQueryBackend{client: client}
}

func (b *bigQueryBackend) table(ref TableRef) *bigquery.Table {
	return b.client.DatasetInProject(ref.ProjectID, ref.DatasetID).Table(ref.TableID)
}

func (b *bigQueryBackend) Query(ctx context.Context, sql, location string) (*tabular.Table, error) {
	q := b.client.Query(sql)
	q.UseLegacySQL = false
	if location != "" {
		q.Location = location
	}

	job, err := q.Run(ctx)
	if err != nil {
		return nil, err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if err := status.Err(); err != nil {
		return nil, jobError(status, err)
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, err
	}
	return readRows(it)
}

func readRows(it *bigquery.RowIterator) (*tabular.Table, error) {
	var rows [][]any
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = v
		}
		rows = append(rows, values)
	}

	columns := make([]string, len(it.Schema))
	for i, f := range it.Schema {
		columns[i] = f.Name
	}
	return &tabular.Table{Columns: columns, Rows: rows}, nil
}

func (b *bigQueryBackend) TableMetadata(ctx context.Context, ref TableRef) error {
	_, err := b.table(ref).Metadata(ctx)
	return err
}

func (b *bigQueryBackend) DeleteTable(ctx context.Context, ref TableRef) error {
	return b.table(ref).Delete(ctx)
}

func (b *bigQueryBackend) CreateTable(ctx context.Context, ref TableRef, schema []Field) error {
	s, err := toBigQuerySchema(schema)
	if err != nil {
		return err
	}
	return b.table(ref).Create(ctx, &bigquery.TableMetadata{Schema: s})
}

func (b *bigQueryBackend) CreateDataset(ctx context.Context, ref DatasetRef, location string) error {
	return b.client.DatasetInProject(ref.ProjectID, ref.DatasetID).Create(ctx, &bigquery.DatasetMetadata{
		Location: location,
	})
}

func (b *bigQueryBackend) LoadCSV(ctx context.Context, ref TableRef, r io.Reader, mode WriteMode) error {
	src := bigquery.NewReaderSource(r)
	src.SourceFormat = bigquery.CSV
	src.AutoDetect = true
	src.SkipLeadingRows = 1

	loader := b.table(ref).LoaderFrom(src)
	loader.WriteDisposition = bigquery.TableWriteDisposition(mode)
	loader.SchemaUpdateOptions = loadSchemaUpdateOptions

	job, err := loader.Run(ctx)
	if err != nil {
		return err
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return err
	}
	if err := status.Err(); err != nil {
		return jobError(status, err)
	}
	return nil
}

func (b *bigQueryBackend) Close() error {
	return b.client.Close()
}

func jobError(status *bigquery.JobStatus, err error) *JobError {
	var msgs []string
	for _, e := range status.Errors {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, err.Error())
	}
	return &JobError{Errors: msgs}
}

func toBigQuerySchema(fields []Field) (bigquery.Schema, error) {
	schema := make(bigquery.Schema, 0, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema field has no name")
		}
		mode := strings.ToUpper(f.Mode)
		schema = append(schema, &bigquery.FieldSchema{
			Name:        f.Name,
			Type:        bigquery.FieldType(strings.ToUpper(f.Type)),
			Required:    mode == "REQUIRED",
			Repeated:    mode == "REPEATED",
			Description: f.Description,
		})
	}
	return schema, nil
}
