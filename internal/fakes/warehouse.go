package fakes

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"google.golang.org/api/googleapi"

	"github.com/aguerra09/reusable-components/pkg/tabular"
	"github.com/aguerra09/reusable-components/pkg/warehouse"
)

// FakeWarehouse is an in-memory warehouse.Backend. Missing resources are
// reported as HTTP 404 and duplicates as HTTP 409, like the BigQuery API.
type FakeWarehouse struct {
	mu sync.Mutex

	Datasets map[string]string // dataset ref -> location
	Tables   map[string]*FakeTable
	Errors   map[string]error // keyed by ref string or SQL text

	// QueryFunc allows custom behavior for Query
	QueryFunc func(ctx context.Context, sql, location string) (*tabular.Table, error)

	Queries []FakeQuery
	Loads   []FakeLoad
	Closed  bool
}

// FakeTable is a stored table.
type FakeTable struct {
	Schema []warehouse.Field
	Data   *tabular.Table
}

// FakeQuery records one Query call.
type FakeQuery struct {
	SQL      string
	Location string
}

// FakeLoad records one LoadCSV call.
type FakeLoad struct {
	Table string
	Mode  warehouse.WriteMode
	CSV   string
}

// NewFakeWarehouse creates an empty fake warehouse
func NewFakeWarehouse() *FakeWarehouse {
	return &FakeWarehouse{
		Datasets: make(map[string]string),
		Tables:   make(map[string]*FakeTable),
		Errors:   make(map[string]error),
	}
}

// Query records the statement and returns QueryFunc's result, or an empty table.
func (f *FakeWarehouse) Query(ctx context.Context, sql, location string) (*tabular.Table, error) {
	f.mu.Lock()
	f.Queries = append(f.Queries, FakeQuery{SQL: sql, Location: location})
	err, hasErr := f.Errors[sql]
	fn := f.QueryFunc
	f.mu.Unlock()

	if hasErr {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, sql, location)
	}
	return tabular.New(), nil
}

// TableMetadata returns a 404 for unknown tables
func (f *FakeWarehouse) TableMetadata(ctx context.Context, ref warehouse.TableRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.Errors[ref.String()]; ok {
		return err
	}
	if _, ok := f.Tables[ref.String()]; !ok {
		return notFound(ref.String())
	}
	return nil
}

// DeleteTable removes a table
func (f *FakeWarehouse) DeleteTable(ctx context.Context, ref warehouse.TableRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.Tables[ref.String()]; !ok {
		return notFound(ref.String())
	}
	delete(f.Tables, ref.String())
	return nil
}

// CreateTable creates a table; the dataset must exist
func (f *FakeWarehouse) CreateTable(ctx context.Context, ref warehouse.TableRef, schema []warehouse.Field) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dataset := warehouse.DatasetRef{ProjectID: ref.ProjectID, DatasetID: ref.DatasetID}.String()
	if _, ok := f.Datasets[dataset]; !ok {
		return notFound(dataset)
	}
	if _, ok := f.Tables[ref.String()]; ok {
		return conflict(ref.String())
	}

	columns := make([]string, len(schema))
	for i, field := range schema {
		columns[i] = field.Name
	}
	f.Tables[ref.String()] = &FakeTable{Schema: schema, Data: tabular.New(columns...)}
	return nil
}

// CreateDataset creates a dataset
func (f *FakeWarehouse) CreateDataset(ctx context.Context, ref warehouse.DatasetRef, location string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.Datasets[ref.String()]; ok {
		return conflict(ref.String())
	}
	f.Datasets[ref.String()] = location
	return nil
}

// LoadCSV parses the CSV and stores its rows according to mode.
// The destination table is created on first load.
func (f *FakeWarehouse) LoadCSV(ctx context.Context, ref warehouse.TableRef, r io.Reader, mode warehouse.WriteMode) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Loads = append(f.Loads, FakeLoad{Table: ref.String(), Mode: mode, CSV: string(raw)})

	if err, ok := f.Errors[ref.String()]; ok {
		return err
	}

	loaded, err := tabular.ReadCSV(bytes.NewReader(raw))
	if err != nil {
		return &warehouse.JobError{Errors: []string{err.Error()}}
	}

	existing, ok := f.Tables[ref.String()]
	switch {
	case !ok || mode == warehouse.WriteTruncate:
		f.Tables[ref.String()] = &FakeTable{Data: loaded}
	case mode == warehouse.WriteEmpty && existing.Data.Len() > 0:
		return &warehouse.JobError{Errors: []string{"Already Exists: Table " + ref.String()}}
	default:
		existing.Data.Columns = loaded.Columns
		existing.Data.Rows = append(existing.Data.Rows, loaded.Rows...)
	}
	return nil
}

// Close marks the backend closed
func (f *FakeWarehouse) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func notFound(name string) error {
	return &googleapi.Error{Code: http.StatusNotFound, Message: "Not found: " + name}
}

func conflict(name string) error {
	return &googleapi.Error{Code: http.StatusConflict, Message: "Already Exists: " + name}
}
