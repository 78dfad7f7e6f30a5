package warehouse

import (
	"fmt"
	"strings"

	rcerrors "github.com/aguerra09/reusable-components/pkg/errors"
)

// TableRef identifies a table as project.dataset.table.
type TableRef struct {
	ProjectID string
	DatasetID string
	TableID   string
}

// String returns the fully qualified name.
func (r TableRef) String() string {
	return fmt.Sprintf("%s.%s.%s", r.ProjectID, r.DatasetID, r.TableID)
}

// DatasetRef identifies a dataset as project.dataset.
type DatasetRef struct {
	ProjectID string
	DatasetID string
}

// String returns the fully qualified name.
func (r DatasetRef) String() string {
	return fmt.Sprintf("%s.%s", r.ProjectID, r.DatasetID)
}

// ParseTableRef parses "project.dataset.table" or "dataset.table". The second
// form is resolved against defaultProject.
func ParseTableRef(name, defaultProject string) (TableRef, error) {
	parts := strings.Split(name, ".")
	switch {
	case len(parts) == 3 && nonEmpty(parts):
		return TableRef{ProjectID: parts[0], DatasetID: parts[1], TableID: parts[2]}, nil
	case len(parts) == 2 && nonEmpty(parts) && defaultProject != "":
		return TableRef{ProjectID: defaultProject, DatasetID: parts[0], TableID: parts[1]}, nil
	}
	return TableRef{}, rcerrors.InvalidReferenceError{Kind: "table", Value: name}
}

// ParseDatasetRef parses "project.dataset" or "dataset".
func ParseDatasetRef(name, defaultProject string) (DatasetRef, error) {
	parts := strings.Split(name, ".")
	switch {
	case len(parts) == 2 && nonEmpty(parts):
		return DatasetRef{ProjectID: parts[0], DatasetID: parts[1]}, nil
	case len(parts) == 1 && nonEmpty(parts) && defaultProject != "":
		return DatasetRef{ProjectID: defaultProject, DatasetID: parts[0]}, nil
	}
	return DatasetRef{}, rcerrors.InvalidReferenceError{Kind: "dataset", Value: name}
}

func nonEmpty(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
