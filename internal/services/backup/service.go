// Package backup exports and imports dataStore namespaces as a single
// portable document.
package backup

import (
	"context"
	"fmt"
	"log"
	"time"

	"dqa360-backend/internal/api"
	"dqa360-backend/internal/datastore"
)

// FormatName identifies the backup document format
const FormatName = "dhis2-dataStore-backup"

// FormatVersion is bumped on incompatible changes to the backup layout
const FormatVersion = "1.0"

// Document is a full backup of one or more dataStore namespaces. Keys that
// could not be read at export time carry an {"__error__": ...} placeholder
// instead of their value so a partial export is still importable.
type Document struct {
	Meta       Meta                              `json:"meta"`
	Namespaces []string                          `json:"namespaces"`
	Data       map[string]map[string]interface{} `json:"data"`
}

// Meta describes a backup document
type Meta struct {
	App            string `json:"app"`
	Format         string `json:"format"`
	Version        string `json:"version"`
	ExportedAt     string `json:"exportedAt"`
	NamespaceCount int    `json:"namespaceCount"`
}

// NamespaceReport counts the per-namespace outcome of an import
type NamespaceReport struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors"`
}

// ImportResult is the outcome of restoring a backup document
type ImportResult struct {
	Namespaces map[string]NamespaceReport `json:"namespaces"`
	Created    int                        `json:"created"`
	Updated    int                        `json:"updated"`
	Failed     int                        `json:"failed"`
}

// Service exports and restores dataStore namespaces
type Service struct {
	store datastore.Store
}

// NewService creates a backup service over the given store
func NewService(store datastore.Store) *Service {
	return &Service{store: store}
}

// Export reads every key of the given namespaces into one document. An
// unreadable key becomes an error placeholder, a missing namespace an empty
// map; neither aborts the export.
func (s *Service) Export(ctx context.Context, namespaces []string) (*Document, error) {
	doc := &Document{
		Meta: Meta{
			App:            "dqa360",
			Format:         FormatName,
			Version:        FormatVersion,
			ExportedAt:     time.Now().UTC().Format(time.RFC3339),
			NamespaceCount: len(namespaces),
		},
		Namespaces: append([]string{}, namespaces...),
		Data:       map[string]map[string]interface{}{},
	}

	for _, ns := range namespaces {
		doc.Data[ns] = map[string]interface{}{}

		keys, err := s.store.ListKeys(ctx, ns)
		if api.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("export namespace %s: %w", ns, err)
		}

		for _, key := range keys {
			var value interface{}
			if err := s.store.Get(ctx, ns, key, &value); err != nil {
				log.Printf("WARNING: backup could not read %s/%s: %v", ns, key, err)
				doc.Data[ns][key] = map[string]interface{}{"__error__": err.Error()}
				continue
			}
			doc.Data[ns][key] = value
		}
	}

	return doc, nil
}

// Import restores a backup document key by key, updating existing keys and
// creating missing ones. Error placeholders from a partial export are
// skipped. Individual key failures are counted and reported, never fatal.
func (s *Service) Import(ctx context.Context, doc *Document) (*ImportResult, error) {
	if doc == nil {
		return nil, fmt.Errorf("import backup: nil document")
	}
	if doc.Meta.Format != FormatName {
		return nil, fmt.Errorf("import backup: unsupported format %q", doc.Meta.Format)
	}

	result := &ImportResult{Namespaces: map[string]NamespaceReport{}}

	for ns, entries := range doc.Data {
		report := NamespaceReport{Errors: []string{}}

		for key, value := range entries {
			if isErrorPlaceholder(value) {
				continue
			}

			err := s.store.Update(ctx, ns, key, value)
			switch {
			case err == nil:
				report.Updated++
			case api.IsNotFound(err):
				if createErr := s.store.Create(ctx, ns, key, value); createErr != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", key, createErr))
				} else {
					report.Created++
				}
			default:
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", key, err))
			}
		}

		result.Namespaces[ns] = report
		result.Created += report.Created
		result.Updated += report.Updated
		result.Failed += len(report.Errors)
	}

	return result, nil
}

func isErrorPlaceholder(value interface{}) bool {
	m, ok := value.(map[string]interface{})
	if !ok {
		return false
	}
	_, has := m["__error__"]
	return has
}
