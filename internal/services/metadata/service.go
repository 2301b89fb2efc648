// Package metadata validates, defaults and creates individual DHIS2 metadata
// objects, keeping a dataStore-backed audit trail of everything created
// through the app. Deletes mirror the trail the same way.
package metadata

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"dqa360-backend/internal/api"
	"dqa360-backend/internal/config"
	"dqa360-backend/internal/datastore"
)

const attachmentsKey = "createdMetadata_attachments"

// Service is the metadata object factory
type Service struct {
	ctx       context.Context
	client    api.MetadataClient
	store     datastore.Store
	namespace string
	sharing   string
	external  bool
}

// NewService creates a new metadata factory
func NewService(ctx context.Context, client api.MetadataClient, store datastore.Store, cfg *config.Config) *Service {
	return &Service{
		ctx:       ctx,
		client:    client,
		store:     store,
		namespace: cfg.Namespace,
		sharing:   cfg.SharingPublicAccess,
		external:  cfg.SharingExternalAccess,
	}
}

// Validate checks an object against the requirements of its type. Name and
// code are always required; a missing ID is auto-generated and reported as a
// warning rather than an error.
func (s *Service) Validate(obj map[string]interface{}, t ObjectType) ValidationResult {
	result := ValidationResult{IsValid: true, Errors: []string{}, Warnings: []string{}}

	if getStringOr(obj, "name", "") == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: name is required", t))
	}
	if getStringOr(obj, "code", "") == "" {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: code is required", t))
	}
	if getStringOr(obj, "id", "") == "" {
		obj["id"] = s.nextID()
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: generated id %s", t, obj["id"]))
	}

	switch t {
	case TypeCategoryCombo:
		if len(refList(obj["categories"])) == 0 {
			result.Errors = append(result.Errors, "categoryCombo: at least one category is required")
		}
	case TypeCategory:
		if len(refList(obj["categoryOptions"])) == 0 {
			result.Errors = append(result.Errors, "category: at least one category option is required")
		}
	case TypeDataElement:
		if getStringOr(obj, "valueType", "") == "" {
			result.Warnings = append(result.Warnings, "dataElement: used default value type TEXT")
		}
	case TypeDataset:
		if getStringOr(obj, "periodType", "") == "" {
			result.Errors = append(result.Errors, "dataset: periodType is required")
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// Clean strips UI-only fields and applies the defaults DHIS2 expects,
// returning a new payload map. Reference fields given as bare ID strings are
// normalized to {id} objects.
func (s *Service) Clean(obj map[string]interface{}, t ObjectType) map[string]interface{} {
	cleaned := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		switch k {
		// UI bookkeeping never sent to the API
		case "selected", "expanded", "uiState", "tempId", "isNew", "errors", "warnings", "createdInDHIS2", "dhis2Id":
			continue
		}
		cleaned[k] = v
	}

	now := time.Now().UTC().Format(time.RFC3339)
	setDefault(cleaned, "publicAccess", s.sharing)
	setDefault(cleaned, "externalAccess", s.external)
	setDefault(cleaned, "created", now)
	setDefault(cleaned, "lastUpdated", now)

	if getStringOr(cleaned, "shortName", "") == "" {
		cleaned["shortName"] = truncate(getStringOr(cleaned, "name", ""), 50)
	}

	switch t {
	case TypeCategory:
		setDefault(cleaned, "dataDimensionType", "DISAGGREGATION")
		cleaned["categoryOptions"] = normalizeRefs(cleaned["categoryOptions"])
	case TypeCategoryCombo:
		setDefault(cleaned, "dataDimensionType", "DISAGGREGATION")
		cleaned["categories"] = normalizeRefs(cleaned["categories"])
	case TypeDataElement:
		setDefault(cleaned, "valueType", "TEXT")
		setDefault(cleaned, "aggregationType", "SUM")
		setDefault(cleaned, "domainType", "AGGREGATE")
		setDefault(cleaned, "zeroIsSignificant", false)
		if ref := normalizeRef(cleaned["categoryCombo"]); ref != nil {
			cleaned["categoryCombo"] = ref
		}
	case TypeDataset:
		setDefault(cleaned, "expiryDays", 0)
		setDefault(cleaned, "openFuturePeriods", 0)
		setDefault(cleaned, "timelyDays", 15)
		if ref := normalizeRef(cleaned["categoryCombo"]); ref != nil {
			cleaned["categoryCombo"] = ref
		}
	}

	return cleaned
}

// CreateCategoryOption creates a category option remotely and tracks it
func (s *Service) CreateCategoryOption(obj map[string]interface{}, onProgress ProgressFunc) (map[string]interface{}, error) {
	return s.createObject(obj, TypeCategoryOption, onProgress)
}

// CreateCategory creates a category remotely and tracks it
func (s *Service) CreateCategory(obj map[string]interface{}, onProgress ProgressFunc) (map[string]interface{}, error) {
	return s.createObject(obj, TypeCategory, onProgress)
}

// CreateCategoryCombo creates a category combo remotely and tracks it
func (s *Service) CreateCategoryCombo(obj map[string]interface{}, onProgress ProgressFunc) (map[string]interface{}, error) {
	return s.createObject(obj, TypeCategoryCombo, onProgress)
}

// CreateDataElement creates a data element remotely and tracks it
func (s *Service) CreateDataElement(obj map[string]interface{}, onProgress ProgressFunc) (map[string]interface{}, error) {
	return s.createObject(obj, TypeDataElement, onProgress)
}

// CreateDataset creates a dataset remotely and tracks it
func (s *Service) CreateDataset(obj map[string]interface{}, onProgress ProgressFunc) (map[string]interface{}, error) {
	return s.createObject(obj, TypeDataset, onProgress)
}

// createObject validates, cleans, creates remotely and appends the outcome
// to the tracked collection. The remote create and the tracking append are
// two separate calls with no compensation: a crash in between leaves the
// remote object untracked. Accepted risk, the trail is best-effort.
func (s *Service) createObject(obj map[string]interface{}, t ObjectType, onProgress ProgressFunc) (map[string]interface{}, error) {
	emit(onProgress, Progress{Message: fmt.Sprintf("Validating %s...", t), Step: string(t), Percentage: 10})

	validation := s.Validate(obj, t)
	for _, w := range validation.Warnings {
		log.Printf("WARNING: %s", w)
	}
	if !validation.IsValid {
		return nil, fmt.Errorf("%s validation failed: %s", t, strings.Join(validation.Errors, "; "))
	}

	cleaned := s.Clean(obj, t)

	emit(onProgress, Progress{Message: fmt.Sprintf("Creating %s %s...", t, getStringOr(cleaned, "name", "")), Step: string(t), Percentage: 40})

	result, err := s.client.CreateResource(t.Resource(), cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s remotely: %w", t, err)
	}

	created := make(map[string]interface{}, len(cleaned)+3)
	for k, v := range cleaned {
		created[k] = v
	}
	created["dhis2Id"] = result.UID
	created["createdInDHIS2"] = true
	created["createdAt"] = time.Now().UTC().Format(time.RFC3339)

	if err := s.appendToCollection(t, created); err != nil {
		// Tracking is best-effort; the remote object exists either way
		log.Printf("WARNING: Failed to track created %s %s: %v", t, result.UID, err)
	}

	emit(onProgress, Progress{Message: fmt.Sprintf("Created %s %s", t, result.UID), Step: string(t), Percentage: 100})
	return created, nil
}

// DeleteMetadata deletes an object remotely, then prunes it from the tracked
// collection. Returns false rather than an error on failure so callers can
// decide whether a dependent UI action should proceed.
func (s *Service) DeleteMetadata(t ObjectType, remoteID string, onProgress ProgressFunc) bool {
	emit(onProgress, Progress{Message: fmt.Sprintf("Deleting %s %s...", t, remoteID), Step: string(t), Percentage: 20})

	if err := s.client.DeleteResource(t.Resource(), remoteID); err != nil && !api.IsNotFound(err) {
		log.Printf("ERROR: Failed to delete %s %s: %v", t, remoteID, err)
		return false
	}

	collection, err := s.loadCollection(t)
	if err != nil {
		log.Printf("WARNING: Failed to load tracked %s collection after delete: %v", t, err)
		return true
	}

	kept := collection[:0]
	for _, entry := range collection {
		if getStringOr(entry, "id", "") == remoteID || getStringOr(entry, "dhis2Id", "") == remoteID {
			continue
		}
		kept = append(kept, entry)
	}

	if err := s.saveCollection(t, kept); err != nil {
		log.Printf("WARNING: Failed to prune tracked %s collection: %v", t, err)
	}

	emit(onProgress, Progress{Message: fmt.Sprintf("Deleted %s %s", t, remoteID), Step: string(t), Percentage: 100})
	return true
}

// ProcessAttachments encodes files for storage and appends their metadata to
// the tracked attachment collection. Individual file failures are logged and
// skipped, never fatal to the batch.
func (s *Service) ProcessAttachments(files []AttachmentInput, ownerID, ownerType string, onProgress ProgressFunc) ([]map[string]interface{}, error) {
	processed := make([]map[string]interface{}, 0, len(files))

	for i, file := range files {
		pct := 0
		if len(files) > 0 {
			pct = 100 * (i + 1) / len(files)
		}
		emit(onProgress, Progress{Message: fmt.Sprintf("Processing attachment %s...", file.Name), Step: "attachments", Percentage: pct})

		if file.Name == "" || len(file.Data) == 0 {
			log.Printf("WARNING: Skipping empty attachment at index %d", i)
			continue
		}

		attachment := map[string]interface{}{
			"id":          uuid.New().String(),
			"name":        file.Name,
			"size":        len(file.Data),
			"contentType": orDefault(file.ContentType, "application/octet-stream"),
			"ownerId":     ownerID,
			"ownerType":   ownerType,
			"uploadedAt":  time.Now().UTC().Format(time.RFC3339),
			"data":        base64.StdEncoding.EncodeToString(file.Data),
		}

		if err := s.appendToKey(attachmentsKey, attachment); err != nil {
			log.Printf("WARNING: Failed to track attachment %s: %v", file.Name, err)
			continue
		}

		processed = append(processed, attachment)
	}

	return processed, nil
}

// CreateMetadataPackage creates a bundle in strict dependency order:
// category options, categories, category combos, data elements, datasets,
// attachments. Later types reference earlier types' IDs, so no parallel
// creation across types. Per-item failures are accumulated, never thrown.
func (s *Service) CreateMetadataPackage(pkg Package, onProgress ProgressFunc) *PackageResult {
	result := &PackageResult{
		Created: make(map[ObjectType][]map[string]interface{}),
		Errors:  []string{},
	}

	stages := []struct {
		t     ObjectType
		items []map[string]interface{}
	}{
		{TypeCategoryOption, pkg.CategoryOptions},
		{TypeCategory, pkg.Categories},
		{TypeCategoryCombo, pkg.CategoryCombos},
		{TypeDataElement, pkg.DataElements},
		{TypeDataset, pkg.Datasets},
	}

	total := len(pkg.Attachments)
	for _, stage := range stages {
		total += len(stage.items)
	}
	done := 0

	for _, stage := range stages {
		for _, item := range stage.items {
			created, err := s.createObject(item, stage.t, nil)
			done++
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				log.Printf("WARNING: Package item failed, continuing: %v", err)
			} else {
				result.Created[stage.t] = append(result.Created[stage.t], created)
			}
			emitPackageProgress(onProgress, stage.t, done, total)
		}
	}

	if len(pkg.Attachments) > 0 {
		attachments, err := s.ProcessAttachments(pkg.Attachments, pkg.OwnerID, "metadataPackage", nil)
		done += len(pkg.Attachments)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
		for _, a := range attachments {
			result.Created["attachment"] = append(result.Created["attachment"], a)
		}
		emitPackageProgress(onProgress, "attachment", done, total)
	}

	result.Success = len(result.Errors) == 0
	return result
}

// Tracked collection plumbing: load existing, append, save back.

func collectionKey(t ObjectType) string {
	return "createdMetadata_" + t.Resource()
}

func (s *Service) loadCollection(t ObjectType) ([]map[string]interface{}, error) {
	return s.loadKey(collectionKey(t))
}

func (s *Service) loadKey(key string) ([]map[string]interface{}, error) {
	var collection []map[string]interface{}
	err := s.store.Get(s.ctx, s.namespace, key, &collection)
	if api.IsNotFound(err) {
		return []map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	return collection, nil
}

func (s *Service) saveCollection(t ObjectType, collection []map[string]interface{}) error {
	return datastore.Upsert(s.ctx, s.store, s.namespace, collectionKey(t), collection)
}

func (s *Service) appendToCollection(t ObjectType, entry map[string]interface{}) error {
	return s.appendToKey(collectionKey(t), entry)
}

func (s *Service) appendToKey(key string, entry map[string]interface{}) error {
	collection, err := s.loadKey(key)
	if err != nil {
		return err
	}
	collection = append(collection, entry)
	return datastore.Upsert(s.ctx, s.store, s.namespace, key, collection)
}

// Utility functions

func emit(onProgress ProgressFunc, p Progress) {
	if onProgress != nil {
		onProgress(p)
	}
}

func emitPackageProgress(onProgress ProgressFunc, t ObjectType, done, total int) {
	if onProgress == nil || total == 0 {
		return
	}
	onProgress(Progress{
		Message:    fmt.Sprintf("Created %d/%d package objects", done, total),
		Step:       string(t),
		Percentage: 100 * done / total,
	})
}

func (s *Service) nextID() string {
	ids, err := s.client.GenerateIDs(1)
	if err != nil || len(ids) == 0 {
		return api.GenerateLocalUID()
	}
	return ids[0]
}

func getStringOr(m map[string]interface{}, key, defaultVal string) string {
	if val, ok := m[key].(string); ok && val != "" {
		return val
	}
	return defaultVal
}

func setDefault(m map[string]interface{}, key string, value interface{}) {
	if existing, ok := m[key]; !ok || existing == nil || existing == "" {
		m[key] = value
	}
}

func orDefault(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// refList extracts a reference list regardless of whether entries are bare
// ID strings or {id} objects
func refList(val interface{}) []interface{} {
	switch v := val.(type) {
	case []interface{}:
		return v
	case []map[string]interface{}:
		out := make([]interface{}, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// normalizeRefs converts bare ID strings in a reference list to {id} objects
func normalizeRefs(val interface{}) []map[string]interface{} {
	entries := refList(val)
	out := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		if ref := normalizeRef(entry); ref != nil {
			out = append(out, ref)
		}
	}
	return out
}

func normalizeRef(val interface{}) map[string]interface{} {
	switch v := val.(type) {
	case string:
		if v == "" {
			return nil
		}
		return map[string]interface{}{"id": v}
	case map[string]interface{}:
		if getStringOr(v, "id", "") == "" {
			return nil
		}
		return map[string]interface{}{"id": v["id"]}
	default:
		return nil
	}
}
