// Package toolset materializes the four data-collection tool datasets of an
// assessment on the remote DHIS2 instance. Creation never fails as a whole:
// each variant either ends up created remotely or recorded as a local
// fallback, and the result carries the per-variant outcomes.
package toolset

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"dqa360-backend/internal/api"
	"dqa360-backend/internal/config"
	"dqa360-backend/internal/models"
	"dqa360-backend/internal/services/assessment"
	"dqa360-backend/internal/services/bootstrap"
	"dqa360-backend/internal/services/metadata"
)

// Variant is one of the four dataset flavors created per assessment
type Variant struct {
	Type       string // datasetType stored on the local record
	Label      string
	CodeSuffix string
}

// Variants in creation order
var Variants = []Variant{
	{Type: "register", Label: "Register", CodeSuffix: "REG"},
	{Type: "summary", Label: "Summary", CodeSuffix: "SUM"},
	{Type: "reported", Label: "Reported", CodeSuffix: "RPT"},
	{Type: "corrected", Label: "Corrected", CodeSuffix: "COR"},
}

// Result is the outcome of one toolset creation run
type Result struct {
	Success         bool                  `json:"success"`
	CreatedDatasets []models.LocalDataset `json:"createdDatasets"`
	Errors          []string              `json:"errors"`
	Summary         Summary               `json:"summary"`
}

// Summary counts the per-variant remote outcomes. Local fallbacks count as
// Failed here even though they still satisfy the run overall.
type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Service creates assessment tool datasets through the metadata factory,
// leaning on the bootstrapper for a usable category combo and on the
// repository to persist the resulting local records.
type Service struct {
	client       api.MetadataClient
	factory      *metadata.Service
	bootstrap    *bootstrap.Service
	repo         *assessment.Repository
	publicAccess string
}

// NewService wires the toolset creator
func NewService(client api.MetadataClient, factory *metadata.Service, boot *bootstrap.Service, repo *assessment.Repository, cfg *config.Config) *Service {
	return &Service{
		client:       client,
		factory:      factory,
		bootstrap:    boot,
		repo:         repo,
		publicAccess: cfg.SharingPublicAccess,
	}
}

// CreateAssessmentTools creates all four dataset variants for an assessment
// and appends the resulting records to its localDatasetsCreated list. An
// error is returned only when a prerequisite fails (missing or unnamed
// assessment, no client, nothing selected to build from); individual variant
// failures degrade to local fallback records and are reported in the result
// instead.
func (s *Service) CreateAssessmentTools(ctx context.Context, assessmentID string, onProgress metadata.ProgressFunc) (*Result, error) {
	if s.client == nil {
		return nil, fmt.Errorf("cannot create assessment tools: no DHIS2 client configured")
	}

	a, err := s.repo.Get(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("cannot create assessment tools: assessment %s not found", assessmentID)
	}
	if a.Info.Name == "" {
		return nil, fmt.Errorf("cannot create assessment tools: assessment %s has no name", assessmentID)
	}
	if len(a.Info.Dhis2Config.DatasetsSelected) == 0 {
		return nil, fmt.Errorf("cannot create assessment tools: assessment %s has no datasets selected", assessmentID)
	}
	orgUnits := collectOrgUnits(a)
	if len(orgUnits) == 0 {
		return nil, fmt.Errorf("cannot create assessment tools: assessment %s has no organisation units selected", assessmentID)
	}

	emit(onProgress, "Collecting data elements...", "prepare", 5)

	result := &Result{
		CreatedDatasets: []models.LocalDataset{},
		Errors:          []string{},
		Summary:         Summary{Total: len(Variants)},
	}

	elements := collectElements(a)
	comboID := s.ensureCombo(elements, result)
	elements = s.verifyElements(elements, comboID, result, onProgress)
	if len(elements) == 0 {
		elements = s.syntheticElements(a.Info.Name, comboID, result, onProgress)
	}

	stamp := time.Now().Unix()
	for i, v := range Variants {
		emit(onProgress, fmt.Sprintf("Creating %s tool...", v.Label), v.Type, 20+i*20)
		record := s.createVariant(a, v, elements, orgUnits, comboID, stamp, result, onProgress)
		result.CreatedDatasets = append(result.CreatedDatasets, record)
		a.LocalDatasets = append(a.LocalDatasets, record)
	}

	result.Summary.Failed = result.Summary.Total - result.Summary.Successful
	// A local fallback record is still a usable tool, so the run as a whole
	// succeeds as long as any variant produced a record, remote or local.
	result.Success = len(result.CreatedDatasets) > 0

	if _, err := s.repo.Save(ctx, a); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to persist tool records: %v", err))
	}

	emit(onProgress, fmt.Sprintf("Created %d/%d tools", result.Summary.Successful, result.Summary.Total), "done", 100)
	return result, nil
}

// createVariant attempts the remote create with one rename retry on a name
// or code conflict, then falls back to a local record
func (s *Service) createVariant(a *models.Assessment, v Variant, elements []models.DataElement, orgUnits []models.OrganisationUnit, comboID string, stamp int64, result *Result, onProgress metadata.ProgressFunc) models.LocalDataset {
	name := fmt.Sprintf("%s - %s (%d)", a.Info.Name, v.Label, stamp)
	code := fmt.Sprintf("DQA_%s_%d", v.CodeSuffix, stamp)

	var created map[string]interface{}
	attempt := 0
	err := retryPolicy{
		maxAttempts: 2,
		shouldRetry: api.IsConflict,
		beforeRetry: func(_ int, retryErr error) {
			// Identifiers already taken remotely; mutate and try once more
			attempt++
			name = fmt.Sprintf("%s - %s (%d_%d)", a.Info.Name, v.Label, stamp, attempt)
			code = fmt.Sprintf("DQA_%s_%d_%d", v.CodeSuffix, stamp, attempt)
			log.Printf("WARNING: %s tool conflicts with existing metadata, retrying as %q: %v", v.Label, name, retryErr)
		},
	}.run(func() error {
		var createErr error
		created, createErr = s.factory.CreateDataset(s.datasetPayload(name, code, elements, orgUnits, comboID), onProgress)
		return createErr
	})

	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s tool: %v", v.Label, err))
		log.Printf("WARNING: %s tool creation failed, recording local fallback: %v", v.Label, err)
		return s.localFallback(a, v, name, code, elements, orgUnits)
	}

	result.Summary.Successful++
	uid, _ := created["dhis2Id"].(string)

	record := models.LocalDataset{
		Info: models.LocalDatasetInfo{
			ID:          uid,
			Name:        name,
			Code:        code,
			ShortName:   truncate(name, 50),
			PeriodType:  "Monthly",
			DatasetType: v.Type,
			Dhis2ID:     &uid,
			Status:      "created",
			IsLocal:     false,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		},
		DataElements:    elements,
		OrgUnits:        orgUnits,
		SharingSettings: models.SharingSettings{PublicAccess: s.publicAccess},
		SMSConfig:       &models.DatasetSMSConfig{Separator: ","},
	}
	if base := a.Info.Dhis2Config.Info.BaseURL; base != "" && uid != "" {
		record.Info.URL = fmt.Sprintf("%s/api/dataSets/%s", strings.TrimSuffix(base, "/"), uid)
	}
	return record
}

func (s *Service) localFallback(a *models.Assessment, v Variant, name, code string, elements []models.DataElement, orgUnits []models.OrganisationUnit) models.LocalDataset {
	return models.LocalDataset{
		Info: models.LocalDatasetInfo{
			ID:          api.GenerateLocalUID(),
			Name:        name,
			Code:        code,
			ShortName:   truncate(name, 50),
			PeriodType:  "Monthly",
			DatasetType: v.Type,
			Dhis2ID:     nil,
			Status:      "local",
			IsLocal:     true,
			CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		},
		DataElements:    elements,
		OrgUnits:        orgUnits,
		SharingSettings: models.SharingSettings{PublicAccess: s.publicAccess},
		SMSConfig:       &models.DatasetSMSConfig{Separator: ","},
	}
}

func (s *Service) datasetPayload(name, code string, elements []models.DataElement, orgUnits []models.OrganisationUnit, comboID string) map[string]interface{} {
	dataSetElements := make([]interface{}, 0, len(elements))
	for _, el := range elements {
		dataSetElements = append(dataSetElements, map[string]interface{}{
			"dataElement": map[string]interface{}{"id": el.ID},
		})
	}
	units := make([]interface{}, 0, len(orgUnits))
	for _, ou := range orgUnits {
		units = append(units, map[string]interface{}{"id": ou.ID})
	}

	payload := map[string]interface{}{
		"name":              name,
		"code":              code,
		"shortName":         truncate(name, 50),
		"periodType":        "Monthly",
		"dataSetElements":   dataSetElements,
		"organisationUnits": units,
		"publicAccess":      s.publicAccess,
	}
	if comboID != "" {
		payload["categoryCombo"] = map[string]interface{}{"id": comboID}
	}
	return payload
}

// ensureCombo resolves a usable category combo through the bootstrapper.
// Failure is recorded but not fatal; datasets are then created without an
// explicit combo and the instance default applies.
func (s *Service) ensureCombo(elements []models.DataElement, result *Result) string {
	requested := ""
	for _, el := range elements {
		if el.CategoryCombo.ID != "" {
			requested = el.CategoryCombo.ID
			break
		}
	}
	comboID, err := s.bootstrap.EnsureCategoryComboExists(requested)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("category combo unavailable: %v", err))
		log.Printf("WARNING: proceeding without an explicit category combo: %v", err)
		return ""
	}
	return comboID
}

// verifyElements checks each selected element still exists remotely and
// recreates the missing ones through the factory. Elements that can be
// neither found nor recreated are dropped from the dataset.
func (s *Service) verifyElements(elements []models.DataElement, comboID string, result *Result, onProgress metadata.ProgressFunc) []models.DataElement {
	verified := make([]models.DataElement, 0, len(elements))
	for _, el := range elements {
		_, err := s.client.GetResource("dataElements", el.ID, "id")
		if err == nil {
			verified = append(verified, el)
			continue
		}
		if !api.IsNotFound(err) {
			// Transient lookup failure; keep the element and let the dataset
			// create surface any real problem
			log.Printf("WARNING: could not verify data element %s: %v", el.ID, err)
			verified = append(verified, el)
			continue
		}

		emit(onProgress, fmt.Sprintf("Recreating missing data element %s...", el.Name), "dataElement", 15)
		created, createErr := s.factory.CreateDataElement(s.elementPayload(el, comboID), onProgress)
		if createErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("data element %s missing and could not be recreated: %v", el.ID, createErr))
			continue
		}
		if uid, ok := created["dhis2Id"].(string); ok && uid != "" {
			el.ID = uid
		}
		verified = append(verified, el)
	}
	return verified
}

// syntheticElements creates two numeric placeholder elements so a tool
// dataset is never created empty
func (s *Service) syntheticElements(assessmentName, comboID string, result *Result, onProgress metadata.ProgressFunc) []models.DataElement {
	stamp := time.Now().Unix()
	elements := []models.DataElement{}
	for i := 1; i <= 2; i++ {
		el := models.DataElement{
			Name:            fmt.Sprintf("%s Indicator %d", assessmentName, i),
			Code:            fmt.Sprintf("DQA_IND_%d_%d", i, stamp),
			ValueType:       "INTEGER_ZERO_OR_POSITIVE",
			AggregationType: "SUM",
			DomainType:      "AGGREGATE",
		}
		el.ShortName = truncate(el.Name, 50)
		created, err := s.factory.CreateDataElement(s.elementPayload(el, comboID), onProgress)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("fallback data element %d: %v", i, err))
			continue
		}
		if uid, ok := created["dhis2Id"].(string); ok {
			el.ID = uid
		}
		elements = append(elements, el)
	}
	return elements
}

func (s *Service) elementPayload(el models.DataElement, comboID string) map[string]interface{} {
	payload := map[string]interface{}{
		"name":            el.Name,
		"code":            el.Code,
		"shortName":       orDefault(el.ShortName, truncate(el.Name, 50)),
		"valueType":       orDefault(el.ValueType, "TEXT"),
		"aggregationType": orDefault(el.AggregationType, "SUM"),
		"domainType":      orDefault(el.DomainType, "AGGREGATE"),
	}
	if el.ID != "" {
		payload["id"] = el.ID
	}
	if comboID != "" {
		payload["categoryCombo"] = map[string]interface{}{"id": comboID}
	}
	return payload
}

// collectElements flattens the selected datasets' elements, deduplicated by
// ID in first-seen order
func collectElements(a *models.Assessment) []models.DataElement {
	seen := map[string]bool{}
	elements := []models.DataElement{}
	for _, ds := range a.Info.Dhis2Config.DatasetsSelected {
		for _, el := range ds.DataElements {
			if el.ID == "" || seen[el.ID] {
				continue
			}
			seen[el.ID] = true
			elements = append(elements, el)
		}
	}
	return elements
}

// collectOrgUnits prefers the mapped org units, falling back to the selected
// datasets' own lists
func collectOrgUnits(a *models.Assessment) []models.OrganisationUnit {
	seen := map[string]bool{}
	units := []models.OrganisationUnit{}
	for _, m := range a.Info.Dhis2Config.OrgUnitMapping {
		if m.Dhis2.ID == "" || seen[m.Dhis2.ID] {
			continue
		}
		seen[m.Dhis2.ID] = true
		units = append(units, m.Dhis2)
	}
	if len(units) > 0 {
		return units
	}
	for _, ds := range a.Info.Dhis2Config.DatasetsSelected {
		for _, ou := range ds.OrganisationUnits {
			if ou.ID == "" || seen[ou.ID] {
				continue
			}
			seen[ou.ID] = true
			units = append(units, ou)
		}
	}
	return units
}

func emit(onProgress metadata.ProgressFunc, message, step string, percentage int) {
	if onProgress != nil {
		onProgress(metadata.Progress{Message: message, Step: step, Percentage: percentage})
	}
}

func orDefault(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
