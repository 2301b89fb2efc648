package assessment

import (
	"strings"

	"dqa360-backend/internal/api"
	"dqa360-backend/internal/models"
)

const (
	// SchemaVersion is the canonical document schema version
	SchemaVersion = "3.0.0"
	// StructureNested marks the canonical nested document shape
	StructureNested = "nested"
)

// Normalize migrates a document to the canonical nested shape in place and
// returns it. It runs on every read and before every write, so documents
// written by older releases converge without a migration pass: the legacy
// root-level Dhis2config moves under Info (the nested one wins when both
// exist), missing defaults are filled, and the version and structure fields
// are stamped. Normalizing an already canonical document changes nothing.
func Normalize(a *models.Assessment) *models.Assessment {
	if a == nil {
		return nil
	}

	a.Version = SchemaVersion
	a.Structure = StructureNested

	if a.Info.Dhis2Config == nil && a.LegacyDhis2Config != nil {
		a.Info.Dhis2Config = a.LegacyDhis2Config
	}
	// omitempty drops the legacy key on the next write
	a.LegacyDhis2Config = nil

	if a.Info.Dhis2Config == nil {
		a.Info.Dhis2Config = &models.Dhis2Config{}
	}
	cfg := a.Info.Dhis2Config
	if cfg.DatasetsSelected == nil {
		cfg.DatasetsSelected = []models.SelectedDataset{}
	}
	if cfg.OrgUnitMapping == nil {
		cfg.OrgUnitMapping = []models.OrgUnitMapping{}
	}
	info := &cfg.Info
	info.Configured = info.BaseURL != "" && info.Username != "" && info.Password != ""

	if a.MetadataSource == "" {
		if info.BaseURL != "" {
			a.MetadataSource = "dhis2"
		} else {
			a.MetadataSource = "manual"
		}
	}

	if len(a.Info.DataQualityDimensions) == 0 {
		a.Info.DataQualityDimensions = append([]string(nil), DefaultQualityDimensions...)
	}
	if len(a.Info.DataDimensionsQuality) == 0 {
		a.Info.DataDimensionsQuality = append([]string(nil), a.Info.DataQualityDimensions...)
	}
	if a.Info.Stakeholders == nil {
		a.Info.Stakeholders = []string{}
	}
	if a.Info.RiskFactors == nil {
		a.Info.RiskFactors = []string{}
	}
	if a.Info.SMSConfig == nil {
		a.Info.SMSConfig = buildSMSConfig(nil)
	}

	for i := range cfg.DatasetsSelected {
		normalizeDataElements(cfg.DatasetsSelected[i].DataElements)
		if cfg.DatasetsSelected[i].DataElements == nil {
			cfg.DatasetsSelected[i].DataElements = []models.DataElement{}
		}
		if cfg.DatasetsSelected[i].OrganisationUnits == nil {
			cfg.DatasetsSelected[i].OrganisationUnits = []models.OrganisationUnit{}
		}
	}

	if a.LocalDatasets == nil {
		a.LocalDatasets = []models.LocalDataset{}
	}
	for i := range a.LocalDatasets {
		ds := &a.LocalDatasets[i]
		if ds.SMSConfig == nil {
			ds.SMSConfig = buildDatasetSMSConfig(nil)
		}
		if ds.DataElements == nil {
			ds.DataElements = []models.DataElement{}
		}
		if ds.OrgUnits == nil {
			ds.OrgUnits = []models.OrganisationUnit{}
		}
		normalizeDataElements(ds.DataElements)
	}

	return a
}

func normalizeDataElements(elements []models.DataElement) {
	for i := range elements {
		el := &elements[i]
		if el.ValueType == "" {
			el.ValueType = "TEXT"
		}
		if el.AggregationType == "" {
			el.AggregationType = "SUM"
		}
		if el.DomainType == "" {
			el.DomainType = "AGGREGATE"
		}
		if el.DisplayName == "" {
			el.DisplayName = el.Name
		}
		if el.ShortName == "" {
			el.ShortName = el.Name
		}
	}
}

// RepairLocalDatasets fixes local dataset records stuck with a created or
// completed status but no DHIS2 ID: each gets a generated local ID and is
// re-flagged "local". Records already marked local, and drafts, are left
// alone. Returns true when anything changed.
func RepairLocalDatasets(a *models.Assessment) bool {
	changed := false
	for i := range a.LocalDatasets {
		info := &a.LocalDatasets[i].Info
		if info.Dhis2ID != nil {
			continue
		}
		if info.Status != "created" && info.Status != "completed" {
			continue
		}
		localID := "local_" + api.GenerateLocalUID()
		info.Dhis2ID = &localID
		info.Status = "local"
		info.IsLocal = true
		changed = true
	}
	return changed
}

// KeyFor maps an assessment ID to its dataStore key. IDs already carrying
// the prefix are used as-is so callers can pass either form.
func KeyFor(id string) string {
	if strings.HasPrefix(id, KeyPrefix) {
		return id
	}
	return KeyPrefix + id
}
