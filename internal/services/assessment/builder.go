// Package assessment owns the assessment document: the builder composes the
// canonical nested shape from raw user input, normalization migrates legacy
// documents forward, and the repository persists documents plus their
// secondary index in the dataStore.
package assessment

import (
	"time"

	"github.com/google/uuid"

	"dqa360-backend/internal/config"
	"dqa360-backend/internal/models"
)

// DefaultQualityDimensions is the fallback pair every assessment carries
// when the user selected none
var DefaultQualityDimensions = []string{"completeness", "timeliness"}

// Builder composes canonical assessment documents. Pure transformation: no
// I/O, arbitrary/partial input maps in, a fully defaulted document out.
// Malformed list entries (non-objects, missing id) are filtered defensively;
// deduplication of IDs is the caller's responsibility.
type Builder struct {
	PublicAccess   string // sharing default stamped on nested elements
	ExternalAccess bool
	Clock          func() time.Time
}

// NewBuilder creates a builder using the configured sharing defaults
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{
		PublicAccess:   cfg.SharingPublicAccess,
		ExternalAccess: cfg.SharingExternalAccess,
		Clock:          time.Now,
	}
}

// Build produces the canonical nested document from raw input. Every
// documented field of the output is present and defaulted; absence of user
// input never produces a missing field.
func (b *Builder) Build(
	rawInfo map[string]interface{},
	dhis2Config map[string]interface{},
	datasets []map[string]interface{},
	dataElements []map[string]interface{},
	orgUnits []map[string]interface{},
	orgUnitMappings []map[string]interface{},
	localDatasets []map[string]interface{},
	actor string,
) *models.Assessment {
	if rawInfo == nil {
		rawInfo = map[string]interface{}{}
	}
	now := b.Clock().UTC().Format(time.RFC3339)

	id := getString(rawInfo, "id")
	if id == "" {
		id = uuid.New().String()
	}

	connection := buildConnectionInfo(dhis2Config)

	metadataSource := "manual"
	if connection.BaseURL != "" {
		metadataSource = "dhis2"
	}

	elements := b.buildDataElements(dataElements)
	units := buildOrgUnits(orgUnits)

	doc := &models.Assessment{
		ID:             id,
		Version:        SchemaVersion,
		Structure:      StructureNested,
		CreatedAt:      now,
		LastUpdated:    now,
		MetadataSource: metadataSource,
		Info:           b.buildInfo(rawInfo, actor, now),
		LocalDatasets:  b.buildLocalDatasets(localDatasets, now),
	}

	doc.Info.Dhis2Config = &models.Dhis2Config{
		Info:             connection,
		DatasetsSelected: b.buildSelectedDatasets(datasets, elements, units),
		OrgUnitMapping:   buildOrgUnitMappings(orgUnitMappings),
	}

	return doc
}

func (b *Builder) buildInfo(raw map[string]interface{}, actor, now string) models.Info {
	dimensions := getStringSlice(raw, "dataQualityDimensions")
	if len(dimensions) == 0 {
		dimensions = append([]string(nil), DefaultQualityDimensions...)
	}
	qualityDimensions := getStringSlice(raw, "dataDimensionsQuality")
	if len(qualityDimensions) == 0 {
		qualityDimensions = append([]string(nil), dimensions...)
	}

	return models.Info{
		Name:                  getString(raw, "name"),
		Description:           getString(raw, "description"),
		AssessmentType:        getStringOr(raw, "assessmentType", "baseline"),
		Priority:              getStringOr(raw, "priority", "medium"),
		Methodology:           getStringOr(raw, "methodology", "automated"),
		Frequency:             getStringOr(raw, "frequency", "monthly"),
		ReportingLevel:        getStringOr(raw, "reportingLevel", "facility"),
		StartDate:             getString(raw, "startDate"),
		EndDate:               getString(raw, "endDate"),
		Period:                getString(raw, "period"),
		Status:                getStringOr(raw, "status", "draft"),
		DataQualityDimensions: dimensions,
		DataDimensionsQuality: qualityDimensions,
		Stakeholders:          getStringSlice(raw, "stakeholders"),
		RiskFactors:           getStringSlice(raw, "riskFactors"),
		SuccessCriteria:       getString(raw, "successCriteria"),
		ConfidentialityLevel:  getStringOr(raw, "confidentialityLevel", "internal"),
		DataRetentionPeriod:   getStringOr(raw, "dataRetentionPeriod", "5years"),
		AutoSync:              getBool(raw, "autoSync", true),
		ValidationAlerts:      getBool(raw, "validationAlerts", true),
		HistoricalComparison:  getBool(raw, "historicalComparison", false),
		CreatedBy:             orString(getString(raw, "createdBy"), actor),
		LastModifiedBy:        actor,
		SMSConfig:             buildSMSConfig(asMap(raw["smsConfig"])),
	}
}

func buildConnectionInfo(cfg map[string]interface{}) models.ConnectionInfo {
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	// Connection details may sit at the top level or under "info"
	if nested := asMap(cfg["info"]); nested != nil {
		cfg = nested
	}

	info := models.ConnectionInfo{
		BaseURL:          getString(cfg, "baseUrl"),
		Username:         getString(cfg, "username"),
		Password:         getString(cfg, "password"),
		Connected:        getBool(cfg, "connected", false),
		ConnectionStatus: getStringOr(cfg, "connectionStatus", "unknown"),
		LastTested:       getString(cfg, "lastTested"),
		InstanceName:     getString(cfg, "instanceName"),
		Version:          getString(cfg, "version"),
		APIVersion:       getString(cfg, "apiVersion"),
		Timeout:          getInt(cfg, "timeout", 30000),
	}

	// Never assume a connection: configured is derived, connected only ever
	// comes from an actual test
	info.Configured = info.BaseURL != "" && info.Username != "" && info.Password != ""
	return info
}

func (b *Builder) buildSelectedDatasets(datasets []map[string]interface{}, elements []models.DataElement, units []models.OrganisationUnit) []models.SelectedDataset {
	selected := make([]models.SelectedDataset, 0, len(datasets))

	for _, ds := range datasets {
		if getString(ds, "id") == "" {
			continue
		}

		entry := models.SelectedDataset{
			Info: models.DatasetInfo{
				ID:          getString(ds, "id"),
				Name:        getString(ds, "name"),
				Code:        getString(ds, "code"),
				DisplayName: orString(getString(ds, "displayName"), getString(ds, "name")),
				Description: getString(ds, "description"),
				PeriodType:  getStringOr(ds, "periodType", "Monthly"),
				CategoryCombo: models.ObjectRef{
					ID:   refID(ds["categoryCombo"]),
					Name: refName(ds["categoryCombo"]),
				},
			},
		}

		// A dataset carrying its own sub-lists keeps them; otherwise the
		// globally selected elements and org units are attached
		if own := mapList(ds["dataElements"]); len(own) > 0 {
			entry.DataElements = b.buildDataElements(own)
		} else {
			entry.DataElements = append([]models.DataElement(nil), elements...)
		}
		if own := mapList(ds["organisationUnits"]); len(own) > 0 {
			entry.OrganisationUnits = buildOrgUnits(own)
		} else {
			entry.OrganisationUnits = append([]models.OrganisationUnit(nil), units...)
		}

		selected = append(selected, entry)
	}

	return selected
}

func (b *Builder) buildDataElements(raw []map[string]interface{}) []models.DataElement {
	elements := make([]models.DataElement, 0, len(raw))
	for _, el := range raw {
		if getString(el, "id") == "" {
			continue
		}
		name := getString(el, "name")
		elements = append(elements, models.DataElement{
			ID:                getString(el, "id"),
			Name:              name,
			Code:              getString(el, "code"),
			DisplayName:       orString(getString(el, "displayName"), name),
			ShortName:         orString(getString(el, "shortName"), name),
			FormName:          orString(getString(el, "formName"), name),
			ValueType:         getStringOr(el, "valueType", "TEXT"),
			AggregationType:   getStringOr(el, "aggregationType", "SUM"),
			DomainType:        getStringOr(el, "domainType", "AGGREGATE"),
			CategoryCombo:     models.ObjectRef{ID: refID(el["categoryCombo"]), Name: refName(el["categoryCombo"])},
			ZeroIsSignificant: getBool(el, "zeroIsSignificant", false),
			PublicAccess:      getStringOr(el, "publicAccess", b.PublicAccess),
			ExternalAccess:    getBool(el, "externalAccess", b.ExternalAccess),
		})
	}
	return elements
}

func buildOrgUnits(raw []map[string]interface{}) []models.OrganisationUnit {
	units := make([]models.OrganisationUnit, 0, len(raw))
	for _, ou := range raw {
		if getString(ou, "id") == "" {
			continue
		}
		units = append(units, buildOrgUnit(ou))
	}
	return units
}

func buildOrgUnit(ou map[string]interface{}) models.OrganisationUnit {
	name := getString(ou, "name")
	return models.OrganisationUnit{
		ID:          getString(ou, "id"),
		Name:        name,
		Code:        getString(ou, "code"),
		DisplayName: orString(getString(ou, "displayName"), name),
		Level:       getInt(ou, "level", 0),
		Path:        getString(ou, "path"),
		ParentID:    refID(ou["parent"]),
	}
}

// buildOrgUnitMappings keeps only entries explicitly marked mapped
func buildOrgUnitMappings(raw []map[string]interface{}) []models.OrgUnitMapping {
	mappings := make([]models.OrgUnitMapping, 0, len(raw))
	for _, m := range raw {
		if getString(m, "status") != "mapped" {
			continue
		}
		external := asMap(m["external"])
		remote := asMap(m["dhis2"])
		if external == nil || remote == nil {
			continue
		}
		mappings = append(mappings, models.OrgUnitMapping{
			External:    buildOrgUnit(external),
			Dhis2:       buildOrgUnit(remote),
			MappingType: getStringOr(m, "mappingType", "manual"),
			Confidence:  getFloat(m, "confidence", 1.0),
			Status:      "mapped",
		})
	}
	return mappings
}

func (b *Builder) buildLocalDatasets(raw []map[string]interface{}, now string) []models.LocalDataset {
	datasets := make([]models.LocalDataset, 0, len(raw))
	for _, ds := range raw {
		info := asMap(ds["info"])
		if info == nil {
			info = ds
		}
		if getString(info, "id") == "" {
			continue
		}

		entry := models.LocalDataset{
			Info: models.LocalDatasetInfo{
				ID:          getString(info, "id"),
				Name:        getString(info, "name"),
				Code:        getString(info, "code"),
				ShortName:   orString(getString(info, "shortName"), getString(info, "name")),
				PeriodType:  getStringOr(info, "periodType", "Monthly"),
				DatasetType: getStringOr(info, "datasetType", "register"),
				Status:      getStringOr(info, "status", "draft"),
				IsLocal:     getBool(info, "isLocal", false),
				CreatedAt:   orString(getString(info, "createdAt"), now),
				URL:         getString(info, "url"),
			},
			DataElements: b.buildDataElements(mapList(ds["dataElements"])),
			OrgUnits:     buildOrgUnits(mapList(ds["orgUnits"])),
			SharingSettings: models.SharingSettings{
				PublicAccess:   b.PublicAccess,
				ExternalAccess: b.ExternalAccess,
			},
			SMSConfig: buildDatasetSMSConfig(asMap(ds["smsConfig"])),
		}

		if dhis2ID := getString(info, "dhis2Id"); dhis2ID != "" {
			entry.Info.Dhis2ID = &dhis2ID
		}

		datasets = append(datasets, entry)
	}
	return datasets
}

// buildSMSConfig returns a complete SMS template. The disabled default keeps
// both the legacy (emptyCodesMessage) and extended (commandOnlyMessage)
// message keys populated.
func buildSMSConfig(raw map[string]interface{}) *models.SMSConfig {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return &models.SMSConfig{
		Enabled:                   getBool(raw, "enabled", false),
		CommandName:               getString(raw, "commandName"),
		Keyword:                   getString(raw, "keyword"),
		Separator:                 getStringOr(raw, "separator", ","),
		SuccessMessage:            getStringOr(raw, "successMessage", "Report received, thank you."),
		WrongFormatMessage:        getStringOr(raw, "wrongFormatMessage", "Wrong format. Please check and resend."),
		NoUserMessage:             getStringOr(raw, "noUserMessage", "Phone number not registered."),
		MoreThanOneOrgUnitMessage: getStringOr(raw, "moreThanOneOrgUnitMessage", "Phone number linked to more than one facility."),
		NoCodesMessage:            getStringOr(raw, "noCodesMessage", "No codes found in the message."),
		EmptyCodesMessage:         getStringOr(raw, "emptyCodesMessage", "No values supplied for the given codes."),
		CommandOnlyMessage:        getStringOr(raw, "commandOnlyMessage", "Command received without any values."),
		DefaultMessage:            getStringOr(raw, "defaultMessage", "Message received."),
	}
}

func buildDatasetSMSConfig(raw map[string]interface{}) *models.DatasetSMSConfig {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return &models.DatasetSMSConfig{
		Enabled:     getBool(raw, "enabled", false),
		CommandName: getString(raw, "commandName"),
		Separator:   getStringOr(raw, "separator", ","),
	}
}
