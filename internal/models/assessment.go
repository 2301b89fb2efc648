package models

// Assessment is the root document for one data-quality-assessment exercise,
// stored in the dataStore under "assessment_<id>". The canonical shape is
// version 3.0.0 / structure "nested": the DHIS2 configuration lives under
// Info.Dhis2config. Pre-3.0 documents carried it at the document root; that
// legacy field is retained here only so normalization can migrate it, and
// omitempty removes it on the next write.
type Assessment struct {
	ID             string `json:"id"`
	Version        string `json:"version"`   // "3.0.0"
	Structure      string `json:"structure"` // "nested"
	CreatedAt      string `json:"createdAt"`
	LastUpdated    string `json:"lastUpdated"`
	MetadataSource string `json:"metadataSource"` // "dhis2" or "manual"
	Info           Info   `json:"Info"`

	// Legacy pre-3.0 location of the DHIS2 configuration. Never written back.
	LegacyDhis2Config *Dhis2Config `json:"Dhis2config,omitempty"`

	LocalDatasets []LocalDataset `json:"localDatasetsCreated"`
}

// Info is the schema-defaulted attribute bag of an assessment
type Info struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	AssessmentType        string   `json:"assessmentType"`
	Priority              string   `json:"priority"`
	Methodology           string   `json:"methodology"`
	Frequency             string   `json:"frequency"`
	ReportingLevel        string   `json:"reportingLevel"`
	StartDate             string   `json:"startDate"`
	EndDate               string   `json:"endDate"`
	Period                string   `json:"period"`
	Status                string   `json:"status"`
	DataQualityDimensions []string `json:"dataQualityDimensions"`
	DataDimensionsQuality []string `json:"dataDimensionsQuality"`
	Stakeholders          []string `json:"stakeholders"`
	RiskFactors           []string `json:"riskFactors"`
	SuccessCriteria       string   `json:"successCriteria"`
	ConfidentialityLevel  string   `json:"confidentialityLevel"`
	DataRetentionPeriod   string   `json:"dataRetentionPeriod"`
	AutoSync              bool     `json:"autoSync"`
	ValidationAlerts      bool     `json:"validationAlerts"`
	HistoricalComparison  bool     `json:"historicalComparison"`
	CreatedBy             string   `json:"createdBy"`
	LastModifiedBy        string   `json:"lastModifiedBy"`
	SMSConfig             *SMSConfig `json:"smsConfig"`

	// Canonical location of the DHIS2 configuration since 3.0.0
	Dhis2Config *Dhis2Config `json:"Dhis2config"`
}

// Dhis2Config describes the remote instance and the metadata selected from it
type Dhis2Config struct {
	Info              ConnectionInfo    `json:"info"`
	DatasetsSelected  []SelectedDataset `json:"datasetsSelected"`
	OrgUnitMapping    []OrgUnitMapping  `json:"orgUnitMapping"`
}

// ConnectionInfo is the connection descriptor for a remote DHIS2 instance.
// Configured is derived: true only when base URL, username and password are
// all present. Connected is never assumed; it reflects the last test.
type ConnectionInfo struct {
	BaseURL          string `json:"baseUrl"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	Configured       bool   `json:"configured"`
	Connected        bool   `json:"connected"`
	ConnectionStatus string `json:"connectionStatus"`
	LastTested       string `json:"lastTested"`
	InstanceName     string `json:"instanceName"`
	Version          string `json:"version"`
	APIVersion       string `json:"apiVersion"`
	Timeout          int    `json:"timeout"` // milliseconds
}

// SelectedDataset is one remote dataset selected into the assessment,
// expanded with its full element and org unit sub-lists
type SelectedDataset struct {
	Info              DatasetInfo        `json:"info"`
	DataElements      []DataElement      `json:"dataElements"`
	OrganisationUnits []OrganisationUnit `json:"organisationUnits"`
}

// DatasetInfo is the identity slice of a dataset descriptor
type DatasetInfo struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Code          string       `json:"code"`
	DisplayName   string       `json:"displayName"`
	Description   string       `json:"description"`
	PeriodType    string       `json:"periodType"`
	CategoryCombo ObjectRef    `json:"categoryCombo"`
}

// DataElement is a fully defaulted data element descriptor
type DataElement struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Code              string    `json:"code"`
	DisplayName       string    `json:"displayName"`
	ShortName         string    `json:"shortName"`
	FormName          string    `json:"formName"`
	ValueType         string    `json:"valueType"`       // default TEXT
	AggregationType   string    `json:"aggregationType"` // default SUM
	DomainType        string    `json:"domainType"`      // default AGGREGATE
	CategoryCombo     ObjectRef `json:"categoryCombo"`
	ZeroIsSignificant bool      `json:"zeroIsSignificant"`
	PublicAccess      string    `json:"publicAccess"`
	ExternalAccess    bool      `json:"externalAccess"`
}

// ObjectRef is a bare {id, name} reference to another metadata object
type ObjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// OrgUnitMapping links an external org unit descriptor to a remote one.
// Only entries with Status "mapped" are retained in the document.
type OrgUnitMapping struct {
	External    OrganisationUnit `json:"external"`
	Dhis2       OrganisationUnit `json:"dhis2"`
	MappingType string           `json:"mappingType"`
	Confidence  float64          `json:"confidence"`
	Status      string           `json:"status"`
}

// SMSConfig is the assessment-level SMS reporting configuration. The message
// map carries both the legacy key set (emptyCodesMessage) and the extended
// one (commandOnlyMessage); normalization guarantees all keys are present.
type SMSConfig struct {
	Enabled                   bool   `json:"enabled"`
	CommandName               string `json:"commandName"`
	Keyword                   string `json:"keyword"`
	Separator                 string `json:"separator"`
	SuccessMessage            string `json:"successMessage"`
	WrongFormatMessage        string `json:"wrongFormatMessage"`
	NoUserMessage             string `json:"noUserMessage"`
	MoreThanOneOrgUnitMessage string `json:"moreThanOneOrgUnitMessage"`
	NoCodesMessage            string `json:"noCodesMessage"`
	EmptyCodesMessage         string `json:"emptyCodesMessage"`  // legacy key
	CommandOnlyMessage        string `json:"commandOnlyMessage"` // extended key
	DefaultMessage            string `json:"defaultMessage"`
}

// LocalDataset is a locally tracked dataset wrapper, one of the four tool
// variants materialized (or attempted) for an assessment
type LocalDataset struct {
	Info            LocalDatasetInfo `json:"info"`
	DataElements    []DataElement    `json:"dataElements"`
	OrgUnits        []OrganisationUnit `json:"orgUnits"`
	SharingSettings SharingSettings  `json:"sharingSettings"`
	SMSConfig       *DatasetSMSConfig `json:"smsConfig"`
}

// LocalDatasetInfo holds identity, DHIS2 linkage and lifecycle status.
// Dhis2ID is nil only while Status is "draft"; the repair operation assigns
// a generated local ID to any created/completed record left with a nil ID
// and re-flags it "local".
type LocalDatasetInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	ShortName   string  `json:"shortName"`
	PeriodType  string  `json:"periodType"`
	DatasetType string  `json:"datasetType"` // register, summary, reported, corrected
	Dhis2ID     *string `json:"dhis2Id"`
	Status      string  `json:"status"` // draft, created, local
	IsLocal     bool    `json:"isLocal"`
	CreatedAt   string  `json:"createdAt"`
	URL         string  `json:"url"`
}

// SharingSettings mirrors DHIS2 sharing on a local dataset record
type SharingSettings struct {
	PublicAccess   string `json:"publicAccess"`
	ExternalAccess bool   `json:"externalAccess"`
}

// DatasetSMSConfig is the dataset-scoped SMS configuration, defaulted on
// every read so no local dataset is ever missing it
type DatasetSMSConfig struct {
	Enabled     bool   `json:"enabled"`
	CommandName string `json:"commandName"`
	Separator   string `json:"separator"`
}

// AssessmentSummary is one entry of the assessments index
type AssessmentSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	AssessmentType string `json:"assessmentType"`
	CreatedAt      string `json:"createdAt"`
	LastUpdated    string `json:"lastUpdated"`
	CreatedBy      string `json:"createdBy"`
}

// AssessmentIndex is the secondary index document ("assessments-index").
// It is a cache, not a source of truth: it must always be derivable by
// rescanning the namespace, and Partial marks a rebuild that ran under a
// timeout and may not have seen every document.
type AssessmentIndex struct {
	Assessments []AssessmentSummary `json:"assessments"`
	LastUpdated string              `json:"lastUpdated"`
	Version     string              `json:"version"`
	Structure   string              `json:"structure"`
	Partial     bool                `json:"partial,omitempty"`
}

// Summary projects an assessment into its index entry
func (a *Assessment) Summary() AssessmentSummary {
	return AssessmentSummary{
		ID:             a.ID,
		Name:           a.Info.Name,
		Status:         a.Info.Status,
		AssessmentType: a.Info.AssessmentType,
		CreatedAt:      a.CreatedAt,
		LastUpdated:    a.LastUpdated,
		CreatedBy:      a.Info.CreatedBy,
	}
}
