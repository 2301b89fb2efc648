package models

// OrganisationUnit represents a DHIS2 organisation unit as selected into an
// assessment. Every field is defaulted by the builder; absent input never
// leaves a field undefined in the stored document.
type OrganisationUnit struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	Level       int    `json:"level"`
	Path        string `json:"path"`
	ParentID    string `json:"parentId"`
}
