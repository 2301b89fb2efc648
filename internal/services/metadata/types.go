package metadata

// ObjectType identifies one kind of creatable metadata object
type ObjectType string

const (
	TypeCategoryOption ObjectType = "categoryOption"
	TypeCategory       ObjectType = "category"
	TypeCategoryCombo  ObjectType = "categoryCombo"
	TypeDataElement    ObjectType = "dataElement"
	TypeDataset        ObjectType = "dataset"
)

// resourceNames maps object types to their DHIS2 API resource names
var resourceNames = map[ObjectType]string{
	TypeCategoryOption: "categoryOptions",
	TypeCategory:       "categories",
	TypeCategoryCombo:  "categoryCombos",
	TypeDataElement:    "dataElements",
	TypeDataset:        "dataSets",
}

// Resource returns the DHIS2 API resource name for an object type
func (t ObjectType) Resource() string {
	return resourceNames[t]
}

// Progress is one structured progress event emitted during long operations.
// An observational side channel for the UI, not part of the correctness
// contract.
type Progress struct {
	Message    string `json:"message"`
	Step       string `json:"step"`
	Percentage int    `json:"percentage"`
}

// ProgressFunc receives progress events; nil is allowed everywhere
type ProgressFunc func(Progress)

// ValidationResult accumulates validation errors and warnings for one object.
// Errors abort that object's creation; warnings do not.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// AttachmentInput is one file handed to ProcessAttachments. The caller has
// already read the bytes; this service only encodes and tracks them.
type AttachmentInput struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"-"`
}

// Package bundles metadata objects for ordered batch creation
type Package struct {
	Name            string                   `json:"name"`
	CategoryOptions []map[string]interface{} `json:"categoryOptions"`
	Categories      []map[string]interface{} `json:"categories"`
	CategoryCombos  []map[string]interface{} `json:"categoryCombos"`
	DataElements    []map[string]interface{} `json:"dataElements"`
	Datasets        []map[string]interface{} `json:"datasets"`
	Attachments     []AttachmentInput        `json:"-"`
	OwnerID         string                   `json:"ownerId"`
}

// PackageResult reports a batch creation: Success is true only when the
// error list is empty, but Created always reflects everything that did go
// through.
type PackageResult struct {
	Success bool                                     `json:"success"`
	Created map[ObjectType][]map[string]interface{} `json:"created"`
	Errors  []string                                 `json:"errors"`
}
