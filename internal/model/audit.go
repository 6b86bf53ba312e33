package model

import "time"

// AuditStatus is the overall result of auditing a folder.
type AuditStatus string

// Audit status constants.
const (
	AuditPassed  AuditStatus = "Passed"
	AuditCaution AuditStatus = "Caution"
	AuditFailed  AuditStatus = "Failed"
	// AuditError means the folder could not be enumerated.
	AuditError AuditStatus = "Error"
)

// Transferable reports whether a folder with this status may be transferred
// without an operator override.
func (s AuditStatus) Transferable() bool {
	return s == AuditPassed || s == AuditCaution
}

// AuditCheck names an individually enabled audit check.
type AuditCheck string

// Audit checks.
const (
	CheckName      AuditCheck = "name"
	CheckDataset   AuditCheck = "dataset"
	CheckExtension AuditCheck = "extension"
)

// NameCheck is the outcome of folder name validation.
type NameCheck struct {
	Message string
	Fields  NameFields
	Valid   bool
	Parsed  bool // true when best-effort fields were populated
}

// DatasetCheck is the outcome of dataset whitelist validation.
type DatasetCheck struct {
	Dataset   string
	Message   string
	Valid     bool
	Performed bool
}

// ExtensionViolation is a blacklisted file found in the folder.
type ExtensionViolation struct {
	RelativePath string
	Extension    string
}

// ExtensionCheck is the outcome of extension blacklist validation.
type ExtensionCheck struct {
	Violations []ExtensionViolation
	Valid      bool
	Performed  bool
}

// AuditVerdict is the immutable result of one audit run.
type AuditVerdict struct {
	AuditedAt    time.Time
	FolderName   string
	FolderPath   string
	Status       AuditStatus
	Issues       []string
	ArchiveFiles []string
	Name         NameCheck
	Extension    ExtensionCheck
	Dataset      DatasetCheck
	FileCount    int
	TotalBytes   int64
}

// AllChecksValid reports whether name, dataset and extension checks each passed.
func (v *AuditVerdict) AllChecksValid() bool {
	return v.Name.Valid && v.Dataset.Valid && v.Extension.Valid
}
