package models

import "time"

// Contract processing statuses recorded on the Firestore run record. They
// mirror the pipeline's progress coarsely enough for an operator dashboard.
const (
	StatusValidating         = "VALIDATING"
	StatusSplitting          = "SPLITTING"
	StatusAwaitingExtraction = "AWAITING_EXTRACTION"
	StatusExtracting         = "EXTRACTING"
	StatusDone               = "DONE"
	StatusFailed             = "FAILED"
)

// ContractRun is the main record for one contract's processing in
// Firestore. It tracks overall status and the outcome summary once the
// extraction pipeline finishes.
type ContractRun struct {
	FileHash            string    `firestore:"fileHash,omitempty"`
	OriginalFilename    string    `firestore:"originalFilename,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	PageCount           int       `firestore:"pageCount,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"` // For traceability
	QualityTier         string    `firestore:"qualityTier,omitempty"`
	CompletenessRatio   float64   `firestore:"completenessRatio,omitempty"`
	CriticalFindings    int       `firestore:"criticalFindings,omitempty"`
	DocumentGCSUri      string    `firestore:"documentGcsUri,omitempty"`
	ReportGCSUri        string    `firestore:"reportGcsUri,omitempty"`
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
}
