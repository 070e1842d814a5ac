package models

// These structs define the JSON payloads for HTTP requests and responses
// between the Cloud Workflow and the worker Cloud Functions.

// ContractExtractorRequest is the input for the contract-extractor
// function. ContractTextGCSUri points at the plain-text rendition of the
// contract. ReferenceGCSUri optionally points at a bank-sourced document
// of the same trade; when present, a field-level comparison is produced
// next to the outputs.
type ContractExtractorRequest struct {
	DocumentID         string `json:"documentId"`
	ContractTextGCSUri string `json:"contractTextGcsUri"`
	ReferenceGCSUri    string `json:"referenceGcsUri,omitempty"`
	ExecutionID        string `json:"executionId"`
}

// ContractExtractorResponse is the output of the contract-extractor
// function.
type ContractExtractorResponse struct {
	Status            string  `json:"status"`
	QualityTier       string  `json:"qualityTier"`
	CompletenessRatio float64 `json:"completenessRatio"`
	FindingCount      int     `json:"findingCount"`
	DocumentGCSUri    string  `json:"documentGcsUri"`
	ReportGCSUri      string  `json:"reportGcsUri"`
	ComparisonGCSUri  string  `json:"comparisonGcsUri,omitempty"`
}

// PageTranscriberRequest is the input for the page-transcriber function,
// which turns one scanned contract page into plain text.
type PageTranscriberRequest struct {
	DocumentID  string `json:"documentId"`
	PageNumber  int    `json:"pageNumber"`
	GCSUri      string `json:"gcsUri"`
	ExecutionID string `json:"executionId"`
}

// PageTranscriberResponse is the output of the page-transcriber function.
type PageTranscriberResponse struct {
	Status       string `json:"status"`
	OutputGCSUri string `json:"outputGcsUri"`
}

// TextAssemblerRequest is the input for the text-assembler function,
// which concatenates the transcribed pages into one contract text file.
type TextAssemblerRequest struct {
	DocumentID  string `json:"documentId"`
	ExecutionID string `json:"executionId"`
}

// TextAssemblerResponse is the output of the text-assembler function.
type TextAssemblerResponse struct {
	Status             string `json:"status"`
	ContractTextGCSUri string `json:"contractTextGcsUri"`
}
