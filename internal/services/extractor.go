package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/jmfuenzalida/contractreaderflow/internal/compare"
	"github.com/jmfuenzalida/contractreaderflow/internal/extraction"
	"github.com/jmfuenzalida/contractreaderflow/internal/gcp"
	"github.com/jmfuenzalida/contractreaderflow/internal/models"
	"github.com/jmfuenzalida/contractreaderflow/internal/pipeline"
	"github.com/jmfuenzalida/contractreaderflow/internal/swap"
)

// ExtractorConfig holds all configuration for the extraction service.
type ExtractorConfig struct {
	ProjectID         string
	VertexAIRegion    string
	ExtractionsBucket string
	CollectionName    string
	PolicyPath        string
}

// ExtractorFunction runs the full extraction pipeline for one contract:
// the core pass, the secondary passes, merge, validation, and the
// optional comparison against a bank reference document.
type ExtractorFunction struct {
	storageClient   *storage.Client
	firestoreClient *firestore.Client
	vertexClient    *gcp.VertexClient
	coordinator     *pipeline.Coordinator
	core            extraction.PassInvoker
	secondary       []extraction.PassInvoker
	config          ExtractorConfig
}

func loadExtractorConfig() (*ExtractorConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	extractionsBucket := gcp.GetEnv("EXTRACTIONS_BUCKET", "")
	if extractionsBucket == "" {
		return nil, fmt.Errorf("EXTRACTIONS_BUCKET environment variable must be set")
	}

	return &ExtractorConfig{
		ProjectID:         projectID,
		VertexAIRegion:    gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		ExtractionsBucket: extractionsBucket,
		CollectionName:    gcp.GetEnv("FIRESTORE_COLLECTION", "contract-runs"),
		PolicyPath:        gcp.GetEnv("PIPELINE_POLICY_PATH", ""),
	}, nil
}

// NewExtractor creates a new ExtractorFunction instance.
func NewExtractor(ctx context.Context) (*ExtractorFunction, error) {
	config, err := loadExtractorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	policy := pipeline.DefaultPolicy()
	if config.PolicyPath != "" {
		policy, err = pipeline.LoadPolicy(config.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load pipeline policy: %w", err)
		}
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	return &ExtractorFunction{
		storageClient:   storageClient,
		firestoreClient: firestoreClient,
		vertexClient:    vertexClient,
		coordinator:     pipeline.New(policy, slog.Default()),
		core:            extraction.NewCorePass(vertexClient),
		secondary:       extraction.DefaultSecondaryPasses(vertexClient),
		config:          *config,
	}, nil
}

// Process handles one extraction request end to end.
func (f *ExtractorFunction) Process(ctx context.Context, req *models.ContractExtractorRequest) (*models.ContractExtractorResponse, error) {
	executionID := req.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}
	logCtx := slog.With("documentId", req.DocumentID, "executionId", executionID)
	logCtx.Info("Starting contract extraction.")

	runRef := f.firestoreClient.Collection(f.config.CollectionName).Doc(req.DocumentID)
	if _, err := runRef.Update(ctx, []firestore.Update{
		{Path: "status", Value: models.StatusExtracting},
		{Path: "workflowExecutionId", Value: executionID},
	}); err != nil {
		logCtx.Warn("Failed to update run status to EXTRACTING.", "error", err)
	}

	contractText, err := f.readObject(ctx, req.ContractTextGCSUri)
	if err != nil {
		return nil, f.handleRunError(ctx, logCtx, runRef, "failed to read contract text", err)
	}

	result, err := f.coordinator.Run(ctx, contractText, f.core, f.secondary)
	if err != nil {
		return nil, f.handleRunError(ctx, logCtx, runRef, "extraction pipeline failed", err)
	}

	documentUri, err := f.saveJSON(ctx, logCtx, fmt.Sprintf("%s/%s/document.json", req.DocumentID, executionID), result.Document)
	if err != nil {
		return nil, f.handleRunError(ctx, logCtx, runRef, "failed to save extracted document", err)
	}
	reportUri, err := f.saveJSON(ctx, logCtx, fmt.Sprintf("%s/%s/report.json", req.DocumentID, executionID), runSummary(result))
	if err != nil {
		return nil, f.handleRunError(ctx, logCtx, runRef, "failed to save validation report", err)
	}

	comparisonUri := ""
	if req.ReferenceGCSUri != "" {
		comparisonUri, err = f.compareAgainstReference(ctx, logCtx, req, executionID, result)
		if err != nil {
			return nil, f.handleRunError(ctx, logCtx, runRef, "failed to compare against reference", err)
		}
	}

	updates := []firestore.Update{
		{Path: "status", Value: models.StatusDone},
		{Path: "qualityTier", Value: string(result.Report.QualityTier)},
		{Path: "completenessRatio", Value: result.Report.CompletenessRatio},
		{Path: "criticalFindings", Value: result.Report.CountBySeverity(swap.SeverityCritical)},
		{Path: "documentGcsUri", Value: documentUri},
		{Path: "reportGcsUri", Value: reportUri},
	}
	if _, err := runRef.Update(ctx, updates); err != nil {
		logCtx.Error("Failed to update run record after successful extraction.", "error", err)
	}

	logCtx.Info("Contract extraction complete.",
		"qualityTier", string(result.Report.QualityTier),
		"completeness", result.Report.CompletenessRatio,
		"findings", len(result.Report.Findings),
	)
	return &models.ContractExtractorResponse{
		Status:            "success",
		QualityTier:       string(result.Report.QualityTier),
		CompletenessRatio: result.Report.CompletenessRatio,
		FindingCount:      len(result.Report.Findings),
		DocumentGCSUri:    documentUri,
		ReportGCSUri:      reportUri,
		ComparisonGCSUri:  comparisonUri,
	}, nil
}

// runSummary bundles the validation report with the per-pass outcomes so
// a reviewer can see which passes contributed.
func runSummary(result *pipeline.Result) map[string]any {
	return map[string]any{
		"report":     result.Report,
		"identities": result.Identities,
		"passes":     result.Outcomes,
	}
}

func (f *ExtractorFunction) compareAgainstReference(ctx context.Context, logCtx *slog.Logger, req *models.ContractExtractorRequest, executionID string, result *pipeline.Result) (string, error) {
	raw, err := f.readObject(ctx, req.ReferenceGCSUri)
	if err != nil {
		return "", fmt.Errorf("failed to read reference document: %w", err)
	}
	var reference map[string]any
	if err := json.Unmarshal([]byte(raw), &reference); err != nil {
		return "", fmt.Errorf("failed to parse reference document: %w", err)
	}

	extracted := map[string]any{
		"header": result.Document.Header,
		"legs":   legsAsAny(result.Document.Legs),
	}
	diff := compare.Documents(reference, extracted)
	logCtx.Info("Compared extraction against reference.", "summary", compare.Summary(diff))

	return f.saveJSON(ctx, logCtx, fmt.Sprintf("%s/%s/comparison.json", req.DocumentID, executionID), diff)
}

func legsAsAny(legs []map[string]any) []any {
	out := make([]any, len(legs))
	for i, leg := range legs {
		out[i] = leg
	}
	return out
}

func (f *ExtractorFunction) saveJSON(ctx context.Context, logCtx *slog.Logger, objectName string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", objectName, err)
	}
	bucketHandle := f.storageClient.Bucket(f.config.ExtractionsBucket)
	if err := gcp.SaveToGCSAtomically(ctx, bucketHandle, objectName, string(data)); err != nil {
		logCtx.Error("Failed to save to GCS atomically.", "object", objectName, "error", err)
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", f.config.ExtractionsBucket, objectName), nil
}

func (f *ExtractorFunction) readObject(ctx context.Context, uri string) (string, error) {
	bucket, object, err := gcp.ParseGCSUri(uri)
	if err != nil {
		return "", err
	}
	return gcp.ReadGCSObject(ctx, f.storageClient, bucket, object)
}

func (f *ExtractorFunction) handleRunError(ctx context.Context, logCtx *slog.Logger, runRef *firestore.DocumentRef, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	if _, err := runRef.Update(ctx, []firestore.Update{
		{Path: "status", Value: models.StatusFailed},
		{Path: "errorDetails", Value: fmt.Sprintf("%s: %v", message, originalErr)},
	}); err != nil {
		logCtx.Error("CRITICAL: Failed to update run status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
