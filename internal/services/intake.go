package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/jmfuenzalida/contractreaderflow/internal/gcp"
	"github.com/jmfuenzalida/contractreaderflow/internal/models"
)

type ContractIntakeConfig struct {
	ProjectID        string
	SplitPagesBucket string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
}

// ContractIntakeFunction receives uploaded contract PDFs, registers a
// run record, splits the PDF into pages, and hands off to the
// orchestration workflow that runs OCR and extraction.
type ContractIntakeFunction struct {
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	config           ContractIntakeConfig
}

// GCSEvent is the subset of the storage event payload the intake needs.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func NewContractIntake(ctx context.Context) (*ContractIntakeFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := ContractIntakeConfig{
		ProjectID:        projectID,
		SplitPagesBucket: gcp.GetEnv("SPLIT_PAGES_BUCKET", ""),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "contract-runs"),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "contract-processing-orchestrator"),
	}
	if config.SplitPagesBucket == "" {
		return nil, fmt.Errorf("SPLIT_PAGES_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	f := &ContractIntakeFunction{
		firestoreClient:  firestoreClient,
		storageClient:    storageClient,
		executionsClient: executionsClient,
		config:           config,
	}
	slog.Info("Contract intake logic initialized.", "workflowId", config.WorkflowID)
	return f, nil
}

func (f *ContractIntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new contract upload.")

	tempDir, err := os.MkdirTemp("", "contract-intake-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePdfPath := filepath.Join(tempDir, "source.pdf")
	if err := f.streamGCSObject(ctx, e.Bucket, e.Name, sourcePdfPath); err != nil {
		logCtx.Error("Failed to download source contract", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(sourcePdfPath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	isDuplicate, runID, err := f.isDuplicate(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate contract detected. Skipping.", "existingRunId", runID)
		return nil
	}

	runRef, err := f.createRun(ctx, fileHash, e.Name)
	if err != nil {
		logCtx.Error("Failed to create run record", "error", err)
		return err
	}
	logCtx = logCtx.With("runId", runRef.ID)
	logCtx.Info("Created contract run in Firestore.")

	optimizedPdfPath := filepath.Join(tempDir, "optimized.pdf")
	pageCount, err := f.optimizeAndSplit(ctx, logCtx, runRef, sourcePdfPath, optimizedPdfPath)
	if err != nil {
		return err
	}

	if err := f.uploadSplitPages(ctx, logCtx, runRef, optimizedPdfPath, pageCount); err != nil {
		return err
	}

	if err := f.triggerWorkflow(ctx, logCtx, runRef, pageCount); err != nil {
		return err
	}

	logCtx.Info("Hand-off to workflow complete.")
	return nil
}

func (f *ContractIntakeFunction) isDuplicate(ctx context.Context, fileHash string) (bool, string, error) {
	docs, err := f.firestoreClient.Collection(f.config.CollectionName).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

func (f *ContractIntakeFunction) createRun(ctx context.Context, fileHash, filename string) (*firestore.DocumentRef, error) {
	run := models.ContractRun{
		FileHash:         fileHash,
		OriginalFilename: filename,
		Status:           models.StatusValidating,
		CreatedAt:        time.Now(),
	}
	runRef, _, err := f.firestoreClient.Collection(f.config.CollectionName).Add(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}
	return runRef, nil
}

func (f *ContractIntakeFunction) optimizeAndSplit(ctx context.Context, logCtx *slog.Logger, runRef *firestore.DocumentRef, source, optimized string) (int, error) {
	if err := optimizePDF(source, optimized); err != nil {
		return 0, f.handleError(ctx, logCtx, runRef, "failed to validate/optimize PDF", err)
	}
	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return 0, f.handleError(ctx, logCtx, runRef, "failed to get page count", err)
	}
	if err := api.SplitFile(optimized, filepath.Dir(optimized), 1, nil); err != nil {
		return 0, f.handleError(ctx, logCtx, runRef, "failed to split PDF", err)
	}
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusSplitting},
		{Path: "pageCount", Value: pageCount},
	}
	if _, err := runRef.Update(ctx, updates); err != nil {
		return 0, f.handleError(ctx, logCtx, runRef, "failed to update status to SPLITTING", err)
	}
	logCtx.Info("Contract optimized and split locally.", "pageCount", pageCount)
	return pageCount, nil
}

func (f *ContractIntakeFunction) uploadSplitPages(ctx context.Context, logCtx *slog.Logger, runRef *firestore.DocumentRef, optimizedPdfPath string, pageCount int) error {
	logCtx.Info("Starting concurrent upload of pages.", "pageCount", pageCount)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)

	splitFileBase := strings.TrimSuffix(optimizedPdfPath, filepath.Ext(optimizedPdfPath))

	for i := 1; i <= pageCount; i++ {
		pageNumber := i
		localSplitFilePath := fmt.Sprintf("%s_%d.pdf", splitFileBase, pageNumber)
		gcsDestObject := fmt.Sprintf("%s/%05d.pdf", runRef.ID, pageNumber)

		eg.Go(func() error {
			if err := f.uploadFile(gctx, localSplitFilePath, gcsDestObject); err != nil {
				return fmt.Errorf("page %d: %w", pageNumber, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return f.handleError(ctx, logCtx, runRef, "one or more pages failed to upload", err)
	}

	if _, err := runRef.Update(ctx, []firestore.Update{
		{Path: "status", Value: models.StatusAwaitingExtraction},
	}); err != nil {
		return f.handleError(ctx, logCtx, runRef, "failed to update status to AWAITING_EXTRACTION", err)
	}
	logCtx.Info("All pages uploaded successfully.")
	return nil
}

func (f *ContractIntakeFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, runRef *firestore.DocumentRef, pageCount int) error {
	logCtx.Info("Triggering workflow.")
	workflowPayload := map[string]interface{}{
		"documentId": runRef.ID,
		"pageCount":  pageCount,
	}
	payloadBytes, err := json.Marshal(workflowPayload)
	if err != nil {
		return f.handleError(ctx, logCtx, runRef, "failed to marshal workflow payload", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	_, err = f.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		return f.handleError(ctx, logCtx, runRef, "failed to trigger workflow execution", err)
	}
	return nil
}

func (f *ContractIntakeFunction) handleError(ctx context.Context, logCtx *slog.Logger, runRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.updateStatus(ctx, runRef, models.StatusFailed, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s", fullError)
}

func (f *ContractIntakeFunction) updateStatus(ctx context.Context, runRef *firestore.DocumentRef, status, errDetails string) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	_, err := runRef.Update(ctx, updates)
	return err
}

func (f *ContractIntakeFunction) streamGCSObject(ctx context.Context, bucket, object, destPath string) error {
	gcsReader, err := f.storageClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer gcsReader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}

func (f *ContractIntakeFunction) uploadFile(ctx context.Context, localPath, destObject string) error {
	const maxRetries = 4
	var backoff = 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := func() error {
			localFileReader, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer localFileReader.Close()

			writeCtx, cancel := context.WithTimeout(ctx, time.Second*50)
			defer cancel()

			gcsWriter := f.storageClient.Bucket(f.config.SplitPagesBucket).Object(destObject).NewWriter(writeCtx)

			if _, err := io.Copy(gcsWriter, localFileReader); err != nil {
				_ = gcsWriter.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}

			if err := gcsWriter.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()

		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", destObject, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", destObject, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
