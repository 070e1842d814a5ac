package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/jmfuenzalida/contractreaderflow/internal/gcp"
	"github.com/jmfuenzalida/contractreaderflow/internal/models"
)

// AssemblerConfig holds configuration for the text-assembler service.
type AssemblerConfig struct {
	ProjectID          string
	PageTextBucket     string
	ContractTextBucket string
}

// AssemblerFunction concatenates the transcribed pages of one contract
// into a single text file, in page order, for the extractor to consume.
type AssemblerFunction struct {
	storageClient *storage.Client
	config        AssemblerConfig
}

// NewAssembler creates a new AssemblerFunction instance.
func NewAssembler(ctx context.Context) (*AssemblerFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := AssemblerConfig{
		ProjectID:          projectID,
		PageTextBucket:     gcp.GetEnv("PAGE_TEXT_BUCKET", ""),
		ContractTextBucket: gcp.GetEnv("CONTRACT_TEXT_BUCKET", ""),
	}
	if config.PageTextBucket == "" || config.ContractTextBucket == "" {
		return nil, fmt.Errorf("PAGE_TEXT_BUCKET and CONTRACT_TEXT_BUCKET must be set")
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &AssemblerFunction{
		storageClient: storageClient,
		config:        config,
	}, nil
}

// Process concatenates every transcribed page of the document. Page files
// are named with zero-padded page numbers, so lexical order is page order.
func (f *AssemblerFunction) Process(ctx context.Context, req *models.TextAssemblerRequest) (*models.TextAssemblerResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID)
	logCtx.Info("Starting contract text assembly.")

	query := &storage.Query{Prefix: req.DocumentID + "/"}
	it := f.storageClient.Bucket(f.config.PageTextBucket).Objects(ctx, query)

	var objectNames []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			logCtx.Error("Failed to list objects in page text bucket.", "error", err, "bucket", f.config.PageTextBucket)
			return nil, fmt.Errorf("failed to list page text files: %w", err)
		}
		if strings.HasSuffix(attrs.Name, ".txt") {
			objectNames = append(objectNames, attrs.Name)
		}
	}

	if len(objectNames) == 0 {
		logCtx.Warn("No page text files found to assemble. This might be an error or an empty document.")
	}

	sort.Strings(objectNames)
	logCtx.Info("Found and sorted pages for assembly.", "pageCount", len(objectNames))

	outputObjectName := fmt.Sprintf("%s/contract.txt", req.DocumentID)
	destWriter := f.storageClient.Bucket(f.config.ContractTextBucket).Object(outputObjectName).NewWriter(ctx)
	var assemblyErr error

	for _, objName := range objectNames {
		sourceReader, err := f.storageClient.Bucket(f.config.PageTextBucket).Object(objName).NewReader(ctx)
		if err != nil {
			assemblyErr = fmt.Errorf("failed to read %s: %w", objName, err)
			break
		}

		if _, err := io.Copy(destWriter, sourceReader); err != nil {
			sourceReader.Close()
			assemblyErr = fmt.Errorf("failed to copy content from %s: %w", objName, err)
			break
		}
		sourceReader.Close()

		if _, err := destWriter.Write([]byte("\n\n")); err != nil {
			assemblyErr = fmt.Errorf("failed to write page separator: %w", err)
			break
		}
	}

	if err := destWriter.Close(); err != nil {
		logCtx.Error("Critical: Failed to finalize contract text write.", "error", err, "object", outputObjectName)
		return nil, fmt.Errorf("failed to finalize contract text: %w", err)
	}

	if assemblyErr != nil {
		logCtx.Error("Error during assembly loop.", "error", assemblyErr)
		return nil, assemblyErr
	}

	outputGCSUri := fmt.Sprintf("gs://%s/%s", f.config.ContractTextBucket, outputObjectName)
	logCtx.Info("Contract text assembly complete.", "outputUri", outputGCSUri)
	return &models.TextAssemblerResponse{
		Status:             "success",
		ContractTextGCSUri: outputGCSUri,
	}, nil
}
