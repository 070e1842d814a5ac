package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
	"cloud.google.com/go/vertexai/genai"

	"github.com/jmfuenzalida/contractreaderflow/internal/gcp"
	"github.com/jmfuenzalida/contractreaderflow/internal/models"
)

// TranscriberConfig holds all configuration for the transcriber service.
type TranscriberConfig struct {
	ProjectID      string
	VertexAIRegion string
	PageTextBucket string
}

// TranscriberFunction turns one scanned contract page into plain text.
// Pages are processed independently so the workflow can fan them out.
type TranscriberFunction struct {
	storageClient *storage.Client
	vertexClient  *gcp.VertexClient
	config        TranscriberConfig
}

func loadTranscriberConfig() (*TranscriberConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	pageTextBucket := gcp.GetEnv("PAGE_TEXT_BUCKET", "")
	if pageTextBucket == "" {
		return nil, fmt.Errorf("PAGE_TEXT_BUCKET environment variable must be set")
	}

	return &TranscriberConfig{
		ProjectID:      projectID,
		VertexAIRegion: gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		PageTextBucket: pageTextBucket,
	}, nil
}

// NewTranscriber creates a new TranscriberFunction instance.
func NewTranscriber(ctx context.Context) (*TranscriberFunction, error) {
	config, err := loadTranscriberConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	return &TranscriberFunction{
		storageClient: storageClient,
		vertexClient:  vertexClient,
		config:        *config,
	}, nil
}

// Process transcribes a single contract page PDF to plain text.
func (f *TranscriberFunction) Process(ctx context.Context, req *models.PageTranscriberRequest) (*models.PageTranscriberResponse, error) {
	logCtx := slog.With("documentId", req.DocumentID, "pageNumber", req.PageNumber, "executionId", req.ExecutionID)
	logCtx.Info("Starting page transcription.")

	model := f.vertexClient.TranscriberModel
	prompt := genai.Text(gcp.TranscriberUserPrompt)
	filePart := genai.FileData{
		MIMEType: "application/pdf",
		FileURI:  req.GCSUri,
	}

	geminiResp, err := model.GenerateContent(ctx, filePart, prompt)
	if err != nil {
		logCtx.Error("Vertex AI call failed.", "error", err)
		return nil, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	pageText := f.extractText(geminiResp, logCtx)

	lower := strings.ToLower(pageText)
	for _, phrase := range []string{
		"i am unable to",
		"i cannot fulfill",
		"i cannot answer",
		"i cannot provide",
		"as a large language model",
	} {
		if strings.Contains(lower, phrase) {
			err := fmt.Errorf("gemini response indicates refusal for page %d", req.PageNumber)
			logCtx.Error("LLM refusal detected.", "error", err, "response", pageText)
			return nil, err
		}
	}

	if pageText == "" {
		logCtx.Warn("No text extracted from response. Treating as empty page.")
	}

	objectName := fmt.Sprintf("%s/%05d.txt", req.DocumentID, req.PageNumber)
	bucketHandle := f.storageClient.Bucket(f.config.PageTextBucket)
	if err := gcp.SaveToGCSAtomically(ctx, bucketHandle, objectName, pageText); err != nil {
		logCtx.Error("Failed to save page text to GCS atomically.", "error", err)
		return nil, err
	}

	outputGCSUri := fmt.Sprintf("gs://%s/%s", f.config.PageTextBucket, objectName)
	logCtx.Info("Page transcription complete.", "outputUri", outputGCSUri)
	return &models.PageTranscriberResponse{
		Status:       "success",
		OutputGCSUri: outputGCSUri,
	}, nil
}

// extractText robustly pulls the text content out of the model response.
func (f *TranscriberFunction) extractText(resp *genai.GenerateContentResponse, logCtx *slog.Logger) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var content strings.Builder
	var textPartsFound int
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content.WriteString(string(txt))
			textPartsFound++
		}
	}
	if textPartsFound > 1 {
		logCtx.Warn("Gemini response contained multiple text parts; concatenated.", "parts", textPartsFound)
	}

	contentStr := strings.TrimSpace(content.String())
	contentStr = strings.TrimPrefix(contentStr, "```text")
	contentStr = strings.TrimPrefix(contentStr, "```")
	contentStr = strings.TrimSuffix(contentStr, "```")
	return strings.TrimSpace(contentStr)
}
