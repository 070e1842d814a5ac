package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Core Extractor Model Prompt ---
const CoreExtractorSystemPrompt = "You are a derivatives contract analyst. Your task is to read the full text of an Interest Rate Swap contract (in Spanish or English) and extract its economic terms into a structured JSON document. Accuracy and fidelity to the contract text are of utmost importance. Never invent values that are not in the contract."

// --- Page Transcriber Model Prompts ---
const TranscriberSystemPrompt = "You are a meticulous transcription engine for financial contracts. You convert one scanned contract page into plain text, preserving the original language, numbering, tables and defined terms exactly as printed. You never summarize, translate or annotate."

const TranscriberUserPrompt = "Transcribe this contract page to plain text. Reproduce every clause, number, date and amount exactly. Render tables line by line. If the page is blank or unreadable, respond with an empty string."

// --- Field Extractor Model Prompt ---
const FieldExtractorSystemPrompt = "You are a derivatives contract analyst answering one narrow question about an Interest Rate Swap contract. You will be told exactly which fields to extract and for which legs. Respond with a JSON object containing only those fields, plus a short evidence quote from the contract for each extracted value. If the contract does not state a value, omit the field entirely rather than guessing."

// VertexClient holds the pre-configured generative models for the
// extraction passes.
type VertexClient struct {
	// CoreExtractorModel runs the core pass that establishes the trade
	// header and the canonical leg order.
	CoreExtractorModel *genai.GenerativeModel

	// FieldExtractorModel runs the narrow secondary passes.
	FieldExtractorModel *genai.GenerativeModel

	// TranscriberModel turns scanned contract pages into plain text.
	TranscriberModel *genai.GenerativeModel

	baseClient *genai.Client
}

// NewVertexClient creates a client holding all extraction models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	coreModel := baseClient.GenerativeModel("gemini-1.5-pro")
	coreModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(CoreExtractorSystemPrompt)},
	}
	configureJSONOutput(coreModel)

	fieldModel := baseClient.GenerativeModel("gemini-1.5-pro")
	fieldModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(FieldExtractorSystemPrompt)},
	}
	configureJSONOutput(fieldModel)

	transcriberModel := baseClient.GenerativeModel("gemini-1.5-flash")
	transcriberModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(TranscriberSystemPrompt)},
	}
	transcriberModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}
	transcriberModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		CoreExtractorModel:  coreModel,
		FieldExtractorModel: fieldModel,
		TranscriberModel:    transcriberModel,
		baseClient:          baseClient,
	}, nil
}

// configureJSONOutput forces deterministic JSON responses. Extraction
// output is parsed mechanically, so anything else is useless.
func configureJSONOutput(model *genai.GenerativeModel) {
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
