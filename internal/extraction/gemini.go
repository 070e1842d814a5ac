package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/jmfuenzalida/contractreaderflow/internal/gcp"
	"github.com/jmfuenzalida/contractreaderflow/internal/swap"
)

// CorePassPrompt asks for the trade header and both legs with every
// identifying field, establishing the canonical leg order for the run.
const CorePassPrompt = `Read the contract text below and extract the trade into a JSON object with this exact shape:

{
  "header": {
    "tradeId": string,
    "tradeDate": string (DD/MM/YYYY),
    "effectiveDate": string (DD/MM/YYYY),
    "maturityDate": string (DD/MM/YYYY),
    "counterparty": string
  },
  "legs": [
    {
      "legId": string,
      "payerPartyReference": string,
      "receiverPartyReference": string,
      "rateType": "FIXED" or "FLOATING",
      "notionalAmount": number,
      "notionalCurrency": string (ISO code, e.g. CLP, CLF, USD),
      "settlementCurrency": string (ISO code)
    }
  ]
}

List the legs in the order the contract presents them. Omit any field the contract does not state. Do not add fields that are not listed here.

Contract text:
{contract_text}`

// FieldPassPromptTemplate frames a narrow secondary pass. The leg
// context serialization lets the model report against the canonical
// legs, but its self-reported alignment is verified by correlation.
const FieldPassPromptTemplate = `The trade in the contract below has already been identified with these legs:

{leg_context}

Extract ONLY the following from the contract, as a JSON object with a "legs" array (one object per leg you can answer for, each including "rateType", "payerPartyReference" and "receiverPartyReference" copied from the leg it describes) and, when asked for header fields, a "header" object:

{field_instructions}

Omit anything the contract does not state. Include a short "evidence" string on each leg quoting the contract text that supports the extracted values.

Contract text:
{contract_text}`

// Secondary pass field instructions, one per pass. Each concern gets its
// own pass so a bad answer in one never contaminates another.
const (
	SettlementPassInstructions = `For each leg: "settlementType" ("CASH" or "PHYSICAL") and "settlementCurrency" (ISO code). If the notional currency of a leg differs from its settlement currency, also extract the "fxFixing" object: {"fxRateIndex": string, "fxFixingLag": number, "fxFixingPivot": string}.`

	SchedulePassInstructions = `For each leg: "startDate" (DD/MM/YYYY), "endDate" (DD/MM/YYYY), "paymentFrequency" (e.g. "6M", "1Y", "TERM"), "fixingFrequency" where applicable, and "paymentDateOffset" (number of business days).`

	ConventionsPassInstructions = `For each leg: "dayCountFraction" (e.g. "ACT/360"), "businessDayConvention" ("MODFOLLOWING", "FOLLOWING" or "NONE"), and "businessCenters" (array of codes such as "CLSA", "USNY", "GBLO").`

	RatePassInstructions = `For each FIXED leg: "fixedRate" (decimal, e.g. 0.0425). For each FLOATING leg: "floatingRateIndex" (e.g. "CLP-ICP") and "spread" if the contract states one.`
)

// refusalPhrases are checked against model output. If the model refuses
// to answer, the pass must fail fast rather than feed noise downstream.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// GeminiPass is a PassInvoker backed by a Vertex AI Gemini model.
type GeminiPass struct {
	name   string
	model  *genai.GenerativeModel
	prompt func(contractText string, legContext []swap.LegIdentity) (string, error)
}

// Name implements PassInvoker.
func (p *GeminiPass) Name() string { return p.name }

// Invoke implements PassInvoker: one model call, response parsed and
// shape-checked at the boundary. No retries at this layer; a failed or
// malformed pass is flagged for human review via the validation report.
func (p *GeminiPass) Invoke(ctx context.Context, contractText string, legContext []swap.LegIdentity) (*swap.PartialDocument, error) {
	prompt, err := p.prompt(contractText, legContext)
	if err != nil {
		return nil, fmt.Errorf("pass %s: building prompt: %w", p.name, err)
	}

	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("pass %s: failed to generate content from gemini: %w", p.name, err)
	}

	raw := ExtractJSONContent(resp)
	if raw == "" {
		return nil, fmt.Errorf("pass %s: gemini returned an empty response", p.name)
	}

	lower := strings.ToLower(raw)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			slog.Warn("LLM refusal detected in pass response.", "pass", p.name, "response", raw)
			return nil, fmt.Errorf("pass %s: gemini response indicates refusal", p.name)
		}
	}

	doc, err := swap.DecodePartial([]byte(raw), p.name)
	if err != nil {
		return nil, err
	}
	markEvidence(doc)
	return doc, nil
}

// markEvidence strips per-leg evidence quotes out of the document body
// and flags legs that answered without any supporting quote as low
// confidence.
func markEvidence(doc *swap.PartialDocument) {
	for i, leg := range doc.Legs {
		if _, ok := leg["evidence"]; ok {
			delete(leg, "evidence")
			continue
		}
		doc.LowConfidence = append(doc.LowConfidence, fmt.Sprintf("legs[%d]", i))
	}
}

// NewCorePass builds the mandatory first pass from the pre-configured
// core extractor model.
func NewCorePass(client *gcp.VertexClient) *GeminiPass {
	return &GeminiPass{
		name:  "core",
		model: client.CoreExtractorModel,
		prompt: func(contractText string, _ []swap.LegIdentity) (string, error) {
			return strings.Replace(CorePassPrompt, "{contract_text}", contractText, 1), nil
		},
	}
}

// NewFieldPass builds a narrow secondary pass with the given field
// instructions.
func NewFieldPass(client *gcp.VertexClient, name, instructions string) *GeminiPass {
	return &GeminiPass{
		name:  name,
		model: client.FieldExtractorModel,
		prompt: func(contractText string, legContext []swap.LegIdentity) (string, error) {
			serialized, err := json.MarshalIndent(legContext, "", "  ")
			if err != nil {
				return "", fmt.Errorf("failed to serialize leg context: %w", err)
			}
			prompt := strings.Replace(FieldPassPromptTemplate, "{leg_context}", string(serialized), 1)
			prompt = strings.Replace(prompt, "{field_instructions}", instructions, 1)
			prompt = strings.Replace(prompt, "{contract_text}", contractText, 1)
			return prompt, nil
		},
	}
}

// DefaultSecondaryPasses returns the standard secondary pass set, one
// per field concern.
func DefaultSecondaryPasses(client *gcp.VertexClient) []PassInvoker {
	return []PassInvoker{
		NewFieldPass(client, "settlement", SettlementPassInstructions),
		NewFieldPass(client, "schedule", SchedulePassInstructions),
		NewFieldPass(client, "conventions", ConventionsPassInstructions),
		NewFieldPass(client, "rates", RatePassInstructions),
	}
}

// ExtractJSONContent robustly gets the raw text content from the model
// response, stripping markdown fences the model sometimes adds despite
// the JSON response MIME type.
func ExtractJSONContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			builder.WriteString(string(txt))
		}
	}
	clean := strings.TrimSpace(builder.String())
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}
