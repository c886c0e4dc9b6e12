package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"go.uber.org/zap"
)

// ErrDisabled is returned when no OpenAI key is configured.
var ErrDisabled = errors.New("ai: contract drafting is not configured")

// Drafter turns an operator's free-text description into a contract draft.
// A draft is never booked; the operator submits it through CreateContract.
type Drafter interface {
	DraftContract(ctx context.Context, text string, cat Catalog) (*DraftResult, error)
}

// DraftResult is what the operator sees. Warning is set when the draft does
// not resolve against the catalog (unknown farmer or culture).
type DraftResult struct {
	NeedsClarification bool           `json:"needs_clarification"`
	Question           string         `json:"question,omitempty"`
	Draft              *ContractDraft `json:"draft,omitempty"`
	Warning            string         `json:"warning,omitempty"`
}

type Agent struct {
	client *openai.Client
	model  string
	log    *zap.Logger
}

// NewAgent builds an OpenAI-backed drafter. opts are passed to the client
// after the API key (tests point it at a local server with option.WithBaseURL).
func NewAgent(apiKey, model string, logger *zap.Logger, opts ...option.RequestOption) *Agent {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Agent{client: &client, model: model, log: logger.Named("ai")}
}

func (a *Agent) DraftContract(ctx context.Context, text string, cat Catalog) (*DraftResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("description is empty")
	}

	schemaMap, err := draftSchema()
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(a.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(buildPrompt(text, cat)),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "farmer_contract_draft",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("A draft of a farmer contract for a grain trader"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var out DraftResponse
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}
	a.log.Debug("contract draft received",
		zap.Bool("needs_clarification", out.NeedsClarification),
		zap.Int("items", len(out.Draft.Items)))
	return resolve(out, cat), nil
}

func resolve(out DraftResponse, cat Catalog) *DraftResult {
	if out.NeedsClarification {
		return &DraftResult{NeedsClarification: true, Question: out.Question}
	}
	draft := out.Draft
	draft.Normalize()
	result := &DraftResult{Draft: &draft}
	if _, err := draft.ToInput(cat); err != nil {
		result.Warning = err.Error()
	}
	return result
}

func buildPrompt(text string, cat Catalog) string {
	var b strings.Builder
	b.WriteString(`You are the contract clerk of a grain trading company.
Turn the operator's description into a farmer contract draft.
Contract types:
- payment: the company buys the farmer's stored grain (items from_farmer only) and pays in cash or vouchers.
- debt: the company gives goods, grain or cash now (from_company) and the farmer repays later.
- exchange: goods or grain both ways.
- reserve: like debt, but only reserves company stock until activated.
Rules:
1. Use ONLY farmer and culture names from the lists below.
2. Quantities and prices are decimal strings (e.g. "1500", "8.50").
3. Use price "0" when the description gives no price.
4. Ask for clarification when the farmer, the type or the items are missing.

Farmers:
`)
	for _, o := range cat.Owners {
		fmt.Fprintf(&b, "- %s\n", o.FullName)
	}
	b.WriteString("\nCultures (UAH per kg):\n")
	for _, c := range cat.Cultures {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.PricePerKg.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nDescription: %s", text)
	return b.String()
}

func draftSchema() (map[string]any, error) {
	schemaJSON, err := json.Marshal(generateSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schemaMap, nil
}

func generateSchema() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v DraftResponse
	return reflector.Reflect(v)
}

// Disabled is the Drafter used when no API key is configured.
type Disabled struct{}

func (Disabled) DraftContract(ctx context.Context, text string, cat Catalog) (*DraftResult, error) {
	return nil, ErrDisabled
}
