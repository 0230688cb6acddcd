package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

var answerSchema = generateSchema[ModelAnswer]("predicted_content", "predicted_sender")

// OpenAIGenerator calls the OpenAI Responses API with a strict JSON
// schema so the answer always carries every field, nulls included.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIGenerator{client: &client, model: model}
}

func (g *OpenAIGenerator) ModelName() string { return g.model }

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, participants []string) (*ModelAnswer, error) {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "GapInference",
			Schema:      answerSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Gap reconstruction hypothesis JSON"),
			Type:        "json_schema",
		},
	}

	instructions := fmt.Sprintf(
		"Answer with the GapInference JSON object. predicted_sender must be one of: %s, or null.",
		strings.Join(participants, ", "))

	params := responses.ResponseNewParams{
		Model:           g.model,
		MaxOutputTokens: openai.Int(1500),
		Instructions:    openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := g.client.Responses.New(ctx, params)
	if err != nil {
		return nil, &InferenceError{Op: "transport", Err: err, Transient: isTransportError(err)}
	}

	var answer ModelAnswer
	if err := decodeModelJSON(resp.OutputText(), &answer); err != nil {
		return nil, &InferenceError{Op: "decode", Err: err}
	}
	return &answer, nil
}

// isTransportError classifies failures worth retrying: rate limits and
// server-side errors, matching how the API reports them.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "server_error") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection")
}

func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	// Some models wrap the object in prose; take the first top-level
	// JSON object.
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return nil
}

func generateSchema[T any](nullable ...string) map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	ensureStrictSchema(m)
	allowNull(m, nullable...)
	return m
}

// allowNull widens the named top-level properties to accept null.
// Strict mode requires every property, so optional fields must be
// nullable for the model to legally omit a value.
func allowNull(schema map[string]any, names ...string) {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return
	}
	for _, name := range names {
		pm, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		if t, ok := pm["type"].(string); ok {
			pm["type"] = []string{t, "null"}
		}
	}
}

// ensureStrictSchema makes every object closed and every property
// required, which the strict structured-output mode demands.
func ensureStrictSchema(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			var required []string
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				ensureStrictSchema(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureStrictSchema(items)
	}
}
