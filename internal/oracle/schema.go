package oracle

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/fyrsmithlabs/archie/internal/knowledge"
	"github.com/fyrsmithlabs/archie/internal/matching"
)

// Schema describes the JSON document a structured request must return.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Classification is the structured reply to a classify request.
type Classification struct {
	Category  string `json:"category" jsonschema:"enum=troubleshooting,enum=process,enum=decision,enum=reference,enum=general,description=Knowledge category of the conversation"`
	Reasoning string `json:"reasoning" jsonschema:"description=One sentence explaining the choice"`
}

// SchemaFor reflects v into a strict schema: every property required and
// no additional properties.
func SchemaFor(name, description string, v any) (*Schema, error) {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	data, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("encoding schema %s: %w", name, err)
	}
	var def map[string]any
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decoding schema %s: %w", name, err)
	}
	delete(def, "$schema")
	delete(def, "$id")
	return &Schema{Name: name, Description: description, Definition: def}, nil
}

// schemas holds every schema the LLM oracle requests.
type schemas struct {
	classify *Schema
	verdict  *Schema
	extract  map[knowledge.Category]*Schema
}

func buildSchemas() (*schemas, error) {
	s := &schemas{extract: make(map[knowledge.Category]*Schema, len(knowledge.Categories))}
	var err error
	if s.classify, err = SchemaFor("classification", "Knowledge category of a conversation", &Classification{}); err != nil {
		return nil, err
	}
	if s.verdict, err = SchemaFor("match_decision", "Whether to create, update or ignore a knowledge document", &matching.Verdict{}); err != nil {
		return nil, err
	}
	for _, c := range knowledge.Categories {
		env, err := knowledge.NewEnvelope(c)
		if err != nil {
			return nil, err
		}
		sch, err := SchemaFor(string(c)+"_record", "Structured "+string(c)+" knowledge record", env)
		if err != nil {
			return nil, err
		}
		s.extract[c] = sch
	}
	return s, nil
}

// Instruction describes the schema in prose for providers without native
// structured output.
func (s *Schema) Instruction() string {
	data, err := json.Marshal(s.Definition)
	if err != nil {
		return "Reply with a single JSON object."
	}
	return "Reply with a single JSON object, without markdown fences, that matches this JSON schema:\n" + string(data)
}
