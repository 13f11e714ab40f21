package schemas

import "encoding/json"

// ScenarioSchemaName - имя схемы для response_format.json_schema.
const ScenarioSchemaName = "tolerance_scenario"

// Schema - JSON схема в виде map. Реализует json.Marshaler,
// поэтому ее можно передать в go-openai как ResponseFormat.JSONSchema.Schema.
type Schema map[string]interface{}

func (s Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(s))
}

func characterSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"description":          description,
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"name":  map[string]interface{}{"type": "string", "description": "A simple Arabic name for the character."},
			"emoji": map[string]interface{}{"type": "string", "description": "A single emoji representing the character."},
		},
		"required": []string{"name", "emoji"},
	}
}

// ScenarioSchema возвращает схему структурированного ответа для одного сценария.
func ScenarioSchema() Schema {
	return Schema{
		"type":                 "object",
		"description":          "A short tolerance scenario for children aged 6-8 with two choices.",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"scenarioText": map[string]interface{}{
				"type":        "string",
				"description": "The scenario description in simple Arabic.",
			},
			"characterA": characterSchema("The first character in the scenario."),
			"characterB": characterSchema("The second character in the scenario."),
			"choices": map[string]interface{}{
				"type":        "array",
				"description": "Exactly two choices: one tolerant and kind (correct), one not.",
				"minItems":    2,
				"maxItems":    2,
				"items": map[string]interface{}{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]interface{}{
						"text":      map[string]interface{}{"type": "string", "description": "The choice text in simple Arabic."},
						"isCorrect": map[string]interface{}{"type": "boolean", "description": "True if this is the tolerant and kind choice."},
						"feedback":  map[string]interface{}{"type": "string", "description": "Feedback shown after this choice, in simple Arabic."},
					},
					"required": []string{"text", "isCorrect", "feedback"},
				},
			},
		},
		"required": []string{"scenarioText", "characterA", "characterB", "choices"},
	}
}
