package handlers

import "github.com/xeipuuv/gojsonschema"

// Unknown keys are rejected everywhere so that a typoed option fails loudly
// instead of silently falling back to its default.
const optionsSchemaDefinition = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"target_count": {"type": "integer", "minimum": 1, "maximum": 20},
		"min_sec": {"type": "number", "exclusiveMinimum": 0},
		"max_sec": {"type": "number", "exclusiveMinimum": 0},
		"language": {"type": "string", "minLength": 2, "maxLength": 8},
		"whisper_model": {"type": "string", "enum": ["tiny", "base", "small", "medium"]},
		"force_rule_based": {"type": "boolean"},
		"subtitle_style": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"size": {"type": "integer", "minimum": 8, "maximum": 72},
				"color": {"type": "string", "maxLength": 16}
			}
		}
	}
}`

const createJobSchemaDefinition = `{
	"type": "object",
	"additionalProperties": false,
	"required": ["source_type"],
	"properties": {
		"source_type": {"type": "string", "enum": ["drive", "url"]},
		"drive_file_id": {"type": "string", "minLength": 1, "maxLength": 256},
		"source_url": {"type": "string", "minLength": 1, "maxLength": 2048},
		"title_hint": {"type": "string", "maxLength": 200},
		"idempotency_key": {"type": "string", "minLength": 1, "maxLength": 128},
		"options": ` + optionsSchemaDefinition + `
	}
}`

const retryJobSchemaDefinition = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"options": ` + optionsSchemaDefinition + `
	}
}`

var inputSchemas = map[string]string{
	"CreateJob": createJobSchemaDefinition,
	"RetryJob":  retryJobSchemaDefinition,
}

func compileJsonSchemas() map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(inputSchemas))
	for name, text := range inputSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(text))
		if err != nil {
			// panic on program start, the schema text is a constant
			panic(err)
		}
		compiled[name] = schema
	}
	return compiled
}

var inputSchemasCompiled = compileJsonSchemas()
