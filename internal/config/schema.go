package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const arenasSchemaURL = "mem://arenas.schema.json"

const arenasSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["arenas"],
  "additionalProperties": false,
  "properties": {
    "arenas": {
      "type": "array",
      "items": { "$ref": "#/$defs/arena" }
    }
  },
  "$defs": {
    "location": {
      "type": "object",
      "required": ["x", "y", "z"],
      "additionalProperties": false,
      "properties": {
        "world": { "type": "string" },
        "x": { "type": "number" },
        "y": { "type": "number" },
        "z": { "type": "number" }
      }
    },
    "vec": {
      "type": "array",
      "items": { "type": "integer" },
      "minItems": 3,
      "maxItems": 3
    },
    "money": {
      "oneOf": [
        { "type": "number", "minimum": 0 },
        { "type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$" }
      ]
    },
    "commands": { "type": "array", "items": { "type": "string" } },
    "arena": {
      "type": "object",
      "required": ["key", "kind"],
      "additionalProperties": false,
      "properties": {
        "key": { "type": "string", "pattern": "^[a-z0-9_-]+$" },
        "display_name": { "type": "string" },
        "kind": { "enum": ["FFA", "TEAMS"] },
        "enabled": { "type": "boolean" },
        "min_players": { "type": "integer", "minimum": 2 },
        "max_players": { "type": "integer", "minimum": 0 },
        "bet": { "$ref": "#/$defs/money" },
        "death_y": { "type": "number" },
        "game_time_seconds": { "type": "integer", "minimum": 1 },
        "countdown_seconds": { "type": "integer", "minimum": 1 },
        "countdown_milestones": { "type": "array", "items": { "type": "integer", "minimum": 1 } },
        "poll_interval_ticks": { "type": "integer", "minimum": 1 },
        "require_empty_inventory": { "type": "boolean" },
        "regenerate_before_countdown": { "type": "boolean" },
        "spectate_min_alive": { "type": "integer", "minimum": 1 },
        "lobby": { "$ref": "#/$defs/location" },
        "spawn": { "$ref": "#/$defs/location" },
        "anchor": { "$ref": "#/$defs/location" },
        "teams": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "size"],
            "additionalProperties": false,
            "properties": {
              "id": { "type": "string", "minLength": 1 },
              "size": { "type": "integer", "minimum": 1 },
              "spawn": { "$ref": "#/$defs/location" }
            }
          }
        },
        "rewards": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["place"],
            "additionalProperties": false,
            "properties": {
              "place": { "type": "integer", "minimum": 1 },
              "money": { "$ref": "#/$defs/money" },
              "commands": { "$ref": "#/$defs/commands" }
            }
          }
        },
        "commands": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "on_fill": { "$ref": "#/$defs/commands" },
            "on_start": { "$ref": "#/$defs/commands" }
          }
        },
        "abilities": {
          "type": "object",
          "additionalProperties": { "type": "integer", "minimum": 0 }
        },
        "region": {
          "type": "object",
          "required": ["min", "max"],
          "additionalProperties": false,
          "properties": {
            "min": { "$ref": "#/$defs/vec" },
            "max": { "$ref": "#/$defs/vec" },
            "floors": {
              "type": "array",
              "items": {
                "type": "object",
                "required": ["y"],
                "additionalProperties": false,
                "properties": {
                  "y": { "type": "integer" },
                  "block": { "type": "integer", "minimum": 1, "maximum": 65535 }
                }
              }
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString(arenasSchemaURL, arenasSchema)
	})
	return schema, schemaErr
}

// validateYAML checks a raw arenas document against the schema. The YAML tree is
// round-tripped through JSON so numbers and maps have the shapes the validator expects.
func validateYAML(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
