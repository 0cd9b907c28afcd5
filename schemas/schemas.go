// Package schemas holds the embedded JSON Schemas for persisted data.
package schemas

import _ "embed"

// MessageSchemaJSON is the JSON Schema for a single transcript message.
//
//go:embed message.schema.json
var MessageSchemaJSON string
