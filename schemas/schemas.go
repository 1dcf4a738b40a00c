// Package schemas embeds the JSON Schemas of the purple output contract.
package schemas

import _ "embed"

// MetadataSchemaJSON describes metadata.json.
//
//go:embed metadata.schema.json
var MetadataSchemaJSON string

// RecordSchemaJSON describes one data.jsonl record.
//
//go:embed record.schema.json
var RecordSchemaJSON string
