// Package schemas embeds the JSON Schemas used to validate stepforge files.
package schemas

import _ "embed"

// PipelineV1Schema is the JSON Schema for stepforge.yaml.
//
//go:embed pipeline.schema.json
var PipelineV1Schema []byte
