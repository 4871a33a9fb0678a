// Package docs embeds the OpenAPI document served by the API.
package docs

import (
	_ "embed"
)

// OpenAPISpec contains the embedded OpenAPI document in YAML format.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
