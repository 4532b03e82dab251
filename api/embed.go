// Package api holds the OpenAPI description of the HTTP surface.
package api

import _ "embed"

// OpenAPI is the YAML document served at /swagger/spec.
//
//go:embed openapi.yaml
var OpenAPI []byte
