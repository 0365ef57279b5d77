// Package docs embeds the OpenAPI document served by the swagger UI.
package docs

import _ "embed"

// OpenAPI is the raw OpenAPI 3.0 document describing the HTTP API.
//
//go:embed openapi.json
var OpenAPI []byte
