// Package openapi embeds the OpenAPI document for the ride-duration API.
// It is served at /openapi.yaml by the HTTP server.
package openapi

import _ "embed"

// Document contains the raw bytes of openapi.yaml, embedded at compile time.
//
//go:embed openapi.yaml
var Document []byte
