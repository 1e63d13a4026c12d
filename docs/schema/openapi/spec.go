// Package openapi embeds the OpenAPI description of the HTTP API.
package openapi

import _ "embed"

// Document holds the raw arboria.yaml contents.
//
//go:embed arboria.yaml
var Document []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), Document...)
}
