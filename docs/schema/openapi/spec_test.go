package openapi

import (
	"bytes"
	"os"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSpecReturnsCopyAndMatchesFile(t *testing.T) {
	want, err := os.ReadFile("arboria.yaml")
	if err != nil {
		t.Fatalf("read arboria.yaml: %v", err)
	}
	spec := Spec()
	if !bytes.Equal(spec, want) {
		t.Fatalf("Spec does not match embedded OpenAPI contents")
	}
	spec[0] ^= 0xFF
	if bytes.Equal(spec, Document) {
		t.Fatalf("Spec did not return a copy")
	}
}

func TestSpecDescribesCoreRoutes(t *testing.T) {
	var doc struct {
		OpenAPI string                    `yaml:"openapi"`
		Info    struct{ Version string }  `yaml:"info"`
		Paths   map[string]map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal(Spec(), &doc); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.OpenAPI == "" || doc.Info.Version == "" {
		t.Fatalf("missing header fields: %+v", doc)
	}
	for path, method := range map[string]string{
		"/api/farms":                    "post",
		"/api/trees":                    "post",
		"/api/trees/duplicate":          "post",
		"/api/interventions":            "post",
		"/api/statistics/{farmID}":      "get",
		"/api/import":                   "post",
		"/api/archives/{id}/restore":    "post",
		"/api/farms/{id}/trees.geojson": "get",
	} {
		if _, ok := doc.Paths[path][method]; !ok {
			t.Errorf("%s %s not documented", method, path)
		}
	}
}
