package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fulmenhq/contentpack/internal/assets"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Path    string `json:"path,omitempty"` // e.g. "gates.schema"
	Message string `json:"message"`
}

// Result holds the validation result.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Error joins the validation errors into one message.
func (r *Result) Error() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, e.Path+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

// Schema names understood by Validate.
const (
	PolicyV1   = "policy-v1"
	RegistryV1 = "registry-v1"
	ManifestV1 = "manifest-v1"
)

// registry holds pre-compiled schemas for the embedded schema names.
var registry = make(map[string]*gojsonschema.Schema)

func init() {
	for _, name := range assets.SchemaNames() {
		data, ok := assets.GetSchema(name)
		if !ok {
			continue
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			// Skip on error; Validate reports the schema as unknown
			continue
		}
		registry[name] = compiled
	}
}

// Validate validates data (interface{}) against the named embedded schema.
func Validate(data interface{}, schemaName string) (*Result, error) {
	compiled, ok := registry[schemaName]
	if !ok {
		return nil, fmt.Errorf("schema %s not found in registry", schemaName)
	}
	return run(compiled, gojsonschema.NewGoLoader(data))
}

// Compiled wraps a schema compiled from a user-supplied file.
type Compiled struct {
	path   string
	schema *gojsonschema.Schema
}

// CompileFile compiles a JSON or YAML schema document from disk.
func CompileFile(path string) (*Compiled, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the registry document
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	doc, err := DecodeDocument(path, data)
	if err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", path, err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", path, err)
	}
	return &Compiled{path: path, schema: compiled}, nil
}

// Path returns the schema file the Compiled was built from.
func (c *Compiled) Path() string { return c.path }

// Validate checks a decoded document against the compiled schema.
func (c *Compiled) Validate(data interface{}) (*Result, error) {
	return run(c.schema, gojsonschema.NewGoLoader(data))
}

func run(s *gojsonschema.Schema, doc gojsonschema.JSONLoader) (*Result, error) {
	result, err := s.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	res := &Result{Valid: result.Valid()}
	for _, verr := range result.Errors() {
		field := verr.Field()
		if field == "" || field == "(root)" {
			field = "root"
		}
		res.Errors = append(res.Errors, ValidationError{Path: field, Message: verr.Description()})
	}
	sort.SliceStable(res.Errors, func(i, j int) bool {
		if res.Errors[i].Path != res.Errors[j].Path {
			return res.Errors[i].Path < res.Errors[j].Path
		}
		return res.Errors[i].Message < res.Errors[j].Message
	})
	return res, nil
}

// DecodeDocument decodes YAML, JSON, JSONC or TOML into generic Go values,
// picking the parser from the file extension. Unknown extensions are read as YAML,
// which also covers plain JSON.
func DecodeDocument(path string, data []byte) (interface{}, error) {
	var doc interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var m map[string]interface{}
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
		doc = m
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("document is empty")
	}
	return doc, nil
}

// LoadDocument decodes a document, validates it against the named embedded
// schema and unmarshals it into out through its JSON tags.
func LoadDocument(path string, data []byte, schemaName string, out interface{}) error {
	doc, err := DecodeDocument(path, data)
	if err != nil {
		return err
	}
	res, err := Validate(doc, schemaName)
	if err != nil {
		return err
	}
	if !res.Valid {
		return fmt.Errorf("schema %s: %s", schemaName, res.Error())
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
