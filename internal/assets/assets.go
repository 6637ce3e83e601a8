package assets

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

// Default gate policy shipped with the binary.

//go:embed embedded_policy/default-policy.yaml
var DefaultPolicy []byte

//go:embed embedded_schemas
var Schemas embed.FS

// GetSchemasFS returns the schema tree rooted at embedded_schemas.
func GetSchemasFS() fs.FS {
	if sub, err := fs.Sub(Schemas, "embedded_schemas"); err == nil {
		return sub
	}
	return Schemas
}

// GetSchema returns the embedded schema bytes for a name such as "policy-v1".
func GetSchema(name string) ([]byte, bool) {
	data, err := fs.ReadFile(GetSchemasFS(), name+".json")
	return data, err == nil
}

// SchemaNames lists the embedded schemas, sorted.
func SchemaNames() []string {
	entries, err := fs.ReadDir(GetSchemasFS(), ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names
}
