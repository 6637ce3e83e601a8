package buildinfo

import (
	"strings"
	"testing"
)

func TestBinaryVersion(t *testing.T) {
	if BinaryVersion != "dev" {
		t.Errorf("Expected BinaryVersion to be 'dev', got '%s'", BinaryVersion)
	}
}

func TestModuleVersion(t *testing.T) {
	version := ModuleVersion()
	if version == "" {
		t.Log("ModuleVersion returned empty string (build info not available)")
		return
	}
	if len(version) < 2 {
		t.Errorf("ModuleVersion seems too short: '%s'", version)
	}
}

func TestGenerator(t *testing.T) {
	if got := Generator(); !strings.HasPrefix(got, "contentpack/") {
		t.Errorf("Generator() = %q", got)
	}
}
