package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveDecisionTable(t *testing.T) {
	tests := []struct {
		level         Level
		softMode      bool
		downgradeable bool
		want          Severity
	}{
		{Soft, false, false, SeverityWarning},
		{Soft, true, false, SeverityWarning},
		{Soft, false, true, SeverityWarning},
		{Soft, true, true, SeverityWarning},
		{Hard, false, false, SeverityBlocking},
		{Hard, false, true, SeverityBlocking},
		{Hard, true, false, SeverityBlocking},
		{Hard, true, true, SeverityWarning},
	}
	for _, tt := range tests {
		got := Resolve(tt.level, tt.softMode, tt.downgradeable)
		assert.Equal(t, tt.want, got, "level=%s soft=%v downgradeable=%v", tt.level, tt.softMode, tt.downgradeable)
	}
}
