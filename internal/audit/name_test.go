package audit

import (
	"regexp"
	"testing"

	"github.com/Veraticus/courier/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestParseName(t *testing.T) {
	pattern := regexp.MustCompile(config.DefaultNamePattern)

	tests := []struct {
		name       string
		input      string
		wantValid  bool
		wantParsed bool
		wantEmp    string
		wantSet    string
		wantSeq    int
	}{
		{name: "three segments", input: "E001_20260116_UG", wantValid: true, wantParsed: true, wantEmp: "E001", wantSet: "UG"},
		{name: "four segments", input: "E001_20260116_UG_3", wantValid: true, wantParsed: true, wantEmp: "E001", wantSet: "UG", wantSeq: 3},
		{name: "bad date matching regex", input: "E001_20261301_UG", wantParsed: true, wantEmp: "E001", wantSet: "UG"},
		{name: "near miss three segments", input: "E001_2026_UG", wantParsed: true, wantEmp: "E001", wantSet: "UG"},
		{name: "near miss four segments", input: "E-001_20260116_UG_x", wantParsed: true, wantEmp: "E-001", wantSet: "UG"},
		{name: "two segments", input: "E001_20260116"},
		{name: "five segments", input: "E001_20260116_UG_1_2"},
		{name: "no separators", input: "randomfolder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseName(tt.input, pattern)

			assert.Equal(t, tt.wantValid, got.Valid)
			assert.Equal(t, tt.wantParsed, got.Parsed)
			assert.Equal(t, tt.wantEmp, got.Fields.EmployeeID)
			assert.Equal(t, tt.wantSet, got.Fields.Dataset)
			assert.Equal(t, tt.wantSeq, got.Fields.Sequence)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestParseName_NoFieldsForWrongSegmentCount(t *testing.T) {
	got := ParseName("a_b", regexp.MustCompile(config.DefaultNamePattern))
	assert.Equal(t, msgNameWrong, got.Message)
	assert.Zero(t, got.Fields)
}
