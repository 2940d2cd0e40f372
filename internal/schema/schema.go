// Package schema holds the JSON schema of the machine readable apply report.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed report.schema.json
var reportSchema []byte

// ReportSchema returns a fresh decoded copy of the apply report schema.
func ReportSchema() (map[string]any, error) {
	var schemaMap map[string]any
	if err := json.Unmarshal(reportSchema, &schemaMap); err != nil {
		return nil, fmt.Errorf("schema: decode report schema: %w", err)
	}
	return schemaMap, nil
}
