package importer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/subwatch/subwatch/internal/engine"
)

// SimpleJSONFormat is a minimal JSON format for importing transactions
// Example:
//
//	{
//	  "transactions": [
//	    {"date": "2025-01-15", "merchant": "Netflix", "amount": -99.00},
//	    {"date": "2025-02-15", "merchant": "Netflix", "amount": -99.00}
//	  ]
//	}
//
// Per-record field names are free-form; the normalizer resolves them through
// its alias lists, so any bank export converted to this envelope works.
type SimpleJSONFormat struct {
	Transactions []engine.RawRecord `json:"transactions"`
}

// ParseSimpleJSON parses a JSON file in the simple JSON format
func ParseSimpleJSON(path string) ([]engine.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var jsonData SimpleJSONFormat
	if err := json.Unmarshal(data, &jsonData); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	return jsonData.Transactions, nil
}
