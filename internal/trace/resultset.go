package trace

import (
	"encoding/json"
	"strings"
)

// resultSetDocument matches the Athena-style payload that action group tools
// return inside their output text.
type resultSetDocument struct {
	Result struct {
		ResultSet struct {
			Rows []struct {
				Data []struct {
					VarCharValue string `json:"VarCharValue"`
				} `json:"Data"`
			} `json:"Rows"`
		} `json:"ResultSet"`
	} `json:"result"`
}

// flattenResultSet renders a tool-output result set as pipe-joined rows, one
// per line. Unparseable input yields a placeholder rather than an error: tool
// output is display content and must never abort the turn.
func flattenResultSet(raw string) string {
	var doc resultSetDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return invalidResultJSON
	}

	var lines []string
	for _, row := range doc.Result.ResultSet.Rows {
		cells := make([]string, len(row.Data))
		for i, d := range row.Data {
			cells[i] = d.VarCharValue
		}
		lines = append(lines, strings.Join(cells, " | "))
	}

	joined := strings.Join(lines, "\n")
	if joined == "" {
		return noTextContent
	}
	return joined
}
