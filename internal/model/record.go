package model

// Canonical column names for input files. Header order is not
// significant, but names must match exactly (after field-map aliasing).
const (
	ColName    = "NAME"
	ColDBA     = "DBA"
	ColStreet  = "STADDR"
	ColStreet2 = "STADDR2"
	ColCity    = "CITY"
	ColState   = "STATE"
	ColZip     = "ZIP"

	// Enrichment columns appended by a geocoding run.
	ColMatchAddr = "MATCH_ADDR"
	ColLatY      = "LAT_Y"
	ColLongX     = "LONG_X"
)

// RequiredColumns must all be present in the input header.
var RequiredColumns = []string{
	ColName, ColDBA, ColStreet, ColStreet2, ColCity, ColState, ColZip,
}

// OutputColumns is the fixed output column order. Every written row
// must supply exactly these keys.
var OutputColumns = []string{
	ColName, ColDBA, ColStreet, ColStreet2, ColCity, ColState, ColZip,
	ColMatchAddr, ColLatY, ColLongX,
}

// Record is one input row keyed by header column name. Row is the
// 1-based position in the source file; the header occupies row 1, so
// the first data record is row 2.
type Record struct {
	Row    int               `json:"row"`
	Fields map[string]string `json:"fields"`
}

// Get returns the value of a column, or "" when absent.
func (r Record) Get(col string) string {
	return r.Fields[col]
}

// Enriched merges the record's input fields with geocode output into
// a row holding exactly the output column set. Unmatched rows pass
// empty strings.
func (r Record) Enriched(matchAddr, latY, longX string) map[string]string {
	out := make(map[string]string, len(OutputColumns))
	for _, col := range RequiredColumns {
		out[col] = r.Fields[col]
	}
	out[ColMatchAddr] = matchAddr
	out[ColLatY] = latY
	out[ColLongX] = longX
	return out
}
