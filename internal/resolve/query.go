package resolve

import (
	"strings"

	"github.com/sells-group/geocode-cli/internal/model"
)

// BuildQuery assembles the one-line address query for a record. The
// street portion joins STADDR and STADDR2 with a single space and is
// trimmed of surrounding whitespace; CITY, STATE and ZIP are appended
// as they appear in the input.
func BuildQuery(rec model.Record) string {
	street := strings.TrimSpace(rec.Get(model.ColStreet))
	if unit := strings.TrimSpace(rec.Get(model.ColStreet2)); unit != "" {
		street = strings.TrimSpace(street + " " + unit)
	}
	return street + ", " + rec.Get(model.ColCity) + ", " + rec.Get(model.ColState) + " " + rec.Get(model.ColZip)
}
