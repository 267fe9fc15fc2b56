// Package filter implements the per-search predicate applied to fetched
// listings. Gender and category narrow the remote query before any fetch;
// this predicate only decides size matching on the results.
package filter

import (
	"fmt"
	"strings"

	"github.com/mhorvath/vintedwatch/internal/model"
)

// compositeSep splits size labels that cover several sizes, e.g. "S / M".
const compositeSep = " / "

// Matches reports whether the listing satisfies the filter, with a short
// reason usable in debug logs. Size filtering applies only to clothing
// searches that name at least one target size; every other combination
// matches unconditionally.
func Matches(f model.Filter, l model.Listing) (bool, string) {
	if f.Category != model.CategoryClothing || len(f.Sizes) == 0 {
		return true, "all filters matched"
	}

	label := strings.ToUpper(strings.TrimSpace(l.Size))
	if label == "" {
		return false, "size missing"
	}

	parts := strings.Split(label, compositeSep)
	for _, want := range f.Sizes {
		want = strings.ToUpper(want)
		if want == label {
			return true, "all filters matched"
		}
		for _, part := range parts {
			if want == part {
				return true, "all filters matched"
			}
		}
	}
	return false, fmt.Sprintf("size mismatch: %s", label)
}
