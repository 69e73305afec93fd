// Package enrich implements the C4 Enricher: an in-place left-merge of
// a jointable.JoinTable into a feature or feature collection at query
// time (spec §4.4).
package enrich

import (
	"fmt"
	"strconv"

	"github.com/geoserve/joins/internal/jointable"
	"github.com/geoserve/joins/internal/provider"
)

// Feature mutates f.Properties in place, appending table.JoinFields
// for the row matching f's CollectionKey value, and sets f.Joined. A
// feature with no matching row gets no new properties.
//
// A missing CollectionKey on the feature is tolerated silently: it
// coerces to "", which never matches a data row (spec Open Questions
// §9 resolves this in favor of the source's existing behavior).
func Feature(f *provider.Feature, table *jointable.JoinTable) {
	if f.Properties == nil {
		f.Properties = map[string]any{}
	}

	key := stringifyKey(f.Properties[table.CollectionKey])
	row, ok := table.Data[key]

	if ok {
		for i, field := range table.JoinFields {
			var value string
			if i < len(row) {
				value = row[i]
			}
			f.Properties[field] = value
		}
	}

	f.Joined = ok && len(row) > 0
}

// FeatureCollection enriches every feature in fc and sets
// fc.NumberJoined to the count of matched features.
func FeatureCollection(fc *provider.FeatureCollection, table *jointable.JoinTable) {
	matched := 0
	for i := range fc.Features {
		Feature(&fc.Features[i], table)
		if fc.Features[i].Joined {
			matched++
		}
	}
	fc.NumberJoined = matched
}

// stringifyKey coerces a feature property value to the canonical
// string form used as a JoinTable.Data key. Numeric values are
// coerced to their canonical string form; nil / missing coerces to "".
func stringifyKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
