// Package provider defines the minimum capability surface the Join
// Manager requires from a feature collection backend (PostGIS, GeoJSON
// files, etc.). The backend itself lives outside this repository; only
// the contract it must satisfy does.
package provider

// Kind identifies the shape of data a collection serves.
type Kind string

const (
	// FeatureKind is the only kind the Join Manager can operate on.
	FeatureKind Kind = "feature"
	// CoverageKind is any non-feature collection; joins are refused.
	CoverageKind Kind = "coverage"
)

// KeyField describes one candidate join key on the feature side.
type KeyField struct {
	Type    string
	Default bool
}

// Provider is the capability set a collection backend exposes to the
// Join Manager. Collections that are not FeatureKind cannot be joined.
type Provider interface {
	// Kind reports what shape of data this collection serves.
	Kind() Kind

	// KeyFields returns the fields eligible as a CollectionKey, keyed
	// by field name.
	KeyFields() map[string]KeyField

	// Fields returns the full feature-attribute schema (name -> type),
	// used to exclude colliding join fields.
	Fields() map[string]string
}

// Feature is a single georeferenced record: a geometry plus an
// attribute bag. Geometry is left untyped (json.RawMessage-compatible
// any) since the Join Manager never inspects it.
type Feature struct {
	Type       string         `json:"type,omitempty"`
	Geometry   any            `json:"geometry,omitempty"`
	Properties map[string]any `json:"properties"`
	Joined     bool           `json:"joined,omitempty"`
}

// FeatureCollection is a list of Features plus the join bookkeeping
// field the Enricher populates.
type FeatureCollection struct {
	Type         string    `json:"type"`
	Features     []Feature `json:"features"`
	NumberJoined int       `json:"numberJoined,omitempty"`
}

// MemoryProvider is an in-memory Provider, useful for tests and for the
// reference HTTP server in cmd/joinserver. Real deployments back this
// interface with a PostGIS or GeoJSON-file provider instead.
type MemoryProvider struct {
	KeyFieldsMap map[string]KeyField
	FieldsMap    map[string]string
}

var _ Provider = (*MemoryProvider)(nil)

func (m *MemoryProvider) Kind() Kind { return FeatureKind }

func (m *MemoryProvider) KeyFields() map[string]KeyField { return m.KeyFieldsMap }

func (m *MemoryProvider) Fields() map[string]string { return m.FieldsMap }
