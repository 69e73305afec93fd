// Package jointable holds the data model shared by every Join Manager
// component: the materialized join source (JoinTable) and the
// lightweight side-index record that points at it (SourceRef).
package jointable

import "time"

// TimeFormat is the ISO-8601 layout persisted tables use for
// TimeStamp, matching the wire format in spec §6 ("YYYY-MM-DDTHH:MM:SS.ffffffZ").
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// JoinTable is the materialized right-hand side of a left-join: a
// keyed lookup table built from a single CSV upload. Once persisted it
// is never mutated; it is only ever read, or replaced wholesale by
// Remove + a new ProcessCSV.
type JoinTable struct {
	ID            string              `json:"id"`
	TimeStamp     string              `json:"timeStamp"`
	CollectionID  string              `json:"collectionId"`
	CollectionKey string              `json:"collectionKey"`
	JoinSource    string              `json:"joinSource"`
	JoinKey       string              `json:"joinKey"`
	JoinFields    []string            `json:"joinFields"`
	NumberOfRows  int                 `json:"numberOfRows"`
	Data          map[string][]string `json:"data"`
}

// CreatedAt parses TimeStamp, returning the zero time if it is
// malformed (callers treat that as "oldest").
func (t *JoinTable) CreatedAt() time.Time {
	ts, err := time.Parse(TimeFormat, t.TimeStamp)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// SourceRef is the side-index's lightweight pointer record: enough to
// list and locate a JoinTable without decoding its JSON file.
type SourceRef struct {
	ID           string `json:"id"`
	CollectionID string `json:"collectionId"`
	TimeStamp    string `json:"timeStamp"`
	JoinSource   string `json:"joinSource"`
	Ref          string `json:"ref"`
}

func (r *SourceRef) CreatedAt() time.Time {
	ts, err := time.Parse(TimeFormat, r.TimeStamp)
	if err != nil {
		return time.Time{}
	}
	return ts
}
