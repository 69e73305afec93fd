// Package csvingest implements the C2 CSV Ingestor: it parses and
// validates an uploaded CSV stream against a collection's schema and
// produces a normalized jointable.JoinTable (spec §4.2).
package csvingest

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/geoserve/joins/internal/joinerrors"
	"github.com/geoserve/joins/internal/jointable"
	"github.com/geoserve/joins/internal/provider"
)

// UploadedFile is the {name, contentType, buffer} tuple spec §4.2
// expects for the joinFile option.
type UploadedFile struct {
	Name        string
	ContentType string
	Buffer      []byte
}

// Options carries the recognized form options from spec §4.2's table.
// Zero values mean "use the default", except CollectionKey and
// JoinKey, which are required.
type Options struct {
	CollectionKey   string
	JoinKey         string
	JoinFields      string
	CSVDelimiter    string
	CSVHeaderRow    int
	CSVDataStartRow int
}

const (
	defaultDelimiter    = ","
	defaultHeaderRow    = 1
	defaultDataStartRow = 2
)

// Ingest parses file according to opts, validates it against
// collectionID and p, and produces a fresh JoinTable. Any validation
// or parse failure aborts the whole ingest; nothing partial is ever
// returned (spec §4.2 failure semantics).
func Ingest(collectionID string, p provider.Provider, opts Options, file UploadedFile) (jointable.JoinTable, error) {
	if p.Kind() != provider.FeatureKind {
		return jointable.JoinTable{}, joinerrors.New(joinerrors.KindProviderKind, "collection %s is not a feature collection", collectionID)
	}

	if err := validateOptions(&opts, p); err != nil {
		return jointable.JoinTable{}, err
	}

	if file.Name == "" || len(file.Buffer) == 0 {
		return jointable.JoinTable{}, joinerrors.New(joinerrors.KindMissingOption, "joinFile option is required")
	}
	ct := file.ContentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	if ct != "text/csv" && ct != "application/csv" {
		return jointable.JoinTable{}, joinerrors.New(joinerrors.KindContentType, "unsupported content type %q for %s", file.ContentType, file.Name)
	}

	content := strings.ToValidUTF8(string(file.Buffer), string(utf8.RuneError))

	lines := strings.Split(content, "\n")
	totalLines := len(lines)
	if opts.CSVHeaderRow > totalLines || opts.CSVDataStartRow > totalLines {
		return jointable.JoinTable{}, joinerrors.New(joinerrors.KindCSVShape,
			"csvHeaderRow=%d / csvDataStartRow=%d out of bounds for %d lines", opts.CSVHeaderRow, opts.CSVDataStartRow, totalLines)
	}

	delim, _ := utf8.DecodeRuneInString(opts.CSVDelimiter)

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[opts.CSVHeaderRow-1:], "\n")))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = false

	header, err := reader.Read()
	if err != nil {
		return jointable.JoinTable{}, joinerrors.Wrap(joinerrors.KindCSVShape, err)
	}

	headerIndex := make(map[string]int, len(header))
	for i, name := range header {
		if _, exists := headerIndex[name]; !exists {
			headerIndex[name] = i
		}
	}

	joinKeyIdx, ok := headerIndex[opts.JoinKey]
	if !ok {
		return jointable.JoinTable{}, joinerrors.New(joinerrors.KindUnknownJoinKey, "joinKey %q not present in CSV header", opts.JoinKey)
	}

	joinFields, joinFieldIdx := effectiveJoinFields(header, headerIndex, opts.JoinFields, opts.JoinKey, p.Fields())

	// skip csvDataStartRow - csvHeaderRow - 1 rows after the header.
	for i := 0; i < opts.CSVDataStartRow-opts.CSVHeaderRow-1; i++ {
		if _, err := reader.Read(); err != nil {
			break
		}
	}

	data := make(map[string][]string)
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return jointable.JoinTable{}, joinerrors.Wrap(joinerrors.KindCSVShape, err)
		}

		if allBlank(row) {
			continue
		}

		key := ""
		if joinKeyIdx < len(row) {
			key = strings.TrimSpace(row[joinKeyIdx])
		}
		if key == "" {
			return jointable.JoinTable{}, joinerrors.New(joinerrors.KindEmptyKey, "row has an empty join key")
		}
		if _, dup := data[key]; dup {
			return jointable.JoinTable{}, joinerrors.New(joinerrors.KindDuplicateKey, "duplicate join key %q", key)
		}

		values := make([]string, len(joinFieldIdx))
		for i, idx := range joinFieldIdx {
			if idx < len(row) {
				values[i] = row[idx]
			}
		}
		data[key] = values
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return jointable.JoinTable{}, joinerrors.Wrap(joinerrors.KindIO, err)
	}

	return jointable.JoinTable{
		ID:            id.String(),
		TimeStamp:     time.Now().UTC().Format(jointable.TimeFormat),
		CollectionID:  collectionID,
		CollectionKey: opts.CollectionKey,
		JoinSource:    file.Name,
		JoinKey:       opts.JoinKey,
		JoinFields:    joinFields,
		NumberOfRows:  len(data),
		Data:          data,
	}, nil
}

func allBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func effectiveJoinFields(header []string, headerIndex map[string]int, userOption, joinKey string, collectionFields map[string]string) ([]string, []int) {
	excluded := func(name string) bool {
		if name == joinKey {
			return true
		}
		_, collides := collectionFields[name]
		return collides
	}

	var names []string
	if user := splitAndTrim(userOption); len(user) > 0 {
		seen := make(map[string]bool, len(header))
		for _, name := range header {
			seen[name] = true
		}
		for _, name := range user {
			if seen[name] && !excluded(name) {
				names = append(names, name)
			}
		}
	} else {
		for _, name := range header {
			if !excluded(name) {
				names = append(names, name)
			}
		}
	}

	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = headerIndex[name]
	}
	return names, idx
}

func splitAndTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateOptions(opts *Options, p provider.Provider) error {
	if opts.CollectionKey == "" {
		return joinerrors.New(joinerrors.KindMissingOption, "collectionKey option is required")
	}
	if opts.JoinKey == "" {
		return joinerrors.New(joinerrors.KindMissingOption, "joinKey option is required")
	}
	if _, ok := p.KeyFields()[opts.CollectionKey]; !ok {
		return joinerrors.New(joinerrors.KindCollectionKeyNotInProvider, "collectionKey %q is not a declared key field", opts.CollectionKey)
	}

	if opts.CSVDelimiter == "" {
		opts.CSVDelimiter = defaultDelimiter
	}
	if utf8.RuneCountInString(opts.CSVDelimiter) != 1 {
		return joinerrors.New(joinerrors.KindInvalidOption, "csvDelimiter must be exactly one character, got %q", opts.CSVDelimiter)
	}

	if opts.CSVHeaderRow == 0 {
		opts.CSVHeaderRow = defaultHeaderRow
	}
	if opts.CSVHeaderRow < 1 {
		return joinerrors.New(joinerrors.KindInvalidOption, "csvHeaderRow must be >= 1, got %d", opts.CSVHeaderRow)
	}

	if opts.CSVDataStartRow == 0 {
		opts.CSVDataStartRow = defaultDataStartRow
	}
	if opts.CSVDataStartRow <= opts.CSVHeaderRow {
		return joinerrors.New(joinerrors.KindInvalidOption, "csvDataStartRow (%d) must be > csvHeaderRow (%d)", opts.CSVDataStartRow, opts.CSVHeaderRow)
	}

	return nil
}

// ParseOptionsFromForm builds Options from a generic string-keyed form
// (e.g. multipart field values), surfacing InvalidOptionError for
// malformed numerics. Absent options are left at their zero value;
// Ingest replaces those with the defaults.
func ParseOptionsFromForm(form map[string]string) (Options, error) {
	opts := Options{
		CollectionKey: form["collectionKey"],
		JoinKey:       form["joinKey"],
		JoinFields:    form["joinFields"],
		CSVDelimiter:  form["csvDelimiter"],
	}

	if v, ok := form["csvHeaderRow"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, joinerrors.New(joinerrors.KindInvalidOption, "csvHeaderRow must be numeric, got %q", v)
		}
		opts.CSVHeaderRow = n
	}
	if v, ok := form["csvDataStartRow"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, joinerrors.New(joinerrors.KindInvalidOption, "csvDataStartRow must be numeric, got %q", v)
		}
		opts.CSVDataStartRow = n
	}

	return opts, nil
}
