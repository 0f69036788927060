package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"spcguard/internal/config"
	"spcguard/internal/model"
	"spcguard/internal/normalize"
)

var (
	reTimestamp = regexp.MustCompile(`^\s*([0-9]{4}-[0-9]{2}-[0-9]{2}[ T][0-9:.+-Z]+)`)
	reKV        = regexp.MustCompile(`(?i)([a-zA-Z_]+)=([^\s]+)`)
)

// Aliases accepted for each measurement field, in priority order. LIMS
// exports and instrument feeds disagree on naming.
var (
	timestampKeys   = []string{"timestamp", "time", "ts", "measured_at", "analyzed_at", "created_at"}
	parameterKeys   = []string{"parameter_id", "parameter", "param", "qa_parameter_id"}
	measurementKeys = []string{"measurement_id", "id", "analysis_id", "lab_analysis_id"}
	valueKeys       = []string{"value", "value_recorded", "result", "reading"}
	conformingKeys  = []string{"conforming", "conforms", "is_conforming", "in_spec"}
	validKeys       = []string{"valid", "is_valid"}
	batchKeys       = []string{"batch_id", "batch", "lot", "production_batch_id"}
	sampleKeys      = []string{"sample_id", "sample"}
	productKeys     = []string{"product_id", "product"}
	sampleTypeKeys  = []string{"sample_type_id", "sample_type"}
)

var knownKeys = func() map[string]struct{} {
	out := map[string]struct{}{}
	for _, group := range [][]string{timestampKeys, parameterKeys, measurementKeys, valueKeys, conformingKeys, validKeys, batchKeys, sampleKeys, productKeys, sampleTypeKeys} {
		for _, k := range group {
			out[k] = struct{}{}
		}
	}
	return out
}()

type Parser struct {
	csv *CSVParser
}

func NewParser() *Parser {
	return &Parser{csv: NewCSVParser()}
}

// ParseLine returns nil fields for blank lines and CSV headers.
func (p *Parser) ParseLine(line string) (*normalize.MeasurementFields, error) {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return nil, nil
	}
	if looksLikeJSON(trim) {
		if fields, err := parseJSON(trim); err == nil {
			fields.Raw = line
			return fields, nil
		}
	}
	if strings.Contains(trim, ",") && !reKV.MatchString(trim) {
		fields, err := p.csv.Parse(trim)
		if err == nil {
			if fields == nil {
				return nil, nil
			}
			fields.Raw = line
			return fields, nil
		}
	}
	fields, err := parsePlain(trim)
	if err != nil {
		return nil, err
	}
	fields.Raw = line
	return fields, nil
}

// ReadRecords calls fn for every record in r and labels it for error
// messages. A body starting with '[' is one JSON array ("record N"); one
// starting with '{' is a single JSON object or newline-delimited objects;
// anything else is read line by line ("line N"). The returned error means
// the body as a whole could not be read.
func ReadRecords(r io.Reader, parser *Parser, fn func(label string, fields *normalize.MeasurementFields, err error)) error {
	br := bufio.NewReader(r)
	head, _ := br.Peek(512)
	first := bytes.TrimSpace(head)
	if len(first) > 0 && first[0] == '[' {
		data, err := io.ReadAll(br)
		if err != nil {
			return err
		}
		list, err := ParseJSONList(data)
		if err != nil {
			return err
		}
		for i, fields := range list {
			fn(fmt.Sprintf("record %d", i+1), fields, nil)
		}
		return nil
	}
	jsonOnly := len(first) > 0 && first[0] == '{'
	var body io.Reader = br
	if jsonOnly {
		data, err := io.ReadAll(br)
		if err != nil {
			return err
		}
		if fields, err := ParseJSONBytes(data); err == nil {
			fn("record 1", fields, nil)
			return nil
		}
		body = bytes.NewReader(data)
	}
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 8192), maxStreamLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		var (
			fields *normalize.MeasurementFields
			err    error
		)
		if jsonOnly {
			if strings.TrimSpace(line) == "" {
				continue
			}
			fields, err = ParseJSONBytes([]byte(line))
		} else {
			fields, err = parser.ParseLine(line)
		}
		if err == nil && fields == nil {
			continue
		}
		fn(fmt.Sprintf("line %d", lineNo), fields, err)
	}
	return scanner.Err()
}

// ParseReader normalizes every record of an export. Excluded records are
// dropped silently; the others that fail are reported with their location.
func ParseReader(r io.Reader, parser *Parser, cfg *config.Config) ([]model.Measurement, []error) {
	var (
		out  []model.Measurement
		errs []error
	)
	err := ReadRecords(r, parser, func(label string, fields *normalize.MeasurementFields, err error) {
		if err == nil {
			var m model.Measurement
			if m, err = normalize.Normalize(*fields, cfg); err == nil {
				m.Source = "file"
				out = append(out, m)
				return
			}
		}
		if !errors.Is(err, normalize.ErrExcluded) {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
	})
	if err != nil {
		errs = append(errs, err)
	}
	return out, errs
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func parseJSON(line string) (*normalize.MeasurementFields, error) {
	return ParseJSONBytes([]byte(line))
}

// parsePlain handles key=value lines such as
// "2026-02-23 12:34:56 ph value=3.41 batch=L12". A bare token after the
// timestamp names the parameter.
func parsePlain(line string) (*normalize.MeasurementFields, error) {
	ts, rest := extractTimestamp(line)
	kv := map[string]string{}
	for _, match := range reKV.FindAllStringSubmatch(line, -1) {
		kv[strings.ToLower(match[1])] = match[2]
	}
	fields := fieldsFromMap(kv)
	if fields.Timestamp == "" {
		fields.Timestamp = ts
	}
	if fields.ParameterID == "" && rest != "" {
		tokens := strings.Fields(rest)
		if len(tokens) > 0 && !strings.Contains(tokens[0], "=") {
			fields.ParameterID = tokens[0]
		}
	}
	if fields.Value == "" {
		return nil, fmt.Errorf("%w: no value in %q", model.ErrInvalidMeasurement, line)
	}
	return fields, nil
}

func extractTimestamp(line string) (string, string) {
	m := reTimestamp.FindStringSubmatchIndex(line)
	if len(m) >= 4 {
		ts := strings.TrimSpace(line[m[2]:m[3]])
		rest := strings.TrimSpace(line[m[3]:])
		return ts, rest
	}
	return "", line
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

// fieldsFromMap expects lower-cased keys. Unknown keys land in Extras.
func fieldsFromMap(kv map[string]string) *normalize.MeasurementFields {
	fields := &normalize.MeasurementFields{
		Timestamp:     firstNonEmpty(kv, timestampKeys...),
		ParameterID:   firstNonEmpty(kv, parameterKeys...),
		MeasurementID: firstNonEmpty(kv, measurementKeys...),
		Value:         firstNonEmpty(kv, valueKeys...),
		Conforming:    firstNonEmpty(kv, conformingKeys...),
		Valid:         firstNonEmpty(kv, validKeys...),
		BatchID:       firstNonEmpty(kv, batchKeys...),
		SampleID:      firstNonEmpty(kv, sampleKeys...),
		ProductID:     firstNonEmpty(kv, productKeys...),
		SampleTypeID:  firstNonEmpty(kv, sampleTypeKeys...),
		Extras:        map[string]string{},
	}
	for k, v := range kv {
		if _, ok := knownKeys[k]; !ok {
			fields.Extras[k] = v
		}
	}
	return fields
}

type CSVParser struct {
	header []string
}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse reads one CSV record. The first record naming a known column is
// taken as the header; without one, columns are positional:
// timestamp, parameter_id, value, batch_id, sample_id.
func (p *CSVParser) Parse(line string) (*normalize.MeasurementFields, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return nil, err
	}
	if len(record) == 0 {
		return nil, nil
	}
	if p.header == nil && looksLikeHeader(record) {
		p.header = normalizeHeader(record)
		return nil, nil
	}
	if p.header != nil {
		kv := make(map[string]string, len(p.header))
		for i, name := range p.header {
			if i >= len(record) {
				break
			}
			kv[name] = strings.TrimSpace(record[i])
		}
		return fieldsFromMap(kv), nil
	}
	fields := &normalize.MeasurementFields{Extras: map[string]string{}}
	positional := []*string{&fields.Timestamp, &fields.ParameterID, &fields.Value, &fields.BatchID, &fields.SampleID}
	for i, dst := range positional {
		if i >= len(record) {
			break
		}
		*dst = strings.TrimSpace(record[i])
	}
	return fields, nil
}

func looksLikeHeader(record []string) bool {
	for _, v := range record {
		if _, ok := knownKeys[strings.ToLower(strings.TrimSpace(v))]; ok {
			return true
		}
	}
	return false
}

func normalizeHeader(record []string) []string {
	out := make([]string, len(record))
	for i, v := range record {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}
