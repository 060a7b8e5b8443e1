/*
Package nutrition extracts the structured nutrition block that the meal plan
assistant embeds in its final reply.
*/
package nutrition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	OpenTag  = "<json>"
	CloseTag = "</json>"
)

var (
	// (?s) lets the block span lines; .*? stops at the first closing tag.
	blockPattern  = regexp.MustCompile(`(?s)<json>(.*?)</json>`)
	fencePattern  = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	leadingNumber = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)`)
)

// Status is the outcome of an extraction.
type Status string

const (
	StatusOK         Status = "ok"
	StatusAbsent     Status = "absent"
	StatusParseError Status = "parse_error"
)

// Record is one row of the nutrition table.
type Record struct {
	Date          string  `json:"date"`
	Meal          string  `json:"meal"`
	FatPercent    float64 `json:"fat_percent"`
	CalorieIntake float64 `json:"calorie_intake"`
	Sugar         float64 `json:"sugar"`
}

// rawRecord mirrors the keys the assistant is instructed to emit.
type rawRecord struct {
	Date          json.RawMessage `json:"Date"`
	Meal          json.RawMessage `json:"Meal"`
	FatPercent    json.RawMessage `json:"Fat%"`
	CalorieIntake json.RawMessage `json:"Calorie Intake"`
	Sugar         json.RawMessage `json:"Sugar"`
}

// ParseError reports a data block that was found but could not be decoded.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("nutrition data block is malformed: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is the outcome of Extract. Absent and ParseError are separate states
// so callers can tell "no data" apart from "unusable data".
type Result struct {
	Status  Status
	Records []Record
	Err     *ParseError
}

// Found reports whether a data block was present, parsed or not.
func (r Result) Found() bool {
	return r.Status != StatusAbsent
}

// MarshalJSON flattens the parse error into a message.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Status  Status   `json:"status"`
		Records []Record `json:"records"`
		Error   string   `json:"error,omitempty"`
	}{Status: r.Status, Records: r.Records}
	if out.Records == nil {
		out.Records = []Record{}
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Extract finds the first <json>...</json> block in text and decodes it into
// records, keeping source order. A single object is treated as one record.
func Extract(text string) Result {
	m := blockPattern.FindStringSubmatch(text)
	if m == nil {
		return Result{Status: StatusAbsent}
	}

	payload := strings.TrimSpace(m[1])
	if fm := fencePattern.FindStringSubmatch(payload); fm != nil {
		payload = strings.TrimSpace(fm[1])
	}

	records, err := parsePayload([]byte(payload))
	if err != nil {
		return Result{Status: StatusParseError, Err: &ParseError{Payload: payload, Err: err}}
	}
	return Result{Status: StatusOK, Records: records}
}

func parsePayload(payload []byte) ([]Record, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty data block")
	}

	var raws []rawRecord
	if payload[0] == '{' {
		var single rawRecord
		if err := strictUnmarshal(payload, &single); err != nil {
			return nil, err
		}
		raws = []rawRecord{single}
	} else if err := strictUnmarshal(payload, &raws); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := raw.record()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// strictUnmarshal rejects trailing content after the first JSON value.
func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected content after JSON value")
	}
	return nil
}

func (r rawRecord) record() (Record, error) {
	var (
		rec Record
		err error
	)
	rec.Date = textValue(r.Date)
	rec.Meal = textValue(r.Meal)
	if rec.FatPercent, err = numberValue("Fat%", r.FatPercent); err != nil {
		return Record{}, err
	}
	if rec.CalorieIntake, err = numberValue("Calorie Intake", r.CalorieIntake); err != nil {
		return Record{}, err
	}
	if rec.Sugar, err = numberValue("Sugar", r.Sugar); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// textValue returns strings unquoted and any other JSON value verbatim.
func textValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}

// numberValue accepts JSON numbers and strings that start with a number
// ("20%", "450 kcal"). Missing and null values are zero.
func numberValue(field string, raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%s: expected a number, got %s", field, string(raw))
	}
	num := leadingNumber.FindString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if num == "" {
		return 0, fmt.Errorf("%s: %q is not numeric", field, s)
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return f, nil
}
