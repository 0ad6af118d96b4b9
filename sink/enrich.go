package sink

import (
	"net/url"

	"github.com/tidwall/gjson"
)

// Augmentation is one query parameter derived from a record.
// Key is already URL-encoded.
type Augmentation struct {
	Key   string
	Value string
}

// Fields holds the top-level fields of a record parsed as a JSON object.
// Keys are matched exactly, a dot in a key is not a path separator.
type Fields struct {
	data map[string]gjson.Result
}

// ParseFields parses record as a flat JSON object. It reports false when
// the record is not valid JSON or is not an object.
func ParseFields(record string) (Fields, bool) {
	var result Fields
	if !gjson.Valid(record) {
		return result, false
	}
	parsed := gjson.Parse(record)
	if !parsed.IsObject() {
		return result, false
	}
	result.data = make(map[string]gjson.Result)
	parsed.ForEach(func(key, value gjson.Result) bool {
		result.data[key.String()] = value
		return true
	})
	return result, true
}

// StringForKey returns the textual form of a field. Strings are returned
// unquoted; numbers, booleans, null and nested values as their JSON text.
func (f Fields) StringForKey(key string) (string, bool) {
	value, exists := f.data[key]
	if !exists {
		return "", false
	}
	if value.Type == gjson.String {
		return value.String(), true
	}
	return value.Raw, true
}

// Len returns the number of top-level fields.
func (f Fields) Len() int {
	return len(f.data)
}

// Enrich derives the query augmentations for a record, in parameter order.
// A record that cannot be parsed, or a parameter whose field is absent,
// contributes nothing.
func Enrich(record string, params []Parameter) []Augmentation {
	if len(params) == 0 {
		return nil
	}
	fields, ok := ParseFields(record)
	if !ok {
		return nil
	}
	var result []Augmentation
	for _, p := range params {
		value, exists := fields.StringForKey(p.RecordKey)
		if !exists {
			continue
		}
		result = append(result, Augmentation{
			Key:   url.QueryEscape(p.QueryKey()),
			Value: p.Decorate(value),
		})
	}
	return result
}
