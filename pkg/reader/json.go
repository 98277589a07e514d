package reader

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// JSON reads the stream as text and parses it on demand. Every accessor
// parses the stored text again, so results may be modified freely.
// Mutable
type JSON struct {
	String
}

func NewJSON() *JSON {
	return &JSON{}
}

func (j *JSON) text() (string, error) {
	data, ok := j.Data()
	if !ok {
		return "", fmt.Errorf("%w: the data is missing", ErrParse)
	}
	return data, nil
}

// Object parses the text as a JSON object.
func (j *JSON) Object() (map[string]any, error) {
	data, err := j.text()
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrParse)
	}
	return obj, nil
}

// Array parses the text as a JSON array.
func (j *JSON) Array() ([]any, error) {
	data, err := j.text()
	if err != nil {
		return nil, err
	}

	var arr []any
	if err := json.Unmarshal([]byte(data), &arr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if arr == nil {
		return nil, fmt.Errorf("%w: not a JSON array", ErrParse)
	}
	return arr, nil
}

// Query runs a jq expression over the parsed document and returns every value
// it produces.
func (j *JSON) Query(expr string) ([]any, error) {
	data, err := j.text()
	if err != nil {
		return nil, err
	}

	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	var doc any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var results []any
	iter := q.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}
