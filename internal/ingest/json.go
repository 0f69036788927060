package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"spcguard/internal/normalize"
)

func ParseJSONBytes(data []byte) (*normalize.MeasurementFields, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return ParseJSONMap(obj), nil
}

func ParseJSONList(data []byte) ([]*normalize.MeasurementFields, error) {
	var list []map[string]interface{}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	out := make([]*normalize.MeasurementFields, 0, len(list))
	for _, obj := range list {
		out = append(out, ParseJSONMap(obj))
	}
	return out, nil
}

func ParseJSONMap(obj map[string]interface{}) *normalize.MeasurementFields {
	kv := make(map[string]string, len(obj))
	for key, val := range obj {
		kv[strings.ToLower(key)] = stringify(val)
	}
	return fieldsFromMap(kv)
}

func stringify(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
