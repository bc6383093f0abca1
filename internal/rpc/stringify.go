package rpc

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
)

// valueKind is the closed set of shapes an argument value can take.
// ARCHITECTURAL DISCOVERY: Tagged-variant classification replaces ad hoc
// "is array vs object" checks - every value is exactly a scalar, a sequence,
// or a mapping, applied recursively
type valueKind int

const (
	scalarKind valueKind = iota
	sequenceKind
	mappingKind
)

// classify determines the shape of an argument value
func classify(v interface{}) valueKind {
	if v == nil {
		return scalarKind
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return sequenceKind
	case reflect.Map:
		return mappingKind
	default:
		return scalarKind
	}
}

// stringifyScalar converts a scalar argument to its transport string form.
// FUNCTIONAL DISCOVERY: The REST transport requires string-typed scalar
// fields regardless of origin type - numbers and booleans included
func stringifyScalar(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		// JSON-decoded numbers arrive as float64; plain notation avoids
		// scientific-form surprises for large IDs
		return strconv.FormatFloat(value, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// EncodeArguments flattens an argument map into PHP-style bracketed form
// values, stringifying every scalar while preserving container structure.
// Example: {"options": [{"name":"limit","value":5}]} becomes
// options[0][name]=limit and options[0][value]=5.
func EncodeArguments(args map[string]interface{}) url.Values {
	form := url.Values{}
	// TECHNICAL DISCOVERY: Sorted keys give deterministic bodies, which keeps
	// request logs and test fixtures stable
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		encodeValue(form, key, args[key])
	}
	return form
}

// encodeValue recursively encodes one value under a bracketed prefix
func encodeValue(form url.Values, prefix string, v interface{}) {
	switch classify(v) {
	case sequenceKind:
		rv := reflect.ValueOf(v)
		for i := 0; i < rv.Len(); i++ {
			encodeValue(form, fmt.Sprintf("%s[%d]", prefix, i), rv.Index(i).Interface())
		}
	case mappingKind:
		rv := reflect.ValueOf(v)
		entries := make(map[string]interface{}, rv.Len())
		keys := make([]string, 0, rv.Len())
		for _, key := range rv.MapKeys() {
			name := fmt.Sprintf("%v", key.Interface())
			entries[name] = rv.MapIndex(key).Interface()
			keys = append(keys, name)
		}
		sort.Strings(keys)
		for _, key := range keys {
			encodeValue(form, fmt.Sprintf("%s[%s]", prefix, key), entries[key])
		}
	default:
		form.Set(prefix, stringifyScalar(v))
	}
}
