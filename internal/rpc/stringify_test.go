package rpc

import "testing"

func TestEncodeArguments_ScalarStringification(t *testing.T) {
	form := EncodeArguments(map[string]interface{}{
		"count":   5,
		"ratio":   2.5,
		"big":     float64(2000000), // JSON-decoded numbers arrive as float64
		"enabled": true,
		"name":    "assignment",
		"note":    nil,
	})

	expected := map[string]string{
		"count":   "5",
		"ratio":   "2.5",
		"big":     "2000000", // plain notation, never scientific form
		"enabled": "true",
		"name":    "assignment",
		"note":    "",
	}
	for key, want := range expected {
		if got := form.Get(key); got != want {
			t.Errorf("form[%s] = %q, want %q", key, got, want)
		}
	}
}

func TestEncodeArguments_PreservesContainerStructure(t *testing.T) {
	form := EncodeArguments(map[string]interface{}{
		"userids": []interface{}{float64(3), float64(7)},
		"options": []interface{}{
			map[string]interface{}{"name": "limit", "value": 10},
		},
	})

	expected := map[string]string{
		"userids[0]":        "3",
		"userids[1]":        "7",
		"options[0][name]":  "limit",
		"options[0][value]": "10",
	}
	for key, want := range expected {
		if got := form.Get(key); got != want {
			t.Errorf("form[%s] = %q, want %q", key, got, want)
		}
	}
}

func TestEncodeArguments_Deterministic(t *testing.T) {
	args := map[string]interface{}{
		"zeta":  1,
		"alpha": 2,
		"mid":   map[string]interface{}{"b": 1, "a": 2},
	}
	first := EncodeArguments(args).Encode()
	for i := 0; i < 10; i++ {
		if got := EncodeArguments(args).Encode(); got != first {
			t.Fatalf("encoding not deterministic: %q vs %q", got, first)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		value    interface{}
		expected valueKind
	}{
		{nil, scalarKind},
		{"text", scalarKind},
		{42, scalarKind},
		{true, scalarKind},
		{[]interface{}{1, 2}, sequenceKind},
		{[]string{"a"}, sequenceKind},
		{map[string]interface{}{"k": 1}, mappingKind},
	}
	for _, tt := range tests {
		if got := classify(tt.value); got != tt.expected {
			t.Errorf("classify(%v) = %d, want %d", tt.value, got, tt.expected)
		}
	}
}
