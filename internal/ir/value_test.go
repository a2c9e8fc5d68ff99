package ir

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Float(1.5)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeys(t *testing.T) {
	obj := Object{
		"zebra":  String("z"),
		"apple":  String("a"),
		"banana": String("b"),
	}

	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := Object{
		"a":  Int(1),
		"A":  Int(2),
		"aa": Int(3),
		"aA": Int(4),
		"Aa": Int(5),
		"AA": Int(6),
	}

	// 'A' = 65, 'a' = 97
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestSortedKeysUTF16Order(t *testing.T) {
	// U+1F600 encodes as surrogates D83D DE00, which sort before U+FF21
	// in UTF-16 but after it in UTF-8.
	obj := Object{
		"\uFF21":     Int(1),
		"\U0001F600": Int(2),
	}

	assert.Equal(t, []string{"\U0001F600", "\uFF21"}, obj.SortedKeys())
}

func TestObjectMerge(t *testing.T) {
	obj := Object{"name": String("Jazz"), "url": String("old")}
	obj.Merge(Object{"url": String("new"), "langcode": String("da")})

	assert.Equal(t, Object{
		"name":     String("Jazz"),
		"url":      String("new"),
		"langcode": String("da"),
	}, obj)
}

func TestFromGo(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected Value
	}{
		{"nil", nil, Null{}},
		{"string", "hello", String("hello")},
		{"bool", true, Bool(true)},
		{"int", 7, Int(7)},
		{"int32", int32(-3), Int(-3)},
		{"uint8", uint8(200), Int(200)},
		{"integral float", 12.0, Int(12)},
		{"fractional float", 2.5, Float(2.5)},
		{"json number int", json.Number("42"), Int(42)},
		{"json number float", json.Number("4.25"), Float(4.25)},
		{"existing value", String("kept"), String("kept")},
		{"slice", []any{"a", 1}, Array{String("a"), Int(1)}},
		{"map", map[string]any{"name": "Dokk1"}, Object{"name": String("Dokk1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFromGoRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"struct", struct{}{}},
		{"nan", math.NaN()},
		{"inf", math.Inf(1)},
		{"overflow", uint64(math.MaxUint64)},
		{"nested struct", []any{"ok", struct{}{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromGo(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestToGo(t *testing.T) {
	v := Object{
		"name":  String("Jazz"),
		"count": Int(2),
		"price": Float(9.5),
		"free":  Bool(false),
		"tags":  Array{String("a")},
		"none":  Null{},
	}

	assert.Equal(t, map[string]any{
		"name":  "Jazz",
		"count": int64(2),
		"price": 9.5,
		"free":  false,
		"tags":  []any{"a"},
		"none":  nil,
	}, ToGo(v))
}

func TestNullInObjectRoundTrip(t *testing.T) {
	obj := Object{
		"present": String("value"),
		"missing": Null{},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"missing":null,"present":"value"}`, string(data))

	var decoded Object
	require.NoError(t, json.Unmarshal(data, &decoded))

	_, isNull := decoded["missing"].(Null)
	assert.True(t, isNull, "expected Null, got %T", decoded["missing"])
}

func TestUnmarshalNumbers(t *testing.T) {
	var decoded Object
	require.NoError(t, json.Unmarshal([]byte(`{"id":9007199254740993,"lat":56.15,"exp":1e3}`), &decoded))

	assert.Equal(t, Int(9007199254740993), decoded["id"])
	assert.Equal(t, Float(56.15), decoded["lat"])
	assert.Equal(t, Float(1000), decoded["exp"])
}

func TestMarshalValueRoundTrip(t *testing.T) {
	original := Object{
		"name": String("Jazz Night"),
		"occurrences": Array{
			Object{"startDate": String("2024-05-01T20:00:00"), "endDate": String("2024-05-01T23:00:00")},
		},
		"free":  Bool(true),
		"price": Float(120.5),
	}

	data, err := MarshalValue(original)
	require.NoError(t, err)

	decoded, err := UnmarshalValue(data)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestUnmarshalValueInvalid(t *testing.T) {
	_, err := UnmarshalValue([]byte(""))
	assert.Error(t, err)

	_, err = UnmarshalValue([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	original := Object{
		"place": Object{"name": String("Dokk1")},
		"tags":  Array{String("jazz")},
	}

	cloned := Clone(original).(Object)
	cloned["place"].(Object)["name"] = String("Godsbanen")
	cloned["tags"].(Array)[0] = String("blues")

	assert.Equal(t, String("Dokk1"), original["place"].(Object)["name"])
	assert.Equal(t, String("jazz"), original["tags"].(Array)[0])
	assert.Equal(t, Int(1), Clone(Int(1)))
}
