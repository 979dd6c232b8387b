package document

import (
	"reflect"
	"testing"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		dst  map[string]any
		src  map[string]any
		want map[string]any
	}{
		{
			name: "disjoint keys",
			dst:  map[string]any{"a": 1},
			src:  map[string]any{"b": 2},
			want: map[string]any{"a": 1, "b": 2},
		},
		{
			name: "later wins scalar",
			dst:  map[string]any{"a": 1},
			src:  map[string]any{"a": 2},
			want: map[string]any{"a": 2},
		},
		{
			name: "nested maps merge",
			dst:  map[string]any{"b": map[string]any{"x": 1}},
			src:  map[string]any{"b": map[string]any{"y": 2}},
			want: map[string]any{"b": map[string]any{"x": 1, "y": 2}},
		},
		{
			name: "map replaces scalar",
			dst:  map[string]any{"a": 1},
			src:  map[string]any{"a": map[string]any{"x": 1}},
			want: map[string]any{"a": map[string]any{"x": 1}},
		},
		{
			name: "scalar replaces map",
			dst:  map[string]any{"a": map[string]any{"x": 1}},
			src:  map[string]any{"a": 7},
			want: map[string]any{"a": 7},
		},
		{
			name: "arrays replaced whole",
			dst:  map[string]any{"a": []any{1, 2, 3}},
			src:  map[string]any{"a": []any{9}},
			want: map[string]any{"a": []any{9}},
		},
		{
			name: "nil dst",
			dst:  nil,
			src:  map[string]any{"a": 1},
			want: map[string]any{"a": 1},
		},
		{
			name: "empty src",
			dst:  map[string]any{"a": 1},
			src:  map[string]any{},
			want: map[string]any{"a": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.dst, tt.src)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestMergeIdempotent(t *testing.T) {
	src := map[string]any{
		"a": 1,
		"b": map[string]any{"x": []any{1, 2}},
	}
	once := Merge(map[string]any{}, src)
	twice := Merge(Merge(map[string]any{}, src), src)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge not idempotent: %#v vs %#v", once, twice)
	}
}

func TestMergeAssociative(t *testing.T) {
	a := map[string]any{"k": map[string]any{"x": 1}}
	b := map[string]any{"k": map[string]any{"y": 2}, "s": "b"}
	c := map[string]any{"k": map[string]any{"x": 9}, "s": "c"}

	// ((a+b)+c)
	left := Merge(Merge(Merge(map[string]any{}, a), b), c)
	// (a+(b+c))
	bc := Merge(Merge(map[string]any{}, b), c)
	right := Merge(Merge(map[string]any{}, a), bc)

	if !reflect.DeepEqual(left, right) {
		t.Errorf("merge not associative: %#v vs %#v", left, right)
	}
}

func TestMergeDoesNotAliasSource(t *testing.T) {
	src := map[string]any{"b": map[string]any{"x": 1}}
	dst := Merge(map[string]any{}, src)

	dst["b"].(map[string]any)["x"] = 99
	if src["b"].(map[string]any)["x"] != 1 {
		t.Error("merge aliased the source map")
	}
}
