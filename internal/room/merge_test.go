package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeepMerge(t *testing.T) {
	tests := []struct {
		name  string
		dst   map[string]any
		patch map[string]any
		want  map[string]any
	}{
		{
			name:  "adds nested key without touching siblings",
			dst:   map[string]any{"boards": map[string]any{"random": map[string]any{"a": "x"}}},
			patch: map[string]any{"boards": map[string]any{"random": map[string]any{"b": "y"}}},
			want:  map[string]any{"boards": map[string]any{"random": map[string]any{"a": "x", "b": "y"}}},
		},
		{
			name:  "nil deletes",
			dst:   map[string]any{"threads": []any{"a"}, "boards": map[string]any{"random": map[string]any{"a": "x"}}},
			patch: map[string]any{"threads": nil, "boards": map[string]any{"random": map[string]any{"a": nil}}},
			want:  map[string]any{"boards": map[string]any{"random": map[string]any{}}},
		},
		{
			name:  "scalar replaced by map",
			dst:   map[string]any{"boards": "legacy"},
			patch: map[string]any{"boards": map[string]any{}},
			want:  map[string]any{"boards": map[string]any{}},
		},
		{
			name:  "array replaced wholesale",
			dst:   map[string]any{"replies": []any{"a", "b"}},
			patch: map[string]any{"replies": []any{"c"}},
			want:  map[string]any{"replies": []any{"c"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deepMerge(tt.dst, tt.patch)
			assert.Equal(t, tt.want, tt.dst)
		})
	}
}

func TestDeepMergeDoesNotAliasPatch(t *testing.T) {
	inner := map[string]any{"k": "v"}
	dst := map[string]any{}
	deepMerge(dst, map[string]any{"m": inner})

	inner["k"] = "changed"
	assert.Equal(t, "v", dst["m"].(map[string]any)["k"])
}
