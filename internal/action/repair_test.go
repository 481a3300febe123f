package action

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid unchanged", `{"a": 1}`, `{"a": 1}`},
		{"trailing comma", `{"a": 1,}`, `{"a": 1}`},
		{"trailing comma in array", `{"a": [1, 2,]}`, `{"a": [1, 2]}`},
		{"bare key", `{a: 1}`, `{"a": 1}`},
		{"bare key after comma", `{"a": 1, b: 2}`, `{"a": 1, "b": 2}`},
		{"bare literal value untouched", `{a: true}`, `{"a": true}`},
		{"single quotes", `{'a': 'x'}`, `{"a": "x"}`},
		{"escaped single quote", `{'a': 'it\'s'}`, `{"a": "it's"}`},
		{"double quote inside single", `{"a": 'say "hi"'}`, `{"a": "say \"hi\""}`},
		{"unclosed brace", `{"a": "x"`, `{"a": "x"}`},
		{"unclosed nested", `{"a": {"b": 1`, `{"a": {"b": 1}}`},
		{"unterminated string", `{"a": "open`, `{"a": "open"}`},
		{"dangling comma", `{"a": "x",`, `{"a": "x"}`},
		{"trailing text dropped", `{"a": 1} and more`, `{"a": 1}`},
		{"colon inside string kept", `{"a": "b, c: d",}`, `{"a": "b, c: d"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Repair(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)), "repaired output is not valid JSON: %s", got)
		})
	}
}
