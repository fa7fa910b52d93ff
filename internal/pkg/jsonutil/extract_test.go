package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"plain object", `{"score":0.7}`, `{"score":0.7}`, true},
		{"fenced", "sure:\n```json\n{\"score\": 0.4, \"items\": [1,2]}\n```\nbye", `{"score": 0.4, "items": [1,2]}`, true},
		{"object before array", `result {"tags":["a"]} done`, `{"tags":["a"]}`, true},
		{"array", `list: [1, 2, 3]`, `[1, 2, 3]`, true},
		{"brace in string", `{"why":"looks like } here"}`, `{"why":"looks like } here"}`, true},
		{"skip invalid bracket", `[note] then {"a":1}`, `{"a":1}`, true},
		{"none", `no json here`, ``, false},
		{"unterminated", `{"a": 1`, ``, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractJSON(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractObject(t *testing.T) {
	res, ok := ExtractObject("```\n{\"score\":0.82,\"rationale\":\"beat\"}\n```")
	require.True(t, ok)
	assert.InDelta(t, 0.82, res.Get("score").Float(), 1e-9)
	assert.Equal(t, "beat", res.Get("rationale").String())

	_, ok = ExtractObject("[1,2]")
	assert.False(t, ok)
}

func TestPretty(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", Pretty(`{"a":1}`))
	assert.Equal(t, "not json", Pretty("not json"))
	assert.Equal(t, "{\n  \"score\": 0.4,\n  \"rationale\": \"ok\"\n}", Pretty("```json\n{\"score\":0.4,\"rationale\":\"ok\"}\n```"))
}
