package envsub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubworks/mcp-hub/envsub"
)

func TestExpand(t *testing.T) {
	t.Parallel()

	rules := envsub.Rules{
		{Name: "API_KEY", Value: "sk-12345"},
		{Name: "REGION", Value: "us-east-1"},
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single placeholder",
			in:   "token=${API_KEY}",
			want: "token=sk-12345",
		},
		{
			name: "multiple placeholders",
			in:   "${API_KEY} in ${REGION}",
			want: "sk-12345 in us-east-1",
		},
		{
			name: "repeated placeholder",
			in:   "${REGION}/${REGION}",
			want: "us-east-1/us-east-1",
		},
		{
			name: "no placeholders",
			in:   "plain text",
			want: "plain text",
		},
		{
			name: "unknown placeholder left alone",
			in:   "${OTHER}",
			want: "${OTHER}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, rules.Expand(tt.in))
		})
	}
}

func TestUnexpand(t *testing.T) {
	t.Parallel()

	rules := envsub.Rules{
		{Name: "API_KEY", Value: "sk-12345"},
	}

	assert.Equal(t, "token=${API_KEY}", rules.Unexpand("token=sk-12345"))
	assert.Equal(t, "no secrets here", rules.Unexpand("no secrets here"))
}

func TestExpandUnexpandRoundTrip(t *testing.T) {
	t.Parallel()

	rules := envsub.Rules{
		{Name: "SECRET", Value: "hunter2"},
	}

	in := "auth with ${SECRET} twice: ${SECRET}"
	expanded := rules.Expand(in)
	require.Equal(t, "auth with hunter2 twice: hunter2", expanded)
	assert.Equal(t, in, rules.Unexpand(expanded))
}

func TestExpandMap(t *testing.T) {
	t.Parallel()

	rules := envsub.Rules{
		{Name: "TOKEN", Value: "tok-9"},
	}

	args := map[string]any{
		"auth": "${TOKEN}",
		"nested": map[string]any{
			"header": "Bearer ${TOKEN}",
			"count":  3,
		},
		"list": []any{"${TOKEN}", 42, map[string]any{"deep": "${TOKEN}"}},
	}

	out := rules.ExpandMap(args)

	require.NotNil(t, out)
	assert.Equal(t, "tok-9", out["auth"])
	nested, ok := out["nested"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Bearer tok-9", nested["header"])
	assert.Equal(t, 3, nested["count"])
	list, ok := out["list"].([]any)
	require.True(t, ok)
	assert.Equal(t, "tok-9", list[0])
	assert.Equal(t, 42, list[1])
	deep, ok := list[2].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "tok-9", deep["deep"])

	// the input map is left untouched
	assert.Equal(t, "${TOKEN}", args["auth"])
	assert.Equal(t, "Bearer ${TOKEN}", args["nested"].(map[string]any)["header"])
}

func TestExpandMapNil(t *testing.T) {
	t.Parallel()

	rules := envsub.Rules{{Name: "X", Value: "y"}}
	assert.Nil(t, rules.ExpandMap(nil))

	var empty envsub.Rules
	args := map[string]any{"k": "${X}"}
	out := empty.ExpandMap(args)
	assert.Equal(t, "${X}", out["k"])
}
