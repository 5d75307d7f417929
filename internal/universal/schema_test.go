package universal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageContent_TextRoundTrip(t *testing.T) {
	content := NewTextContent("hello there")

	data, err := json.Marshal(content)
	require.NoError(t, err)
	assert.Equal(t, `"hello there"`, string(data))

	var decoded MessageContent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.False(t, decoded.IsParts())
	assert.Equal(t, "hello there", decoded.Text)
}

func TestMessageContent_PartsRoundTrip(t *testing.T) {
	content := NewPartsContent([]ContentPart{
		{Type: "text", Text: "hi"},
		{Type: "tool_use", ToolUseID: "toolu_1", ToolName: "search"},
	})

	data, err := json.Marshal(content)
	require.NoError(t, err)

	var decoded MessageContent
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.True(t, decoded.IsParts())
	require.Len(t, decoded.Parts, 2)
	assert.Equal(t, "search", decoded.Parts[1].ToolName)
}

func TestMessageContent_AsParts(t *testing.T) {
	text := NewTextContent("plain")
	parts := text.AsParts()
	require.Len(t, parts, 1)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "plain", parts[0].Text)

	empty := NewTextContent("")
	assert.Nil(t, empty.AsParts())

	structured := NewPartsContent([]ContentPart{{Type: "text", Text: "a"}})
	assert.Equal(t, structured.Parts, structured.AsParts())
}

func TestToolChoice_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   ToolChoice
		want string
	}{
		{"auto", ToolChoiceAuto, `"auto"`},
		{"none", ToolChoiceNone, `"none"`},
		{"required", ToolChoiceRequired, `"required"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(data))

			var decoded ToolChoice
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, tc.in.Mode, decoded.Mode)
		})
	}
}

func TestToolChoice_Specific(t *testing.T) {
	choice := ToolChoiceSpecific("get_weather")

	data, err := json.Marshal(choice)
	require.NoError(t, err)

	var decoded ToolChoice
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "specific", decoded.Mode)
	assert.Equal(t, "get_weather", decoded.Function)
}

func TestToolChoice_UnknownStringDefaultsToAuto(t *testing.T) {
	var decoded ToolChoice
	require.NoError(t, json.Unmarshal([]byte(`"something-unexpected"`), &decoded))
	assert.Equal(t, ToolChoiceAuto, decoded)
}

func TestToolChoice_AnyAliasesToRequired(t *testing.T) {
	var decoded ToolChoice
	require.NoError(t, json.Unmarshal([]byte(`"any"`), &decoded))
	assert.Equal(t, ToolChoiceRequired, decoded)
}
