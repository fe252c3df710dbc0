package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raskolnikoff/noesisnoema/pipeline"
)

func TestPresetParams_KnownPresets(t *testing.T) {
	for _, name := range []string{"factual", "balanced", "creative", "json", "code"} {
		params, err := pipeline.PresetParams(name)
		require.NoError(t, err)
		assert.NoError(t, params.Validate())
	}
}

func TestPresetParams_UnknownPresetErrors(t *testing.T) {
	_, err := pipeline.PresetParams("nonexistent")
	assert.Error(t, err)
}

func TestPresetParamsFromConfig_CoercesLooseTypes(t *testing.T) {
	params := pipeline.PresetParamsFromConfig(map[string]any{
		"top_k":      "7",
		"mmr_lambda": "0.5",
		"min_score":  0.1,
	})
	assert.Equal(t, 7, params.TopK)
	assert.InDelta(t, 0.5, params.MMRLambda, 1e-9)
	assert.Equal(t, float32(0.1), params.MinScore)
}

func TestAutoPreset_ContextCueIsFactual(t *testing.T) {
	assert.Equal(t, "factual", pipeline.AutoPreset("context: the sun is a star. What is it?"))
}

func TestAutoPreset_JSONCueIsJSON(t *testing.T) {
	assert.Equal(t, "json", pipeline.AutoPreset(`Parse this: {"field": "value"}`))
}

func TestAutoPreset_CodeCueIsCode(t *testing.T) {
	assert.Equal(t, "code", pipeline.AutoPreset("How do I write a ```func main()``` in Go?"))
}

func TestAutoPreset_PlainQuestionIsBalanced(t *testing.T) {
	assert.Equal(t, "balanced", pipeline.AutoPreset("What is the capital of France?"))
}
