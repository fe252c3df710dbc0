package pipeline

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/raskolnikoff/noesisnoema/ragerr"
	"github.com/raskolnikoff/noesisnoema/retrieval"
)

// presetTable holds the caller-facing retrieval presets. These are
// consumed by callers building a pipeline.Coordinator; the coordinator
// itself never mutates or selects them on its own.
var presetTable = map[string]retrieval.Params{
	"factual":  {TopK: 5, MMRLambda: 0.85, MinScore: 0.20},
	"balanced": {TopK: 5, MMRLambda: 0.70, MinScore: 0.10},
	"creative": {TopK: 8, MMRLambda: 0.40, MinScore: 0.00},
	"json":     {TopK: 4, MMRLambda: 0.90, MinScore: 0.25},
	"code":     {TopK: 6, MMRLambda: 0.75, MinScore: 0.15},
}

// PresetParams returns the retrieval.Params for a named preset
// (factual, balanced, creative, json, code). "auto" is not itself a
// preset name here: callers resolve it to a concrete name first via
// AutoPreset.
func PresetParams(name string) (retrieval.Params, error) {
	params, ok := presetTable[strings.ToLower(name)]
	if !ok {
		return retrieval.Params{}, ragerr.New(ragerr.NotFound, "pipeline.PresetParams", fmt.Errorf("unknown preset %q", name))
	}
	return params, nil
}

// PresetParamsFromConfig builds retrieval.Params from a loosely typed
// config map (e.g. parsed from user-supplied JSON/YAML), coercing values
// with spf13/cast rather than requiring exact Go types.
func PresetParamsFromConfig(cfg map[string]any) retrieval.Params {
	params := presetTable["balanced"]
	if v, ok := cfg["top_k"]; ok {
		params.TopK = cast.ToInt(v)
	}
	if v, ok := cfg["mmr_lambda"]; ok {
		params.MMRLambda = float32(cast.ToFloat64(v))
	}
	if v, ok := cfg["min_score"]; ok {
		params.MinScore = float32(cast.ToFloat64(v))
	}
	return params
}

var codeKeywords = []string{
	"```", "func ", "def ", "class ", "import ", "public static", "#include", "SELECT ", "console.log",
}

// AutoPreset implements the intent heuristic: presence of "context:"
// implies a factual lookup; JSON cues (a raw brace or a `"field":`
// shape) imply json; code cues (fenced code or common language
// keywords) imply code; anything else is balanced. Checked in that
// order, since a question can plausibly contain more than one cue.
func AutoPreset(question string) string {
	lower := strings.ToLower(question)

	if strings.Contains(lower, "context:") {
		return "factual"
	}

	if strings.ContainsRune(question, '{') || jsonFieldCuePattern(question) {
		return "json"
	}

	for _, kw := range codeKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return "code"
		}
	}

	return "balanced"
}

// jsonFieldCuePattern reports whether question contains a `"word":`
// shape, a common tell for inline JSON snippets.
func jsonFieldCuePattern(question string) bool {
	runes := []rune(question)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '"' {
			continue
		}
		j := i + 1
		for j < len(runes) && runes[j] != '"' {
			j++
		}
		if j >= len(runes) || j == i+1 {
			continue
		}
		k := j + 1
		for k < len(runes) && runes[k] == ' ' {
			k++
		}
		if k < len(runes) && runes[k] == ':' {
			return true
		}
		i = j
	}
	return false
}
