package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raskolnikoff/noesisnoema/analyzer"
)

func TestTokenize_LowercasesAndSplits(t *testing.T) {
	tokens := analyzer.Tokenize("Swift Programming, Language!")
	assert.Equal(t, []string{"swift", "programming", "language"}, tokens)
}

func TestTokenize_PreservesUnderscoreAndDigits(t *testing.T) {
	tokens := analyzer.Tokenize("var_1 count2")
	assert.Equal(t, []string{"var_1", "count2"}, tokens)
}

func TestTokenize_CJK(t *testing.T) {
	tokens := analyzer.Tokenize("東京都の天気")
	assert.Equal(t, []string{"東京都の天気"}, tokens)
}

func TestTokenize_Katakana(t *testing.T) {
	tokens := analyzer.Tokenize("スウィフト プログラミング")
	assert.Equal(t, []string{"スウィフト", "プログラミング"}, tokens)
}

func TestTokenize_EmptyInput(t *testing.T) {
	assert.Empty(t, analyzer.Tokenize(""))
}
