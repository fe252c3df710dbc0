package queryiter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raskolnikoff/noesisnoema/queryiter"
)

func TestVariants_NormalizesOriginal(t *testing.T) {
	variants := queryiter.Variants("  Swift   Programming  ", 5)
	assert.Equal(t, "swift programming", variants[0])
}

func TestVariants_DropsStopwords(t *testing.T) {
	variants := queryiter.Variants("the swift programming language", 5)
	assert.Contains(t, variants, "swift programming language")
}

func TestVariants_StemLite(t *testing.T) {
	variants := queryiter.Variants("running dogs", 5)
	assert.Contains(t, variants, "runn dog")
}

func TestVariants_DeduplicatesPreservingOrder(t *testing.T) {
	variants := queryiter.Variants("go", 5)
	assert.Equal(t, []string{"go"}, variants)
}

func TestVariants_RespectsMax(t *testing.T) {
	variants := queryiter.Variants("the running dogs are barking loudly", 1)
	assert.Len(t, variants, 1)
}

func TestVariants_EmptyQuery(t *testing.T) {
	variants := queryiter.Variants("", 5)
	assert.Equal(t, []string{""}, variants)
}
