// Package citation builds numbered citation context blocks and enforces
// that every answer paragraph ends with a valid citation label.
package citation

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/raskolnikoff/noesisnoema/chunk"
)

// PerChunkLimit is the maximum number of characters of chunk content
// included per citation label before clipping with an ellipsis.
const PerChunkLimit = 600

var (
	tokenEncOnce sync.Once
	tokenEnc     *tiktoken.Tiktoken
)

// EstimateTokens estimates text's token count using the cl100k_base
// encoding, for budgeting how much citation context fits a model's
// context window. Falls back to a rune-count/4 approximation if the
// encoding cannot be loaded.
func EstimateTokens(text string) int {
	tokenEncOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			tokenEnc = enc
		}
	})
	if tokenEnc == nil {
		return len([]rune(text))/4 + 1
	}
	return len(tokenEnc.Encode(text, nil, nil))
}

const rulesBlock = `CITATION RULES:
Cite only the labels listed above, as [n].
Terminate every paragraph with at least one citation, e.g. "...as shown. [1]"`

// flattenAndClip collapses newlines to spaces and clips to PerChunkLimit
// runes, appending an ellipsis if clipped.
func flattenAndClip(content string) string {
	flat := strings.Join(strings.Fields(strings.ReplaceAll(content, "\n", " ")), " ")
	runes := []rune(flat)
	if len(runes) <= PerChunkLimit {
		return flat
	}
	return string(runes[:PerChunkLimit]) + "…"
}

// BuildContext produces the "CITATION LABELS:" block followed by the
// fixed rules block, numbering chunks from 1 in the order given.
func BuildContext(chunks []chunk.Chunk) string {
	var b strings.Builder
	b.WriteString("CITATION LABELS:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, flattenAndClip(c.Content))
	}
	b.WriteString("\n")
	b.WriteString(rulesBlock)
	return b.String()
}

// labelRange finds all distinct [n] tokens in paragraph with 1 <= n <=
// maxLabel, in order of first occurrence.
func labelRange(paragraph string, maxLabel int) []int {
	var found []int
	seen := make(map[int]struct{})

	runes := []rune(paragraph)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '[' {
			continue
		}
		j := i + 1
		for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
			j++
		}
		if j == i+1 || j >= len(runes) || runes[j] != ']' {
			continue
		}
		n, err := strconv.Atoi(string(runes[i+1 : j]))
		if err != nil || n < 1 || n > maxLabel {
			continue
		}
		if _, dup := seen[n]; !dup {
			seen[n] = struct{}{}
			found = append(found, n)
		}
	}
	return found
}

// endsWithValidLabel reports whether paragraph's trailing run of [n]
// tokens (allowing surrounding whitespace) contains at least one valid
// label.
func endsWithValidLabel(paragraph string, maxLabel int) bool {
	trimmed := strings.TrimRight(paragraph, " \t")
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == ']' {
		open := strings.LastIndexByte(trimmed, '[')
		if open < 0 {
			break
		}
		token := trimmed[open:]
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(token, "["), "]"))
		if err == nil && n >= 1 && n <= maxLabel {
			return true
		}
		trimmed = strings.TrimRight(trimmed[:open], " \t")
	}
	return false
}

// BuildContextWithBudget builds a citation context block like
// BuildContext, but drops trailing (least-relevant) chunks until the
// block's estimated token count fits within maxTokens, always keeping at
// least one chunk if any were given. Returns the block and the number of
// chunks actually included.
func BuildContextWithBudget(chunks []chunk.Chunk, maxTokens int) (string, int) {
	if maxTokens <= 0 || len(chunks) == 0 {
		return BuildContext(chunks), len(chunks)
	}

	for n := len(chunks); n >= 1; n-- {
		block := BuildContext(chunks[:n])
		if EstimateTokens(block) <= maxTokens || n == 1 {
			return block, n
		}
	}
	return BuildContext(chunks[:1]), 1
}

// EnforceCitations splits answer on blank lines into paragraphs and
// ensures every non-empty paragraph ends with at least one valid [n]
// label (1 <= n <= maxLabel): paragraphs already ending in a valid label
// are left alone; paragraphs containing valid labels elsewhere have them
// appended in first-occurrence order; paragraphs with none get a
// fallback "[1]".
func EnforceCitations(answer string, maxLabel int) string {
	paragraphs := strings.Split(answer, "\n\n")
	for i, p := range paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if endsWithValidLabel(p, maxLabel) {
			continue
		}

		labels := labelRange(p, maxLabel)
		if len(labels) == 0 {
			paragraphs[i] = strings.TrimRight(p, " \t") + " [1]"
			continue
		}

		var suffix strings.Builder
		for _, n := range labels {
			fmt.Fprintf(&suffix, "[%d]", n)
		}
		paragraphs[i] = strings.TrimRight(p, " \t") + " " + suffix.String()
	}
	return strings.Join(paragraphs, "\n\n")
}
