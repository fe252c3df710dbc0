// Package chunk owns the Chunk data type and the VectorStore that holds
// and searches them. A Chunk is immutable once inserted: the store is the
// exclusive owner, and everything else (retrievers, caches) only ever
// holds read-only copies.
package chunk

import "fmt"

// Chunk is an immutable unit of retrievable content.
type Chunk struct {
	Content     string
	Embedding   []float32
	SourceTitle string
	SourcePath  string
	Page        uint32
}

// String renders a short debug form, never the full content, to keep logs readable.
func (c Chunk) String() string {
	content := c.Content
	if len(content) > 40 {
		content = content[:40] + "…"
	}
	return fmt.Sprintf("Chunk{%q, source=%s:%d}", content, c.SourceTitle, c.Page)
}

// identityKey is the dedup key for a chunk: the (content, embedding) pair.
// Embeddings are folded into a string via a cheap, order-sensitive
// fixed-point encoding — exactness matters more than speed here since this
// is only used at insert time, which is comparatively rare.
func identityKey(c Chunk) string {
	key := c.Content + "\x00"
	for _, f := range c.Embedding {
		key += fmt.Sprintf("%x,", f)
	}
	return key
}

// Clone returns a value copy of the chunk with its own embedding slice, so
// callers can never mutate the store's backing array through a returned
// reference.
func (c Chunk) Clone() Chunk {
	emb := make([]float32, len(c.Embedding))
	copy(emb, c.Embedding)
	c.Embedding = emb
	return c
}
