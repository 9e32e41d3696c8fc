package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_NilWriterIsSilent(t *testing.T) {
	b := New(nil, 10, "Fetching")
	b.Add(5)
	b.Finish()
	_, ok := b.(nop)
	assert.True(t, ok)
}

func TestNew_RendersDescription(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, 2, "Embedding")
	b.Add(1)
	b.Add(1)
	b.Finish()
	assert.Contains(t, buf.String(), "Embedding")
}
