package clip

import (
	"testing"

	"github.com/atotto/clipboard"
	"github.com/stretchr/testify/assert"
)

func TestSink(t *testing.T) {
	var shown, written []string
	s := NewSink(true, func(text string) { shown = append(shown, text) })
	s.write = func(text string) error {
		written = append(written, text)
		return nil
	}

	err := s.Update("hello")
	assert.Equal(t, []string{"hello"}, shown)
	if clipboard.Unsupported {
		assert.ErrorIs(t, err, errUnsupported)
		return
	}
	assert.NoError(t, err)
	assert.Equal(t, []string{"hello"}, written)
}

func TestSinkWithoutSync(t *testing.T) {
	var shown []string
	s := NewSink(false, func(text string) { shown = append(shown, text) })
	s.write = func(string) error {
		t.Fatal("clipboard written without sync")
		return nil
	}
	assert.NoError(t, s.Update("hi"))
	assert.Equal(t, []string{"hi"}, shown)
}
