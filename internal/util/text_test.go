package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeWhitespace("  a\n\tb   c \r\n"))
	assert.Equal(t, "", NormalizeWhitespace(" \n "))
}

func TestLinkifyBody(t *testing.T) {
	got := LinkifyBody("read https://t.co/abc123 now")
	assert.Equal(t, `read <a href="https://t.co/abc123">https://t.co/abc123</a> now`, got)
}

func TestLinkifyBodyMultipleLinks(t *testing.T) {
	got := LinkifyBody("http://a.example/x and https://b.example/y")
	assert.Equal(t, `<a href="http://a.example/x">http://a.example/x</a> and <a href="https://b.example/y">https://b.example/y</a>`, got)
}

func TestLinkifyBodyStripsMarkup(t *testing.T) {
	got := LinkifyBody(`<b>bold</b><script>alert(1)</script> <a href="javascript:alert(1)">x</a>`)
	assert.NotContains(t, got, "<b>")
	assert.NotContains(t, got, "script")
	assert.NotContains(t, got, "javascript")
	assert.Contains(t, got, "bold")
}

func TestPlainBody(t *testing.T) {
	assert.Equal(t, "fish & chips > pasta", PlainBody("fish &amp; chips\n\n&gt; pasta"))
}
