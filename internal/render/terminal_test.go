package render

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestling/internal/model"
)

type fakeResolver map[string]string

func (f fakeResolver) Resolve(_ context.Context, url string) (string, error) {
	if p, ok := f[url]; ok {
		return p, nil
	}
	return "", &model.FetchError{URL: url, Status: 404}
}

func entry(id model.TweetID, author, avatar, text string, unread bool) model.Entry {
	return model.Entry{
		Tweet: model.Tweet{
			CreatedAt: "2016-05-01 10:00:00 +09:00",
			ID:        id,
			Text:      text,
			User:      model.Author{ScreenName: author, ProfileImageURL: avatar},
		},
		Unread: unread,
	}
}

func TestPrintPlaceholderDoesNotAbort(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, fakeResolver{"https://img/b.png": "/cache/bbb"})

	err := p.Print(context.Background(), []model.Entry{
		entry(102, "alice", "https://img/missing.png", "first  tweet", true),
		entry(101, "bob", "https://img/b.png", "second &amp; last", false),
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "102")
	assert.Contains(t, lines[0], "@alice")
	assert.Contains(t, lines[0], AvatarPlaceholder)
	assert.True(t, strings.HasPrefix(lines[0], "*"), lines[0])
	assert.Equal(t, "  first tweet", lines[1])

	assert.Contains(t, lines[2], "@bob")
	assert.Contains(t, lines[2], "/cache/bbb")
	assert.True(t, strings.HasPrefix(lines[2], " "), lines[2])
	assert.Equal(t, "  second & last", lines[3])
}

func TestPrintMarkupLinks(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, nil)
	p.Markup = true

	require.NoError(t, p.Print(context.Background(), []model.Entry{
		entry(1, "alice", "", "see https://t.co/x", false),
	}))
	assert.Contains(t, buf.String(), `<a href="https://t.co/x">https://t.co/x</a>`)
	assert.Contains(t, buf.String(), AvatarPlaceholder)
}
