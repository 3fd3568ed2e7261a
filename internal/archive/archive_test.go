package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestling/internal/model"
)

func entry(id model.TweetID, author string, unread bool) model.Entry {
	return model.Entry{
		Tweet: model.Tweet{
			CreatedAt: "2016-05-01 10:00:00 +09:00",
			ID:        id,
			Text:      "tweet " + id.String(),
			User:      model.Author{ScreenName: author, ProfileImageURL: "https://pbs.example/" + author + ".png"},
		},
		Unread: unread,
	}
}

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestPutAndByAuthor(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	require.NoError(t, a.Put(ctx, []model.Entry{
		entry(98, "alice", false),
		entry(18446744073709551615, "alice", true),
		entry(99, "bob", false),
		entry(1000, "alice", false),
	}))

	got, err := a.ByAuthor(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, entry(18446744073709551615, "alice", true), got[0])
	assert.Equal(t, model.TweetID(1000), got[1].ID())
	assert.Equal(t, model.TweetID(98), got[2].ID())

	limited, err := a.ByAuthor(ctx, "alice", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	none, err := a.ByAuthor(ctx, "carol", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPutIgnoresDuplicates(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	require.NoError(t, a.Put(ctx, []model.Entry{entry(5, "alice", true)}))
	require.NoError(t, a.Put(ctx, []model.Entry{entry(5, "alice", false), entry(6, "alice", false)}))

	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := a.ByAuthor(ctx, "alice", 0)
	require.NoError(t, err)
	assert.True(t, got[1].Unread, "first archived copy is kept")
}

func TestPutEmptyIsNoop(t *testing.T) {
	a := openTemp(t)
	require.NoError(t, a.Put(context.Background(), nil))
	n, err := a.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	a, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, a.Put(context.Background(), []model.Entry{entry(1, "alice", false)}))
	require.NoError(t, a.Close())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()
	n, err := b.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
