package timeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestling/internal/model"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	s := NewStore(entries(18446744073709551615, 1500000000000000001, 3))
	s.AcknowledgeRead(3)
	snap := s.Snapshot()

	require.NoError(t, Save(path, snap))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLoadMalformedIsPersistenceError(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`[{"tweet":`), 0o644))

	_, err := Load(path)
	var perr *model.PersistenceError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, path, perr.Path)
}

func TestLoadReadsExistingFileShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	raw := `[{"tweet":{"created_at":"2016-05-01 10:00:00 +09:00","id":725,"text":"hello","user":{"screen_name":"alice","profile_image_url":"http://pbs.example/a.png"}},"unread":false}]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.TweetID(725), got[0].ID())
	assert.Equal(t, "alice", got[0].Tweet.User.ScreenName)
	assert.Equal(t, "2016-05-01 10:00:00 +09:00", got[0].Tweet.CreatedAt)
	assert.False(t, got[0].Unread)
}

func TestSaveOverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, Save(path, entries(1, 2, 3)))
	require.NoError(t, Save(path, entries(9)))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []model.TweetID{9}, ids(got))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestSaveNilWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", DefaultFileName)
	require.NoError(t, Save(path, nil))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))
}
