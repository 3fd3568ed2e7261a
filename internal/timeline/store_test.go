package timeline

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestling/internal/model"
)

func entry(id model.TweetID, text string) model.Entry {
	return model.Entry{
		Tweet: model.Tweet{
			ID:   id,
			Text: text,
			User: model.Author{ScreenName: "user" + id.String(), ProfileImageURL: "https://pbs.example/" + id.String()},
		},
		Unread: true,
	}
}

func entries(ids ...model.TweetID) []model.Entry {
	out := make([]model.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, entry(id, "tweet "+id.String()))
	}
	return out
}

func ids(es []model.Entry) []model.TweetID {
	out := make([]model.TweetID, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID())
	}
	return out
}

func TestMergeThenEvictScenario(t *testing.T) {
	s := NewStore(entries(100, 99, 98))

	added := s.Merge(entries(102, 101))
	assert.Equal(t, []model.TweetID{102, 101}, ids(added))
	assert.Equal(t, []model.TweetID{102, 101, 100, 99, 98}, ids(s.Snapshot()))

	evicted := s.Evict(3)
	assert.Equal(t, []model.TweetID{99, 98}, ids(evicted))
	assert.Equal(t, []model.TweetID{102, 101, 100}, ids(s.Snapshot()))
}

func TestMergeKeepsExistingEntryOnDuplicateID(t *testing.T) {
	s := NewStore(entries(100, 99))
	require.True(t, s.AcknowledgeRead(100))

	added := s.Merge([]model.Entry{entry(100, "edited text")})
	assert.Empty(t, added)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, model.TweetID(100), snap[0].ID())
	assert.Equal(t, "tweet 100", snap[0].Tweet.Text)
	assert.False(t, snap[0].Unread, "re-fetch must not resurrect the unread flag")
}

func TestMergeCollapsesDuplicatesWithinBatch(t *testing.T) {
	s := NewStore(nil)
	batch := []model.Entry{entry(5, "first"), entry(5, "second"), entry(4, "x")}
	s.Merge(batch)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "first", snap[0].Tweet.Text)
}

func TestMergeInterleavesOutOfOrderBatch(t *testing.T) {
	s := NewStore(entries(10, 6, 2))
	s.Merge(entries(3, 11, 7))
	assert.Equal(t, []model.TweetID{11, 10, 7, 6, 3, 2}, ids(s.Snapshot()))
}

func TestRandomMergesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := NewStore(nil)
	for round := 0; round < 200; round++ {
		n := rng.Intn(20)
		batch := make([]model.Entry, 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, entry(model.TweetID(rng.Intn(500)+1), "t"))
		}
		s.Merge(batch)

		snap := s.Snapshot()
		seen := map[model.TweetID]bool{}
		for i, e := range snap {
			require.False(t, seen[e.ID()], "duplicate id %d", e.ID())
			seen[e.ID()] = true
			if i > 0 {
				require.Greater(t, snap[i-1].ID(), e.ID(), "order broken at %d", i)
			}
		}
	}
}

func TestEvictKeepsLargestIDs(t *testing.T) {
	s := NewStore(entries(1, 9, 4, 7, 3))
	s.Evict(2)
	assert.Equal(t, []model.TweetID{9, 7}, ids(s.Snapshot()))

	assert.Nil(t, s.Evict(5), "evict below the limit is a no-op")
	assert.Equal(t, 2, s.Len())

	s.Evict(0)
	assert.Equal(t, 0, s.Len())
}

func TestMergeAndEvict(t *testing.T) {
	s := NewStore(entries(100, 99, 98))
	res := s.MergeAndEvict(entries(102, 101), 3)
	assert.Equal(t, []model.TweetID{102, 101}, ids(res.Added))
	assert.Equal(t, []model.TweetID{99, 98}, ids(res.Evicted))
	assert.Equal(t, []model.TweetID{102, 101, 100}, ids(s.Snapshot()))
}

func TestAcknowledgeReadIsIdempotent(t *testing.T) {
	s := NewStore(entries(3, 2, 1))
	assert.Equal(t, 3, s.UnreadCount())

	assert.True(t, s.AcknowledgeRead(2))
	first := s.Snapshot()
	assert.True(t, s.AcknowledgeRead(2))
	assert.Equal(t, first, s.Snapshot())
	assert.Equal(t, 2, s.UnreadCount())

	assert.False(t, s.AcknowledgeRead(42))
	assert.Equal(t, first, s.Snapshot())
}

func TestAdoptReadTakesReadFlagsFromOtherCopy(t *testing.T) {
	s := NewStore(entries(4, 3, 2, 1))
	s.AcknowledgeRead(1)

	other := entries(5, 3, 2, 1)
	other[0].Unread = false // not held here
	other[1].Unread = false
	other[3].Unread = false // already read here

	assert.Equal(t, []model.TweetID{3}, s.AdoptRead(other))
	assert.Equal(t, []model.TweetID{4, 2}, ids(s.View(Filter{UnreadOnly: true})))
	assert.Equal(t, []model.TweetID{4, 3, 2, 1}, ids(s.Snapshot()))
	assert.Empty(t, s.AdoptRead(other))
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(entries(2, 1))
	snap := s.Snapshot()
	snap[0].Unread = false
	snap[0].Tweet.Text = "mutated"

	e, ok := s.Get(2)
	require.True(t, ok)
	assert.True(t, e.Unread)
	assert.Equal(t, "tweet 2", e.Tweet.Text)
}

func TestViewFilters(t *testing.T) {
	s := NewStore(entries(4, 3, 2, 1))
	s.AcknowledgeRead(3)

	assert.Equal(t, []model.TweetID{4, 2, 1}, ids(s.View(Filter{UnreadOnly: true})))
	assert.Equal(t, []model.TweetID{4, 3, 1}, ids(s.View(Filter{Muted: []string{"user2"}})))
	assert.Equal(t, []model.TweetID{4, 1}, ids(s.View(Filter{UnreadOnly: true, Muted: []string{"user2"}})))
	assert.Len(t, s.Snapshot(), 4, "views do not mutate the store")
}

func TestConcurrentMutation(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := model.TweetID(w*1000 + i + 1)
				s.MergeAndEvict(entries(id), 50)
				s.AcknowledgeRead(id - 1)
				_ = s.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	snap := s.Snapshot()
	require.Len(t, snap, 50)
	for i := 1; i < len(snap); i++ {
		require.Greater(t, snap[i-1].ID(), snap[i].ID())
	}
}
