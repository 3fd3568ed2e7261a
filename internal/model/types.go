package model

import "strconv"

// TweetID is a Twitter status id. Ids are positive and grow with time.
type TweetID uint64

func (id TweetID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseTweetID parses a decimal tweet id such as the API's id_str.
func ParseTweetID(s string) (TweetID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TweetID(v), nil
}

// Author is the subset of the tweet's user captured at fetch time.
type Author struct {
	ScreenName      string `json:"screen_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Tweet is an immutable status as shown in the home timeline.
type Tweet struct {
	CreatedAt string  `json:"created_at"`
	ID        TweetID `json:"id"`
	Text      string  `json:"text"`
	User      Author  `json:"user"`
}

// Entry is one row of the home timeline. Unread is the only field that
// changes after the entry is created.
type Entry struct {
	Tweet  Tweet `json:"tweet"`
	Unread bool  `json:"unread"`
}

func (e Entry) ID() TweetID { return e.Tweet.ID }
