// Package render prints timeline entries to a terminal.
package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"nestling/internal/imagecache"
	"nestling/internal/model"
	"nestling/internal/util"
)

// AvatarPlaceholder is shown when an avatar cannot be resolved.
const AvatarPlaceholder = "[no avatar]"

// Printer writes entries one block per tweet:
//
//	* 725  2016-05-01 10:00:00 +09:00  @alice  /cache/images/3f…
//	  tweet body
type Printer struct {
	w      io.Writer
	images imagecache.Resolver
	// Markup renders bodies with <a href> links instead of plain text.
	Markup bool

	unread lipgloss.Style
	author lipgloss.Style
	muted  lipgloss.Style
}

// NewPrinter returns a printer writing to w. images may be nil, in which
// case avatars are not resolved.
func NewPrinter(w io.Writer, images imagecache.Resolver) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:      w,
		images: images,
		unread: r.NewStyle().Bold(true).Foreground(lipgloss.Color("5")),
		author: r.NewStyle().Foreground(lipgloss.Color("6")),
		muted:  r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Print writes every entry. An avatar that fails to resolve is replaced by
// a placeholder and the remaining entries are still printed.
func (p *Printer) Print(ctx context.Context, entries []model.Entry) error {
	for _, e := range entries {
		if err := p.printEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) printEntry(ctx context.Context, e model.Entry) error {
	marker := " "
	if e.Unread {
		marker = p.unread.Render("*")
	}
	body := util.PlainBody(e.Tweet.Text)
	if p.Markup {
		body = util.LinkifyBody(e.Tweet.Text)
	}
	header := strings.Join([]string{
		marker + " " + e.ID().String(),
		p.muted.Render(e.Tweet.CreatedAt),
		p.author.Render("@" + e.Tweet.User.ScreenName),
		p.avatar(ctx, e.Tweet.User),
	}, "  ")
	_, err := fmt.Fprintf(p.w, "%s\n  %s\n", header, body)
	return err
}

func (p *Printer) avatar(ctx context.Context, a model.Author) string {
	if p.images == nil || a.ProfileImageURL == "" {
		return p.muted.Render(AvatarPlaceholder)
	}
	path, err := p.images.Resolve(ctx, a.ProfileImageURL)
	if err != nil {
		slog.WarnContext(ctx, "avatar unavailable", "screen_name", a.ScreenName, "error", err)
		return p.muted.Render(AvatarPlaceholder)
	}
	return path
}
