// Package render turns documents into html node trees. Everything here is a
// pure function of its inputs; the live view re-runs it on every change.
package render

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ninechan-dev/ninechan/internal/format"
	"github.com/ninechan-dev/ninechan/shared/csrf"
	"github.com/ninechan-dev/ninechan/shared/domain"
)

// Viewer is the identity the tree is rendered for.
type Viewer struct {
	Identity    domain.Identity
	IsModerator bool
	CSRFToken   string
}

type Renderer struct {
	moderators format.Moderators
	loc        *time.Location
}

func New(moderators format.Moderators, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{moderators: moderators, loc: loc}
}

// post is the part shared by thread roots and replies.
type post struct {
	id        string
	name      string
	subject   string
	image     string
	comment   string
	timestamp string
}

func threadPost(t *domain.Thread) post {
	return post{id: t.Id, name: t.Name, subject: t.Subject, image: t.Image, comment: t.Comment, timestamp: t.Timestamp}
}

func replyPost(r *domain.Reply) post {
	return post{id: r.Id, name: r.Name, image: r.Image, comment: r.Comment, timestamp: r.Timestamp}
}

func ThreadPath(board domain.BoardName, threadId domain.ThreadId) string {
	return "/" + url.PathEscape(board) + "/threads/" + url.PathEscape(threadId)
}

func ReplyPath(board domain.BoardName, threadId domain.ThreadId, replyId domain.ReplyId) string {
	return ThreadPath(board, threadId) + "/replies/" + url.PathEscape(replyId)
}

// Post renders a thread root (reply == nil) or one of its replies.
func (r *Renderer) Post(board domain.BoardName, thread *domain.Thread, reply *domain.Reply, viewer Viewer) *html.Node {
	isReply := reply != nil
	p := threadPost(thread)
	class := "post"
	deletePath, deleteLabel := ThreadPath(board, thread.Id)+"/delete", "Delete Thread"
	if isReply {
		p = replyPost(reply)
		class = "reply"
		deletePath, deleteLabel = ReplyPath(board, thread.Id, reply.Id)+"/delete", "Delete Reply"
	}

	div := el(atom.Div, "class", class, "id", "post-"+p.id)

	name := p.name
	if name == "" {
		name = "Anonymous"
	}
	info := el(atom.Div, "class", "post-info")
	if r.moderators.IsModerator(p.name) {
		appendAll(info, appendAll(el(atom.Span, "class", "post-name mod-name"),
			text(name+" "),
			withText(atom.Span, "[MOD]", "class", "mod-badge"),
		))
	} else {
		appendAll(info, withText(atom.Span, name, "class", "post-name"))
	}
	appendAll(info,
		text(" "),
		withText(atom.Span, format.Timestamp(p.timestamp, r.loc), "class", "post-timestamp"),
		text(" No."),
		withText(atom.Span, p.id, "class", "post-id"),
	)
	appendAll(div, info)

	if p.subject != "" && !isReply {
		appendAll(div, withText(atom.Div, p.subject, "class", "post-subject"))
	}
	if p.image != "" {
		appendAll(div, el(atom.Img, "src", p.image, "alt", "Post Image", "class", "post-image", "loading", "lazy"))
	}
	appendAll(div, comment(p.comment))

	if viewer.IsModerator {
		form := el(atom.Form, "class", "delete-form", "method", "get", "action", deletePath)
		appendAll(form, withText(atom.Button, deleteLabel, "type", "submit", "class", "delete-button"))
		appendAll(div, form)
	}
	return div
}

func comment(c string) *html.Node {
	div := el(atom.Div, "class", "post-comment")
	for i, line := range format.CommentLines(c) {
		if i > 0 {
			appendAll(div, el(atom.Br))
		}
		if line.Quote {
			appendAll(div, withText(atom.Span, line.Text, "class", "greentext"))
		} else if line.Text != "" {
			appendAll(div, text(line.Text))
		}
	}
	return div
}

// ReplySection is the reply composer, or the disabled notice when the
// thread does not accept replies.
func (r *Renderer) ReplySection(board domain.BoardName, thread *domain.Thread, viewer Viewer) *html.Node {
	section := el(atom.Div, "class", "reply-section")
	if thread.RepliesDisabled {
		return appendAll(section, withText(atom.P, "Replies are disabled for this thread.", "class", "replies-disabled-message"))
	}

	form := el(atom.Form,
		"class", "reply-form",
		"method", "post",
		"action", ThreadPath(board, thread.Id)+"/replies",
		"enctype", "multipart/form-data",
	)
	appendAll(form,
		hidden(csrf.FormField, viewer.CSRFToken),
		el(atom.Textarea, "name", "comment", "placeholder", "Comment", "required", ""),
		el(atom.Input, "type", "url", "name", "image_url", "placeholder", "Image URL (optional)"),
		el(atom.Input, "type", "file", "name", "image_file", "accept", "image/*"),
		withText(atom.Button, "Post Reply", "type", "submit"),
	)

	details := el(atom.Details, "class", "reply-form-container")
	appendAll(details,
		withText(atom.Summary, "Reply to this thread", "class", "toggle-reply-form-button"),
		form,
	)
	return appendAll(section, details)
}

// Thread renders the root post, the replies oldest first, then the reply section.
func (r *Renderer) Thread(board domain.BoardName, thread *domain.Thread, viewer Viewer) *html.Node {
	div := el(atom.Div, "class", "thread", "id", "thread-"+thread.Id)
	appendAll(div, r.Post(board, thread, nil, viewer))

	replies := el(atom.Div, "class", "replies-container")
	for _, reply := range thread.RepliesOldestFirst() {
		appendAll(replies, r.Post(board, thread, reply, viewer))
	}
	return appendAll(div, replies, r.ReplySection(board, thread, viewer))
}

// Board renders every thread newest first, or the empty-state message.
func (r *Renderer) Board(board domain.BoardName, threads domain.BoardThreads, viewer Viewer) *html.Node {
	div := el(atom.Div, "id", "board-content", "class", "board-content", "data-board", board)
	sorted := threads.NewestFirst()
	if len(sorted) == 0 {
		return appendAll(div, withText(atom.P,
			fmt.Sprintf("No threads found on /%s/. Be the first to post!", board),
			"class", "loading-message"))
	}
	for _, t := range sorted {
		appendAll(div, r.Thread(board, t, viewer))
	}
	return div
}

// NewThreadSection is the thread composer shown above every board except rules.
func (r *Renderer) NewThreadSection(board domain.BoardName, viewer Viewer) *html.Node {
	section := el(atom.Div, "id", "new-thread-section", "class", "new-thread-section")
	form := el(atom.Form,
		"id", "new-thread-form",
		"method", "post",
		"action", "/"+url.PathEscape(board)+"/threads",
		"enctype", "multipart/form-data",
	)
	appendAll(form,
		hidden(csrf.FormField, viewer.CSRFToken),
		el(atom.Input, "type", "text", "name", "subject", "placeholder", "Subject (optional)"),
		el(atom.Textarea, "name", "comment", "placeholder", "Comment", "required", ""),
		el(atom.Input, "type", "url", "name", "image_url", "placeholder", "Image URL (optional)"),
		el(atom.Input, "type", "file", "name", "image_file", "accept", "image/*"),
		appendAll(el(atom.Label, "class", "disable-replies"),
			el(atom.Input, "type", "checkbox", "name", "disable_replies", "value", "true"),
			text(" Disable replies"),
		),
		withText(atom.Button, "Create Thread", "type", "submit"),
	)
	return appendAll(section,
		withText(atom.H2, fmt.Sprintf("Start a new thread on /%s/", board)),
		form,
	)
}

// Rules wraps already sanitised rules HTML.
func (r *Renderer) Rules(rulesHTML string) *html.Node {
	div := el(atom.Div, "id", "board-content", "class", "board-content rules-container", "data-board", domain.RulesBoard)
	appendAll(div, withText(atom.H2, "9chan Rules"))

	nodes, err := html.ParseFragment(strings.NewReader(rulesHTML), el(atom.Div))
	if err != nil {
		return appendAll(div, withText(atom.P, "Rules are unavailable."))
	}
	for _, n := range nodes {
		appendAll(div, n)
	}
	return div
}

type NavLink struct {
	Name  string
	Title string
}

// Nav renders the board list. The current board carries active-board.
func (r *Renderer) Nav(boards []NavLink, current domain.BoardName) *html.Node {
	nav := el(atom.Nav, "class", "board-nav")
	for i, b := range boards {
		if i > 0 {
			appendAll(nav, text(" / "))
		}
		class := "board-link"
		if b.Name == current {
			class += " active-board"
		}
		appendAll(nav, withText(atom.A, fmt.Sprintf("/%s/ - %s", b.Name, b.Title),
			"href", "/"+url.PathEscape(b.Name), "class", class, "data-board", b.Name))
	}
	return nav
}

// IdentityDisplay shows who the viewer is. Guests get a connect link.
func (r *Renderer) IdentityDisplay(viewer Viewer, guestPrefix, connectPath string) *html.Node {
	span := el(atom.Span, "id", "user-display", "class", "user-display")
	id := viewer.Identity
	if id.IsGuest(guestPrefix) {
		return appendAll(span,
			text("Welcome, Guest! "),
			withText(atom.A, "Connect", "href", connectPath, "class", "connect-link"),
		)
	}
	if id.AvatarURL != "" {
		appendAll(span, el(atom.Img, "src", id.AvatarURL, "alt", "Avatar", "class", "user-avatar"))
	}
	appendAll(span, text("Welcome, "), withText(atom.Strong, id.Username, "class", "user-name"))
	if viewer.IsModerator {
		appendAll(span, text(" "), withText(atom.Span, "[MOD]", "class", "mod-badge"))
	}
	return appendAll(span, text("!"))
}
