package render

import (
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ninechan-dev/ninechan/shared/csrf"
	"github.com/ninechan-dev/ninechan/shared/domain"
)

// PageData is everything the page shell needs around the board region.
type PageData struct {
	Board       domain.BoardName
	Boards      []NavLink
	Viewer      Viewer
	GuestPrefix string
	ConnectPath string
	Flash       string
	// Composer is nil on boards without a thread composer.
	Composer *html.Node
	Content  *html.Node
}

// Page builds the full document. The live script replaces #board-content
// and #user-display when the server pushes a re-paint.
func (r *Renderer) Page(d PageData) *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	head := appendAll(el(atom.Head),
		el(atom.Meta, "charset", "utf-8"),
		el(atom.Meta, "name", "viewport", "content", "width=device-width, initial-scale=1"),
		withText(atom.Title, fmt.Sprintf("/%s/ - 9chan", d.Board)),
		el(atom.Link, "rel", "stylesheet", "href", "/static/style.css"),
		el(atom.Script, "src", "/static/live.js", "defer", ""),
	)

	header := appendAll(el(atom.Header, "class", "site-header"),
		withText(atom.H1, "9chan"),
		r.Nav(d.Boards, d.Board),
		r.IdentityDisplay(d.Viewer, d.GuestPrefix, d.ConnectPath),
	)

	main := el(atom.Main, "data-live", "/ws/"+d.Board)
	if d.Flash != "" {
		appendAll(main, withText(atom.Div, d.Flash, "class", "flash-message", "role", "alert"))
	}
	appendAll(main, d.Composer, d.Content)

	body := appendAll(el(atom.Body), header, main)
	appendAll(doc, appendAll(el(atom.Html, "lang", "en"), head, body))
	return doc
}

// Notice is a small standalone page: a heading, a message and a way back.
func (r *Renderer) Notice(title, message, backPath string) *html.Node {
	return r.shell(title, appendAll(el(atom.Div, "class", "notice"),
		withText(atom.H2, title),
		withText(atom.P, message),
		withText(atom.A, "Back", "href", backPath),
	))
}

// ConfirmDelete asks the viewer to confirm a delete. Posting the form with
// confirmed=true performs it.
func (r *Renderer) ConfirmDelete(what, action, backPath string, viewer Viewer) *html.Node {
	form := appendAll(el(atom.Form, "method", "post", "action", action, "class", "confirm-form"),
		hidden(csrf.FormField, viewer.CSRFToken),
		hidden("confirmed", "true"),
		withText(atom.Button, "Delete", "type", "submit", "class", "delete-button"),
		text(" "),
		withText(atom.A, "Cancel", "href", backPath),
	)
	return r.shell("Confirm delete", appendAll(el(atom.Div, "class", "confirm-delete"),
		withText(atom.P, fmt.Sprintf("Are you sure you want to delete this %s?", what)),
		form,
	))
}

// ConnectForm is the identity upgrade page.
func (r *Renderer) ConnectForm(action, backPath, flash string, viewer Viewer) *html.Node {
	box := el(atom.Div, "class", "connect")
	appendAll(box, withText(atom.H2, "Connect your account"))
	if flash != "" {
		appendAll(box, withText(atom.Div, flash, "class", "flash-message", "role", "alert"))
	}
	appendAll(box, appendAll(el(atom.Form, "method", "post", "action", action, "class", "connect-form"),
		hidden(csrf.FormField, viewer.CSRFToken),
		el(atom.Input, "type", "text", "name", "username", "placeholder", "Username", "required", ""),
		el(atom.Input, "type", "password", "name", "password", "placeholder", "Password", "required", ""),
		withText(atom.Button, "Connect", "type", "submit"),
		text(" "),
		withText(atom.A, "Cancel", "href", backPath),
	))
	return r.shell("Connect", box)
}

func (r *Renderer) shell(title string, content *html.Node) *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	head := appendAll(el(atom.Head),
		el(atom.Meta, "charset", "utf-8"),
		withText(atom.Title, title+" - 9chan"),
		el(atom.Link, "rel", "stylesheet", "href", "/static/style.css"),
	)
	body := appendAll(el(atom.Body), appendAll(el(atom.Main), content))
	appendAll(doc, appendAll(el(atom.Html, "lang", "en"), head, body))
	return doc
}
