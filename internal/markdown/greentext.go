package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Greentext is a run of consecutive lines starting with '>'.
type Greentext struct {
	ast.BaseBlock
}

func (n *Greentext) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

var KindGreentext = ast.NewNodeKind("Greentext")

func (n *Greentext) Kind() ast.NodeKind {
	return KindGreentext
}

type greentextParser struct{}

func (b *greentextParser) Trigger() []byte {
	return []byte{'>'}
}

// isQuote matches any line starting with '>', the same rule post comments use.
func isQuote(line []byte) bool {
	return len(line) > 0 && line[0] == '>'
}

func (b *greentextParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	line, segment := reader.PeekLine()
	if !isQuote(line) {
		return nil, parser.NoChildren
	}
	node := &Greentext{}
	node.Lines().Append(segment)
	reader.Advance(segment.Len() - 1)
	return node, parser.NoChildren
}

func (b *greentextParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	line, segment := reader.PeekLine()
	if util.IsBlank(line) || !isQuote(line) {
		return parser.Close
	}
	node.Lines().Append(segment)
	reader.Advance(segment.Len() - 1)
	return parser.Continue | parser.NoChildren
}

func (b *greentextParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {}

func (b *greentextParser) CanInterruptParagraph() bool {
	return true
}

func (b *greentextParser) CanAcceptIndentedLine() bool {
	return false
}

type greentextRenderer struct {
	html.Config
}

func (r *greentextRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindGreentext, r.render)
}

func (r *greentextRenderer) render(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	_, _ = w.WriteString(`<p><span class="greentext">`)
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		_, _ = w.Write(util.EscapeHTML(bytes.TrimRight(line.Value(source), "\r\n")))
		if i < lines.Len()-1 {
			_, _ = w.WriteString("<br>")
		}
	}
	_, _ = w.WriteString("</span></p>\n")
	return ast.WalkSkipChildren, nil
}

type greentextExtension struct{}

// GreentextExtension renders quote lines as span.greentext instead of
// blockquotes.
var GreentextExtension goldmark.Extender = &greentextExtension{}

func (e *greentextExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithBlockParsers(
		// ahead of the blockquote parser (800)
		util.Prioritized(&greentextParser{}, 750),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&greentextRenderer{Config: html.NewConfig()}, 500),
	))
}
