package preset

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/srcdoc/internal/types"
)

const passthroughVersion = "1"

// Passthrough returns the HTML preset. The entry document is served as is,
// with local stylesheets and scripts inlined so the result is standalone.
func Passthrough() Preset {
	return Preset{
		Name:        "html",
		Kind:        KindHTML,
		Version:     passthroughVersion,
		Description: "Static HTML with local CSS and scripts inlined",
		Extensions:  []string{".html", ".htm", ".css", ".js", ".mjs", ".svg", ".json", ".txt"},
		Transform:   transformHTML,
		Materialize: materializeHTML,
	}
}

// htmlEntry picks index.html, else the first HTML path in sorted order.
func htmlEntry(files types.FileSet) (string, bool) {
	index := files.Index()
	if _, ok := index["index.html"]; ok {
		return "index.html", true
	}

	for _, p := range files.Paths() {
		switch types.Ext(p) {
		case ".html", ".htm":
			return types.CleanPath(p), true
		}
	}

	return "", false
}

func transformHTML(ctx context.Context, in TransformInput) ([]byte, []string, error) {
	index := in.Files.Index()

	// Every file is one unit; the entry parse and inlining are the work.
	for range in.Files.Paths() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		in.unitDone()
	}

	entry, ok := htmlEntry(in.Files)
	if !ok {
		return nil, []string{"no HTML entry document found (expected index.html)"}, nil
	}

	doc, err := html.Parse(strings.NewReader(index[entry]))
	if err != nil {
		return nil, []string{fmt.Sprintf("%s: %v", entry, err)}, nil
	}

	inliner := &assetInliner{entry: entry, files: index}
	inliner.walk(ctx, doc)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(inliner.diagnostics) > 0 {
		return nil, inliner.diagnostics, nil
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, nil, fmt.Errorf("render %s: %w", entry, err)
	}

	in.logger().Debug(ctx, "Inlined HTML assets", "entry", entry, "inlined", inliner.inlined)

	return buf.Bytes(), nil, nil
}

var doctypePattern = regexp.MustCompile(`(?i)^\s*<!doctype`)

func materializeHTML(_ context.Context, artifact []byte, _ types.Options) (string, error) {
	document := string(artifact)
	if !doctypePattern.MatchString(document) {
		document = "<!DOCTYPE html>\n" + document
	}

	return document, nil
}

type assetInliner struct {
	entry       string
	files       map[string]string
	inlined     int
	diagnostics []string
}

func (a *assetInliner) walk(ctx context.Context, n *html.Node) {
	if ctx.Err() != nil {
		return
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode {
			switch c.DataAtom {
			case atom.Link:
				a.inlineStylesheet(c)
			case atom.Script:
				a.inlineScript(c)
			}
		}
		a.walk(ctx, c)
		c = next
	}
}

func (a *assetInliner) lookup(ref string) (string, bool) {
	content, ok := a.files[resolveRelative(a.entry, ref)]
	if !ok {
		a.diagnostics = append(a.diagnostics, fmt.Sprintf("%s: missing asset %q", a.entry, ref))
	}

	return content, ok
}

func (a *assetInliner) inlineStylesheet(link *html.Node) {
	if !strings.Contains(strings.ToLower(attr(link, "rel")), "stylesheet") {
		return
	}

	href := attr(link, "href")
	if href == "" || isRemote(href) {
		return
	}

	content, ok := a.lookup(href)
	if !ok {
		return
	}

	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	if media := attr(link, "media"); media != "" {
		style.Attr = append(style.Attr, html.Attribute{Key: "media", Val: media})
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: content})

	link.Parent.InsertBefore(style, link)
	link.Parent.RemoveChild(link)
	a.inlined++
}

func (a *assetInliner) inlineScript(script *html.Node) {
	src := attr(script, "src")
	if src == "" || isRemote(src) {
		return
	}

	content, ok := a.lookup(src)
	if !ok {
		return
	}

	kept := script.Attr[:0]
	for _, at := range script.Attr {
		if at.Key != "src" {
			kept = append(kept, at)
		}
	}
	script.Attr = kept

	for c := script.FirstChild; c != nil; c = script.FirstChild {
		script.RemoveChild(c)
	}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: escapeScript(content)})
	a.inlined++
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}

	return ""
}

var scriptCloser = regexp.MustCompile(`(?i)</script`)

// escapeScript keeps inline code from terminating its own script element.
func escapeScript(code string) string {
	return scriptCloser.ReplaceAllStringFunc(code, func(m string) string {
		return `<\/` + m[2:]
	})
}
