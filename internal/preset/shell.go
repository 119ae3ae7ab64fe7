package preset

import (
	"bytes"
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/srcdoc/internal/types"
)

const tailwindPlayCDN = "https://cdn.tailwindcss.com"

type shellData struct {
	Title     string
	ImportMap string
	Styles    []string
	Tailwind  bool
	Script    string
}

var titleCaser = cases.Title(language.English)

// defaultTitle derives a page title from the entry file name, so
// "src/todo-list.tsx" becomes "Todo List".
func defaultTitle(entry string) string {
	name := strings.TrimSuffix(path.Base(entry), path.Ext(entry))
	if name == "index" || name == "main" || name == "" {
		return "Preview"
	}
	name = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(name)

	return titleCaser.String(name)
}

var styleCloser = regexp.MustCompile(`(?i)</style`)

func escapeStyle(css string) string {
	return styleCloser.ReplaceAllStringFunc(css, func(m string) string {
		return `<\/` + m[2:]
	})
}

// documentShell is the page that hosts a bundled project.
func documentShell(d shellData) templ.Component {
	head := []templ.Component{
		templ.Raw("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n" +
			"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n"),
		titleElement(d.Title),
		rawElement("script", `type="importmap"`, escapeScript(d.ImportMap)),
	}
	if d.Tailwind {
		head = append(head, templ.Raw("<script src=\""+tailwindPlayCDN+"\"></script>\n"))
	}
	for _, css := range d.Styles {
		head = append(head, rawElement("style", "", escapeStyle(css)))
	}

	return templ.Join(append(head,
		templ.Raw("</head>\n<body>\n<div id=\"root\"></div>\n"),
		rawElement("script", `type="module"`, "\n"+escapeScript(d.Script)+"\n"),
		templ.Raw("</body>\n</html>\n"),
	)...)
}

func titleElement(title string) templ.Component {
	return templ.Raw("<title>" + templ.EscapeString(title) + "</title>\n")
}

// rawElement wraps already escaped content in a tag.
func rawElement(tag, attrs, content string) templ.Component {
	open := "<" + tag
	if attrs != "" {
		open += " " + attrs
	}

	return templ.Raw(open + ">" + content + "</" + tag + ">\n")
}

func materializeBundle(ctx context.Context, artifact []byte, options types.Options) (string, error) {
	bundle, err := decodeBundle(artifact)
	if err != nil {
		return "", err
	}

	opts := readReactOptions(options)

	imports, err := templ.JSONString(map[string]any{"imports": bundle.Imports})
	if err != nil {
		return "", err
	}

	title := opts.Title
	if title == "" {
		title = defaultTitle(bundle.Entry)
	}

	var buf bytes.Buffer
	err = documentShell(shellData{
		Title:     title,
		ImportMap: imports,
		Styles:    bundle.Styles,
		Tailwind:  opts.Tailwind,
		Script:    bundle.Code,
	}).Render(ctx, &buf)
	if err != nil {
		return "", err
	}

	return buf.String(), nil
}
