package shell

import (
	"html"
	"regexp"
	"strings"
)

var (
	titleElement = regexp.MustCompile(`(?i)<\s*title[^>]*>[\s\S]*?<\s*/\s*title>`)
	titleEnd     = regexp.MustCompile(`(?i)<\s*/title\s*>`)
)

// Document is a single-use builder over one HTML shell.
// Head items are queued and applied by Render.
type Document struct {
	original string
	content  string
	pending  []headItem
	title    string
	siteName string
}

type headItem struct {
	tag   Tag
	raw   string
	isTag bool
}

// NewDocument creates a document from shell content.
// A non-empty siteName is appended to titles set with AddHeadTitle.
func NewDocument(content, siteName string) *Document {
	return &Document{
		original: content,
		content:  content,
		siteName: siteName,
	}
}

// Original returns the shell the document was created from.
func (d *Document) Original() string {
	return d.original
}

// AddHeadTags queues tags for the head.
func (d *Document) AddHeadTags(tags ...Tag) *Document {
	for _, t := range tags {
		d.pending = append(d.pending, headItem{tag: t, isTag: true})
	}
	return d
}

// AddHeadHTML queues raw markup for the head.
func (d *Document) AddHeadHTML(raw ...string) *Document {
	for _, r := range raw {
		d.pending = append(d.pending, headItem{raw: r})
	}
	return d
}

// AddHeadTitle sets the title used by Render. An empty title keeps the previous one.
func (d *Document) AddHeadTitle(title string, appendSuffix bool) *Document {
	if title == "" {
		return d
	}
	if appendSuffix && d.siteName != "" {
		title += " | " + d.siteName
	}
	d.title = title
	return d
}

// AppendToHead inserts fragment right after the first closing title tag.
// A fragment that carries its own title replaces the first title element instead.
// Without a title element the document is left unchanged.
func (d *Document) AppendToHead(fragment string) *Document {
	if strings.Contains(fragment, "</title>") {
		if loc := titleElement.FindStringIndex(d.content); loc != nil {
			d.content = d.content[:loc[0]] + fragment + d.content[loc[1]:]
		}
		return d
	}
	if loc := titleEnd.FindStringIndex(d.content); loc != nil {
		d.content = d.content[:loc[1]] + fragment + d.content[loc[1]:]
	}
	return d
}

// SetTitle replaces the first title element. An empty title is ignored.
func (d *Document) SetTitle(title string) {
	if title == "" {
		return
	}
	element := "<title>" + html.EscapeString(title) + "</title>"
	if loc := titleElement.FindStringIndex(d.content); loc != nil {
		d.content = d.content[:loc[0]] + element + d.content[loc[1]:]
	}
}

// Render applies the queued head items and title and returns the document.
// The document should be discarded afterwards: rendering again
// re-applies the queue to the already rendered content.
func (d *Document) Render() string {
	var b strings.Builder
	for _, item := range d.pending {
		if !item.isTag {
			b.WriteString(item.raw)
			continue
		}
		if s, ok := item.tag.String(); ok {
			b.WriteString(s)
		}
	}
	if b.Len() > 0 {
		d.AppendToHead(b.String())
	}
	if d.title != "" {
		d.SetTitle(d.title)
	}
	return d.content
}
