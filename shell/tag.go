package shell

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Attr is a single tag attribute. Attributes keep their declaration order.
type Attr struct {
	Name  string
	Value string
}

// Tag describes one head element. Tags without a Type are skipped.
type Tag struct {
	Type  string
	Value string
	Attrs []Attr
}

var voidTags = map[string]bool{
	"link": true,
	"meta": true,
}

// specialChars reverses the escaping of the five HTML special characters.
var specialChars = strings.NewReplacer(
	"&amp;", "&",
	"&quot;", `"`,
	"&#039;", "'",
	"&#39;", "'",
	"&lt;", "<",
	"&gt;", ">",
)

// GetTag serializes a tag. Attribute values are trimmed, omitted when empty
// and have special characters decoded once. Content is emitted between an
// explicit closing tag; otherwise link and meta stay open and other tags self-close.
// It returns false when the tag has neither attributes nor content.
func GetTag(typ string, attrs []Attr, content string) (string, bool) {
	var b strings.Builder
	b.WriteString("<" + typ)
	hasAttrs := false
	for _, a := range attrs {
		value := strings.TrimSpace(a.Value)
		if value == "" {
			continue
		}
		hasAttrs = true
		fmt.Fprintf(&b, ` %s="%s"`, a.Name, specialChars.Replace(value))
	}
	content = strings.TrimSpace(content)
	switch {
	case content != "":
		b.WriteString(">" + content + "</" + typ + ">")
	case voidTags[typ]:
		b.WriteString(">")
	default:
		b.WriteString("/>")
	}
	if !hasAttrs && content == "" {
		return "", false
	}
	return b.String(), true
}

// String serializes the tag, see GetTag.
func (t Tag) String() (string, bool) {
	if t.Type == "" {
		return "", false
	}
	return GetTag(t.Type, t.Attrs, t.Value)
}

// GetTags serializes and concatenates tags, skipping the ones with nothing to emit.
func GetTags(tags ...Tag) string {
	var b strings.Builder
	for _, t := range tags {
		if s, ok := t.String(); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}

// UnmarshalYAML decodes a mapping such as
//
//	{type: meta, name: description, content: Hi}
//
// keeping the attribute order of the document.
func (t *Tag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: tag must be a mapping", node.Line)
	}
	*t = Tag{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: tag attribute %s must be a scalar", value.Line, key.Value)
		}
		switch key.Value {
		case "type":
			t.Type = value.Value
		case "value":
			t.Value = value.Value
		default:
			t.Attrs = append(t.Attrs, Attr{Name: key.Value, Value: value.Value})
		}
	}
	return nil
}

// attrOrder places identifying attributes before the rest when the
// declaration order is unknown.
var attrOrder = map[string]int{
	"rel":        1,
	"name":       2,
	"property":   3,
	"http-equiv": 4,
	"hreflang":   5,
	"href":       6,
	"content":    7,
}

// TagFromMap builds a tag from a decoded map, as produced by config loaders
// that do not keep key order.
func TagFromMap(m map[string]any) (Tag, error) {
	var t Tag
	for k, v := range m {
		s, ok := scalar(v)
		if !ok {
			return Tag{}, fmt.Errorf("tag attribute %s must be a scalar", k)
		}
		switch k {
		case "type":
			t.Type = s
		case "value":
			t.Value = s
		default:
			t.Attrs = append(t.Attrs, Attr{Name: k, Value: s})
		}
	}
	sort.Slice(t.Attrs, func(i, j int) bool {
		oi, oj := attrOrder[t.Attrs[i].Name], attrOrder[t.Attrs[j].Name]
		if oi == 0 {
			oi = len(attrOrder) + 1
		}
		if oj == 0 {
			oj = len(attrOrder) + 1
		}
		if oi != oj {
			return oi < oj
		}
		return t.Attrs[i].Name < t.Attrs[j].Name
	})
	return t, nil
}

func scalar(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case nil:
		return "", true
	case bool, int, int64, float64:
		return fmt.Sprint(v), true
	}
	return "", false
}
