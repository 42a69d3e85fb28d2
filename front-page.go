package uisite

import "github.com/always-cache/ui-site/shell"

// addFrontPage queues the configured front page head of lang, if any.
func (s *Site) addFrontPage(doc *shell.Document, lang string) {
	fp, ok := s.frontPage[lang]
	if !ok {
		return
	}
	doc.AddHeadTags(fp.Tags...)
	doc.AddHeadTitle(fp.Title, true)
}
