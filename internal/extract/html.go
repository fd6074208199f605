package extract

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		// CLIN schedules on rendered pages are almost always tables.
		table.NewTablePlugin(),
	),
)

// htmlToText converts HTML to markdown after stripping scripts, styles, and
// other active content. Markdown keeps tables and headings readable for the
// extraction engine.
func htmlToText(data []byte) (string, error) {
	clean := bluemonday.UGCPolicy().SanitizeBytes(data)
	return mdConverter.ConvertString(string(clean))
}
