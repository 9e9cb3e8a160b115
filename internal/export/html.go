// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"

	"github.com/tutordeck/tutordeck-tui/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter renders transcripts to a standalone HTML page. Fenced code
// blocks in message content are syntax highlighted with chroma.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// FileExtension returns ".html".
func (e *HTMLExporter) FileExtension() string { return ".html" }

// Export renders the transcript as a self-contained HTML document.
func (e *HTMLExporter) Export(transcript *model.Transcript) ([]byte, error) {
	if err := validateTranscript(transcript); err != nil {
		return nil, err
	}

	var sb strings.Builder
	title := html.EscapeString(transcript.Title())

	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	sb.WriteString("<meta charset=\"utf-8\">\n")
	sb.WriteString(fmt.Sprintf("<title>%s</title>\n", title))
	sb.WriteString("<style>\n")
	sb.WriteString(e.css())
	sb.WriteString("</style>\n</head>\n<body>\n")

	sb.WriteString(fmt.Sprintf("<h1>%s</h1>\n", title))
	sb.WriteString(fmt.Sprintf("<p class=\"meta\">Tutor: %s &middot; %d messages &middot; exported %s</p>\n",
		html.EscapeString(transcript.Conversation.BotName),
		len(transcript.Messages),
		time.Now().Format("2006-01-02 15:04")))

	for _, msg := range transcript.Messages {
		class := "message user"
		if msg.Role == model.RoleBot {
			class = "message bot"
		}
		sb.WriteString(fmt.Sprintf("<div class=\"%s\">\n", class))
		sb.WriteString(fmt.Sprintf("<div class=\"role\">%s", html.EscapeString(msg.Role.DisplayName())))
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			sb.WriteString(fmt.Sprintf(" <span class=\"time\">%s</span>", msg.CreatedAt.Format("2006-01-02 15:04")))
		}
		sb.WriteString("</div>\n")
		sb.WriteString("<div class=\"content\">\n")
		sb.WriteString(e.renderContent(msg.DisplayContent()))
		sb.WriteString("</div>\n</div>\n")
	}

	sb.WriteString("</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// renderContent converts message text to HTML, highlighting fenced code
// blocks and escaping everything else.
func (e *HTMLExporter) renderContent(content string) string {
	var sb strings.Builder
	rest := content

	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			sb.WriteString(renderProse(rest))
			break
		}
		sb.WriteString(renderProse(rest[:start]))
		rest = rest[start+3:]

		// Language tag runs to the end of the fence line.
		language := ""
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			language = strings.TrimSpace(rest[:nl])
			rest = rest[nl+1:]
		}

		end := strings.Index(rest, "```")
		var code string
		if end < 0 {
			// Unterminated fence: treat the remainder as code.
			code, rest = rest, ""
		} else {
			code, rest = rest[:end], rest[end+3:]
		}
		sb.WriteString(e.highlight(code, language))
		if rest == "" {
			break
		}
	}
	return sb.String()
}

// renderProse escapes plain text into paragraph-ish HTML.
func renderProse(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	escaped := html.EscapeString(text)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>\n") + "</p>\n"
}

// highlight renders one code block with chroma, falling back to a plain
// <pre> when tokenizing fails.
func (e *HTMLExporter) highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	styleName := "monokai"
	if e.options.Theme == "light" {
		styleName = "github"
	}
	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	// Inline styles keep the exported page self-contained.
	formatter := chromahtml.New(chromahtml.WithClasses(false))

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "<pre>" + html.EscapeString(code) + "</pre>\n"
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return "<pre>" + html.EscapeString(code) + "</pre>\n"
	}
	return buf.String()
}

// css returns the theme stylesheet.
func (e *HTMLExporter) css() string {
	if e.options.Theme == "light" {
		return `body { font-family: -apple-system, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; background: #ffffff; color: #1f2328; }
.meta { color: #656d76; }
.message { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 8px; }
.message.user { background: #ddf4ff; }
.message.bot { background: #f6f8fa; }
.role { font-weight: 600; margin-bottom: 0.5rem; }
.time { font-weight: 400; color: #656d76; font-size: 0.85em; }
pre { overflow-x: auto; padding: 0.75rem; border-radius: 6px; }
`
	}
	return `body { font-family: -apple-system, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; background: #0d1117; color: #e6edf3; }
.meta { color: #8b949e; }
.message { margin: 1rem 0; padding: 0.75rem 1rem; border-radius: 8px; }
.message.user { background: #13233a; }
.message.bot { background: #161b22; }
.role { font-weight: 600; margin-bottom: 0.5rem; }
.time { font-weight: 400; color: #8b949e; font-size: 0.85em; }
pre { overflow-x: auto; padding: 0.75rem; border-radius: 6px; }
`
}
