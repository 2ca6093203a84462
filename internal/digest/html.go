// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package digest

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var markdownConverter = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// RenderHTML converts a rendered Markdown digest into a standalone HTML page.
// Hard wraps keep multi-section abstracts on separate lines.
func RenderHTML(title, markdown string) (string, error) {
	var body bytes.Buffer
	if err := markdownConverter.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("converting digest to HTML: %w", err)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>%s</title>
<style>
body { font-family: 'Segoe UI', Arial, sans-serif; line-height: 1.6; max-width: 860px; margin: 0 auto; padding: 32px 20px; color: #333; }
h1, h2, h3 { color: #2c3e50; }
hr { border: 0; border-top: 1px solid #ddd; margin: 32px 0; }
</style>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(title), body.String()), nil
}
