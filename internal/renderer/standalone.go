package renderer

import (
	"bytes"
	"html/template"
)

var standalonePage = template.Must(template.New("standalone").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
      body {
        font-family: Georgia, serif;
        font-size: 12pt;
        line-height: 1.8;
        color: #000;
        max-width: 800px;
        margin: 40px auto;
        padding: 40px;
        background: white;
      }
      h1 { margin: 0 0 30px 0; font-size: 24px; }
      h2 { margin: 35px 0 18px 0; font-size: 18px; }
      h3 { margin: 25px 0 12px 0; font-size: 16px; }
      p { margin: 0 0 16px 0; line-height: 1.8; }
      ul, ol { margin: 12px 0 20px 0; padding-left: 30px; }
      li { margin-bottom: 10px; }
    </style>
  </head>
  <body>
{{.Body}}
  </body>
</html>
`))

// StandaloneHTML wraps a document body in a self-contained HTML page suitable
// for download. body must already be sanitized.
func StandaloneHTML(title, body string) ([]byte, error) {
	var buf bytes.Buffer
	err := standalonePage.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body)})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
