// internal/service/email/templates.go
package email

import (
	"bytes"
	"html/template"
	"time"
)

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8" />
	<title>{{.Brand}}</title>
	<style>
		body { font-family: Arial, sans-serif; background-color: #f6f8fa; padding: 30px; }
		.container { max-width: 600px; margin: auto; background: #fff; border-radius: 10px; overflow: hidden; }
		.header { background: #004aad; color: white; text-align: center; padding: 20px; font-size: 22px; font-weight: bold; }
		.body { padding: 25px; color: #333; line-height: 1.6; }
		.footer { background: #f1f1f1; color: #555; text-align: center; padding: 15px; font-size: 13px; }
	</style>
</head>
<body>
<div class="container">
	<div class="header">{{.Brand}}</div>
	<div class="body">
		<p>Hi {{.Name}},</p>
		{{range .Paragraphs}}<p>{{.}}</p>
		{{end}}
	</div>
	<div class="footer">You are receiving this because you have a {{.Brand}} account.</div>
</div>
</body>
</html>
`))

type message struct {
	Brand      string
	Name       string
	Paragraphs []string
}

func render(m message) (string, error) {
	var buf bytes.Buffer
	if err := layout.Execute(&buf, m); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format("January 2, 2006")
}
