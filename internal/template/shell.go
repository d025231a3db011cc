package template

import (
	"bytes"
	"html/template"
)

var shell = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Subject}}</title>
<style>
body { margin: 0; padding: 0; background: #f4f4f5; font-family: Arial, Helvetica, sans-serif; color: #18181b; }
.container { max-width: 600px; margin: 0 auto; padding: 24px; background: #ffffff; }
.footer { font-size: 12px; color: #71717a; padding-top: 24px; }
</style>
</head>
<body>
<div class="container">
<h2>{{.SiteName}}</h2>
{{.Body}}
<div class="footer">
<p>&copy; {{.Year}} {{.SiteName}}</p>
<p><a href="{{.PreferencesURL}}">Email preferences</a> | <a href="{{.UnsubscribeURL}}">Unsubscribe</a></p>
</div>
</div>
</body>
</html>
`))

type shellData struct {
	Subject        string
	SiteName       string
	Year           string
	Body           template.HTML
	PreferencesURL string
	UnsubscribeURL string
}

func wrapInShell(d shellData) (string, error) {
	var buf bytes.Buffer
	if err := shell.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
