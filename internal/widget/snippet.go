package widget

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/bluefermion/reviews/internal/model"
)

// NamespaceName is the global the host snippet and embed.js agree on.
const NamespaceName = "ReviewWidgetNS"

// SnippetOptions describes one host page embedding.
type SnippetOptions struct {
	PortalID     string
	PrimaryColor string
	Delay        time.Duration
	ScriptURL    string
}

var snippetTmpl = template.Must(template.New("snippet").Funcs(template.FuncMap{
	"js": template.JSEscapeString,
}).Parse(`<script>
(function(w,d,r){
  w[r]=w[r]||{}; w[r].q=w[r].q||[];
  w[r].q.push(['init', { portalId: '{{js .PortalID}}', primaryColor: '{{js .PrimaryColor}}', delay: {{.DelayMS}} }]);
  const t=d.createElement('script'); t.async=1; t.src='{{js .ScriptURL}}';
  d.getElementsByTagName('script')[0].parentNode.insertBefore(t, d.getElementsByTagName('script')[0]);
})(window, document, '{{.Namespace}}');
</script>`))

// Snippet renders the script block a host page pastes to load the widget.
func Snippet(o SnippetOptions) (string, error) {
	color := o.PrimaryColor
	if !colorToken.MatchString(color) {
		color = model.DefaultPrimaryColor
	}
	delay := o.Delay
	if delay < 0 {
		delay = DefaultDelay
	}

	var b bytes.Buffer
	err := snippetTmpl.Execute(&b, map[string]any{
		"PortalID":     o.PortalID,
		"PrimaryColor": color,
		"DelayMS":      delay.Milliseconds(),
		"ScriptURL":    o.ScriptURL,
		"Namespace":    NamespaceName,
	})
	if err != nil {
		return "", fmt.Errorf("render snippet: %w", err)
	}
	return b.String(), nil
}

// IframeCode renders the iframe embed for the hosted form at formURL.
func IframeCode(formURL, width string, height int) string {
	if width == "" {
		width = "100%"
	}
	if height <= 0 {
		height = 600
	}
	return fmt.Sprintf("<iframe\n  src=\"%s\"\n  width=\"%s\"\n  height=\"%dpx\"\n  frameborder=\"0\"\n  style=\"border: none;\"\n></iframe>",
		htmltemplate.HTMLEscapeString(formURL), htmltemplate.HTMLEscapeString(width), height)
}
