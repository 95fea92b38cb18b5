package widget

import (
	"bytes"
	"strconv"
	"text/template"
	"time"

	"github.com/bluefermion/reviews/internal/model"
	"golang.org/x/net/html"
)

// ClassPrefix namespaces every class the widget injects into a host page.
const ClassPrefix = "review-widget-"

// Fade is how long the hide transition runs before the overlay is taken out of layout.
const Fade = 300 * time.Millisecond

func cls(name string) string { return ClassPrefix + name }

// Class names used by the injected markup. Tests and the embed script look
// nodes up by these.
var (
	ClassOverlay  = cls("overlay")
	ClassModal    = cls("modal")
	ClassClose    = cls("close")
	ClassContent  = cls("content")
	ClassStars    = cls("stars")
	ClassStar     = cls("star")
	ClassTextarea = cls("textarea")
	ClassSubmit   = cls("submit")
	ClassMessage  = cls("message")
	ClassThankYou = cls("thank-you")
	ClassCloseBtn = cls("close-btn")
)

// State classes toggled on existing nodes.
const (
	ClassVisible = "visible"
	ClassActive  = "active"
)

// Message classes replace the message node's class the way the widget
// reports outcome.
var (
	ClassError   = cls("error")
	ClassSuccess = cls("success")
)

const (
	titleText       = "Leave a Review"
	placeholderText = "Tell us about your experience... (optional)"
	submitText      = "Submit Review"
	thankYouTitle   = "Thank You!"
	thankYouText    = "We appreciate your feedback. Your review helps us improve!"
)

// buildModal creates the overlay subtree. It starts hidden with the submit
// control disabled until a rating is chosen.
func buildModal() *html.Node {
	stars := El("div", []html.Attribute{A("class", ClassStars)})
	for i := 1; i <= 5; i++ {
		stars.AppendChild(El("span",
			[]html.Attribute{A("class", ClassStar), A("data-rating", strconv.Itoa(i))},
			Text("★"),
		))
	}

	content := El("div", []html.Attribute{A("class", ClassContent)},
		El("h2", nil, Text(titleText)),
		stars,
		El("textarea", []html.Attribute{
			A("class", ClassTextarea),
			A("placeholder", placeholderText),
		}),
		El("button", []html.Attribute{A("class", ClassSubmit), A("disabled", "")}, Text(submitText)),
		El("div", []html.Attribute{A("class", ClassMessage)}),
	)

	return El("div", []html.Attribute{A("class", ClassOverlay), A("style", "display: none")},
		El("div", []html.Attribute{A("class", ClassModal)},
			El("button", []html.Attribute{A("class", ClassClose)}, Text("×")),
			content,
		),
	)
}

// buildThankYou creates the terminal view that replaces the modal content.
func buildThankYou() *html.Node {
	return El("div", []html.Attribute{A("class", ClassThankYou)},
		El("h2", nil, Text(thankYouTitle)),
		El("p", nil, Text(thankYouText)),
		El("button", []html.Attribute{A("class", ClassCloseBtn + " " + ClassSubmit)}, Text("Close Window")),
	)
}

// ModalMarkup renders the initial overlay subtree. The embed script injects
// this exact markup so served pages and the Go model stay in lockstep.
func ModalMarkup() string {
	return Render(buildModal())
}

// ThankYouMarkup renders the thank-you view.
func ThankYouMarkup() string {
	return Render(buildThankYou())
}

var stylesheet = template.Must(template.New("css").Parse(`.{{.P}}overlay {
  position: fixed; top: 0; left: 0; width: 100%; height: 100%;
  background-color: rgba(0, 0, 0, 0.5);
  display: none; justify-content: center; align-items: center;
  z-index: 9999; opacity: 0; transition: opacity 0.3s ease;
}
.{{.P}}overlay.visible { opacity: 1; }
.{{.P}}modal {
  background: white; border-radius: 8px; padding: 24px;
  max-width: 500px; width: 90%; position: relative;
  box-shadow: 0 4px 6px rgba(0, 0, 0, 0.1);
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
}
.{{.P}}close {
  position: absolute; top: 12px; right: 12px;
  background: none; border: none; font-size: 24px; cursor: pointer; color: #666;
}
.{{.P}}stars { display: flex; gap: 8px; margin: 16px 0; justify-content: center; }
.{{.P}}star { font-size: 32px; cursor: pointer; color: #ddd; transition: color 0.2s; }
.{{.P}}star.active { color: {{.Color}}; }
.{{.P}}textarea {
  width: 100%; min-height: 100px; padding: 12px; border: 1px solid #ddd;
  border-radius: 4px; margin: 16px 0; font-family: inherit; resize: vertical; box-sizing: border-box;
}
.{{.P}}submit {
  background-color: {{.Color}}; color: white; border: none; padding: 12px 24px;
  border-radius: 4px; cursor: pointer; font-size: 16px; width: 100%;
}
.{{.P}}submit:disabled { opacity: 0.5; cursor: not-allowed; }
.{{.P}}message { margin-top: 16px; padding: 12px; border-radius: 4px; text-align: center; }
.{{.P}}success { background-color: #d4edda; color: #155724; }
.{{.P}}error { background-color: #f8d7da; color: #721c24; }
.{{.P}}thank-you { text-align: center; padding: 24px; }
.{{.P}}thank-you h2 { color: {{.Color}}; margin-bottom: 16px; }
.{{.P}}close-btn {
  background-color: {{.Color}}; color: white; border: none;
  padding: 8px 16px; border-radius: 4px; cursor: pointer; margin-top: 16px;
}
`))

// Stylesheet renders the widget CSS for a primary color. Values that are not
// a plain color token are replaced by the default.
func Stylesheet(primaryColor string) string {
	if !colorToken.MatchString(primaryColor) {
		primaryColor = model.DefaultPrimaryColor
	}
	var b bytes.Buffer
	data := struct{ P, Color string }{P: ClassPrefix, Color: primaryColor}
	if err := stylesheet.Execute(&b, data); err != nil {
		panic(err)
	}
	return b.String()
}
