package handler

import (
	"bytes"
	"fmt"
	"net/http"
	texttemplate "text/template"
	"time"

	"github.com/bluefermion/reviews/internal/model"
	"github.com/bluefermion/reviews/internal/widget"
)

// colorToken stands in for the host's primary color in the stylesheet the
// script carries. It must itself pass the widget color check.
const colorToken = "WIDGETPRIMARYCOLOR"

type embedScriptData struct {
	Endpoint       string
	APIKey         string
	TimeoutMS      int64
	DefaultColor   string
	DefaultDelayMS int64
	MaxDelayMS     int64
	FadeMS         int64
	ColorPattern   string
	ColorToken     string
	CSS            string
	Modal          string
	ThankYou       string
	Prefix         string
	Namespace      string

	MsgNetwork       string
	MsgInvalidPortal string
	MsgInvalidRating string
	MsgGeneric       string
	MsgSelectRating  string
}

// renderScript builds embed.js for the deployment described by o. The
// markup and stylesheet come from the widget package.
func renderScript(tmpl *texttemplate.Template, o Options) ([]byte, error) {
	timeout := o.SubmitTimeout
	if timeout <= 0 {
		timeout = widget.DefaultSubmitTimeout
	}

	data := embedScriptData{
		Endpoint:       o.SubmissionEndpoint,
		APIKey:         o.WidgetAPIKey,
		TimeoutMS:      timeout.Milliseconds(),
		DefaultColor:   model.DefaultPrimaryColor,
		DefaultDelayMS: widget.DefaultDelay.Milliseconds(),
		MaxDelayMS:     widget.MaxDelay.Milliseconds(),
		FadeMS:         widget.Fade.Milliseconds(),
		ColorPattern:   widget.ColorPattern(),
		ColorToken:     colorToken,
		CSS:            widget.Stylesheet(colorToken),
		Modal:          widget.ModalMarkup(),
		ThankYou:       widget.ThankYouMarkup(),
		Prefix:         widget.ClassPrefix,
		Namespace:      widget.NamespaceName,

		MsgNetwork:       widget.MsgNetwork,
		MsgInvalidPortal: widget.MsgInvalidPortal,
		MsgInvalidRating: widget.MsgInvalidRating,
		MsgGeneric:       widget.MsgGeneric,
		MsgSelectRating:  widget.MsgSelectRating,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render embed script: %w", err)
	}
	return buf.Bytes(), nil
}

// HandleEmbedScript serves the widget script host pages load.
func (h *Handler) HandleEmbedScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int((5*time.Minute).Seconds())))
	_, _ = w.Write(h.script)
}
