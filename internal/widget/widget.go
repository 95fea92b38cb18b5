// Package widget models the embeddable review widget: the command queue a
// host page pushes onto, the single widget instance per page, the modal it
// injects, the rating/review state machine, metadata collection and the
// submission transport.
//
// The host page is an x/net/html tree (see Page and Document). Events are
// delivered with Widget.Dispatch, which mirrors addEventListener semantics:
// listeners are attached to nodes, events bubble to ancestors, and events on
// nodes that are no longer attached to the document do nothing.
//
// The same package renders the stylesheet and markup served in embed.js, so
// the browser script and this model share one source of truth.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bluefermion/reviews/internal/model"
	"golang.org/x/net/html"
)

// State is the observable phase of a widget.
type State int

const (
	StateHidden State = iota
	StateUnrated
	StateRated
	StateSubmitting
	StateThankYou
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateHidden:
		return "hidden"
	case StateUnrated:
		return "visible(unrated)"
	case StateRated:
		return "visible(rated)"
	case StateSubmitting:
		return "submitting"
	case StateThankYou:
		return "thank_you"
	case StateErrored:
		return "visible(rated, errored)"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// EventType names a DOM event the widget listens for.
type EventType string

const (
	Click      EventType = "click"
	MouseEnter EventType = "mouseenter"
	MouseLeave EventType = "mouseleave"
	Input      EventType = "input"
)

// Event is a DOM event. Value carries the new text for Input events.
type Event struct {
	Type   EventType
	Target *html.Node
	Value  string
}

type listener func(ctx context.Context, ev Event)

// Option customizes a Widget.
type Option func(*Widget)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(w *Widget) { w.clock = c }
}

// WithTransport replaces the HTTP transport built from the config.
func WithTransport(t Transport) Option {
	return func(w *Widget) { w.transport = t }
}

// WithLogger sets the logger used for lifecycle and submission events.
func WithLogger(l *slog.Logger) Option {
	return func(w *Widget) { w.log = l }
}

// ErrNoDocument is returned when the page cannot host the widget.
var ErrNoDocument = errors.New("widget: page has no document head or body")

// Widget is one injected review modal. All methods are safe for concurrent
// use; event handlers run one at a time except for the network call, which
// is made without holding the lock so the modal stays responsive.
type Widget struct {
	cfg       Config
	page      *Page
	clock     Clock
	transport Transport
	log       *slog.Logger

	mu        sync.Mutex
	listeners map[*html.Node]map[EventType][]listener

	style    *html.Node
	overlay  *html.Node
	stars    []*html.Node
	textarea *html.Node
	submit   *html.Node
	message  *html.Node

	visible   bool
	rating    int // committed rating, 0 when none
	text      string
	inFlight  bool
	errored   bool
	completed bool
}

// New injects the widget into page and schedules the modal to appear after
// cfg.Delay. Injection errors are returned to the caller.
func New(page *Page, cfg Config, opts ...Option) (*Widget, error) {
	if page == nil || page.Document == nil || page.Document.Head == nil || page.Document.Body == nil {
		return nil, ErrNoDocument
	}

	w := &Widget{
		cfg:       cfg,
		page:      page,
		clock:     SystemClock{},
		log:       slog.Default(),
		listeners: make(map[*html.Node]map[EventType][]listener),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.transport == nil {
		w.transport = NewHTTPTransport(cfg.Endpoint, cfg.APIKey, cfg.Timeout, nil)
	}
	w.log = w.log.With("component", "widget", "portal_id", cfg.PortalID)

	w.mu.Lock()
	w.injectStyles()
	w.createModal()
	w.mu.Unlock()

	w.clock.AfterFunc(cfg.Delay, w.show)
	w.log.Debug("widget initialized", "delay", cfg.Delay)
	return w, nil
}

// Config returns the effective configuration.
func (w *Widget) Config() Config { return w.cfg }

// injectStyles appends the stylesheet to head once per instance.
func (w *Widget) injectStyles() {
	if w.style != nil {
		return
	}
	w.style = El("style", nil, Text(Stylesheet(w.cfg.PrimaryColor)))
	w.page.Document.Head.AppendChild(w.style)
}

// createModal replaces any overlay already in the document with a fresh one
// and binds its listeners.
func (w *Widget) createModal() {
	for _, old := range w.page.Document.FindAllByClass(ClassOverlay) {
		w.unbind(old)
		Detach(old)
	}

	w.overlay = buildModal()
	w.stars = FindAllByClass(w.overlay, ClassStar)
	w.textarea = FindByClass(w.overlay, ClassTextarea)
	w.submit = FindByClass(w.overlay, ClassSubmit)
	w.message = FindByClass(w.overlay, ClassMessage)
	w.rating = 0
	w.text = ""
	w.errored = false
	w.completed = false
	w.page.Document.Body.AppendChild(w.overlay)

	for i, star := range w.stars {
		value := i + 1
		w.on(star, Click, func(context.Context, Event) { w.commitRating(value) })
		w.on(star, MouseEnter, func(context.Context, Event) { w.previewRating(value) })
		w.on(star, MouseLeave, func(context.Context, Event) { w.previewRating(-1) })
	}
	w.on(w.textarea, Input, func(_ context.Context, ev Event) { w.setText(ev.Value) })
	w.on(w.submit, Click, w.onSubmit)
	w.on(FindByClass(w.overlay, ClassClose), Click, func(context.Context, Event) { w.hide() })

	overlay := w.overlay
	w.on(overlay, Click, func(_ context.Context, ev Event) {
		if ev.Target == overlay {
			w.hide()
		}
	})
}

func (w *Widget) on(n *html.Node, typ EventType, fn listener) {
	if n == nil {
		return
	}
	byType := w.listeners[n]
	if byType == nil {
		byType = make(map[EventType][]listener)
		w.listeners[n] = byType
	}
	byType[typ] = append(byType[typ], fn)
}

// unbind drops every listener registered on root or its descendants.
func (w *Widget) unbind(root *html.Node) {
	walk(root, func(n *html.Node) bool {
		delete(w.listeners, n)
		return true
	})
}

// Dispatch delivers ev to ev.Target and its ancestors. Events whose target is
// not attached to the page document are dropped.
func (w *Widget) Dispatch(ctx context.Context, ev Event) {
	if ev.Target == nil {
		return
	}
	w.mu.Lock()
	if !w.page.Document.Contains(ev.Target) {
		w.mu.Unlock()
		return
	}
	var chain []listener
	for n := ev.Target; n != nil; n = n.Parent {
		chain = append(chain, w.listeners[n][ev.Type]...)
	}
	w.mu.Unlock()

	for _, fn := range chain {
		fn(ctx, ev)
	}
}

// show runs when the delay elapses. A missing overlay is recreated first.
func (w *Widget) show() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.overlay == nil || !w.page.Document.Contains(w.overlay) {
		w.createModal()
	}
	SetStyle(w.overlay, "display", "flex")
	AddClass(w.overlay, ClassVisible)
	w.visible = true
	w.log.Debug("modal shown")
}

// hide starts the fade-out; the overlay leaves layout once Fade elapses.
func (w *Widget) hide() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.overlay == nil {
		return
	}
	overlay := w.overlay
	RemoveClass(overlay, ClassVisible)
	w.visible = false
	w.clock.AfterFunc(Fade, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		// A show that raced the fade wins.
		if !HasClass(overlay, ClassVisible) {
			SetStyle(overlay, "display", "none")
		}
	})
}

func (w *Widget) commitRating(value int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if value < model.MinRating || value > model.MaxRating {
		return
	}
	w.rating = value
	w.paintStars(value)
	if !w.inFlight {
		RemoveAttr(w.submit, "disabled")
	}
}

// previewRating highlights the first value stars; -1 restores the committed rating.
func (w *Widget) previewRating(value int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if value < 0 {
		value = w.rating
	}
	w.paintStars(value)
}

func (w *Widget) paintStars(n int) {
	for i, star := range w.stars {
		ToggleClass(star, ClassActive, i < n)
	}
}

func (w *Widget) setText(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.text = s
	RemoveChildren(w.textarea)
	if s != "" {
		w.textarea.AppendChild(Text(s))
	}
}

// onSubmit disables the control before anything else so a second click while
// a request is outstanding finds it disabled and does nothing. A panic
// anywhere in the handler ends in the generic message with the control
// re-enabled.
func (w *Widget) onSubmit(ctx context.Context, _ Event) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("submit handler panicked", "panic", r)
			w.failSubmit(MsgGeneric)
		}
	}()

	rating, text, ok := w.beginSubmit()
	if !ok {
		return
	}
	err := w.send(ctx, rating, text)
	w.finishSubmit(rating, err)
}

func (w *Widget) beginSubmit() (rating int, text string, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight || w.completed {
		return 0, "", false
	}
	if _, disabled := Attr(w.submit, "disabled"); disabled {
		return 0, "", false
	}
	if w.rating == 0 {
		w.showMessage(MsgSelectRating, ClassError)
		return 0, "", false
	}
	SetAttr(w.submit, "disabled", "")
	w.inFlight = true
	return w.rating, w.text, true
}

func (w *Widget) finishSubmit(rating int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false
	if err == nil {
		w.log.Info("review submitted", "rating", rating)
		w.showThankYou()
		return
	}
	w.log.Warn("review submission failed", "error", err)
	w.errored = true
	w.showMessage(UserMessage(err), ClassError)
	RemoveAttr(w.submit, "disabled")
}

func (w *Widget) failSubmit(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false
	w.completed = false
	w.errored = true
	w.showMessage(msg, ClassError)
	RemoveAttr(w.submit, "disabled")
}

// send collects metadata at this instant and hands the request to the
// transport. A panic in that path is reported as an ordinary error.
func (w *Widget) send(ctx context.Context, rating int, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("widget: submit panicked: %v", r)
		}
	}()
	req := model.ReviewSubmissionRequest{
		PortalID:   w.cfg.PortalID,
		Rating:     rating,
		ReviewText: text,
		Metadata:   CollectMetadata(w.page.Environment()),
	}
	return w.transport.Submit(ctx, req)
}

func (w *Widget) showMessage(text, class string) {
	RemoveChildren(w.message)
	w.message.AppendChild(Text(text))
	SetAttr(w.message, "class", ClassMessage+" "+class)
}

// showThankYou swaps the modal content for the thank-you view. The old
// controls are detached, so only the close controls remain live.
func (w *Widget) showThankYou() {
	content := FindByClass(w.overlay, ClassContent)
	for _, old := range RemoveChildren(content) {
		w.unbind(old)
	}
	view := buildThankYou()
	content.AppendChild(view)
	w.on(FindByClass(view, ClassCloseBtn), Click, func(context.Context, Event) { w.hide() })
	w.completed = true
	w.errored = false
}

// State reports the current phase.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case !w.visible:
		return StateHidden
	case w.completed:
		return StateThankYou
	case w.inFlight:
		return StateSubmitting
	case w.errored:
		return StateErrored
	case w.rating > 0:
		return StateRated
	default:
		return StateUnrated
	}
}

// Rating returns the committed rating, 0 when none.
func (w *Widget) Rating() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rating
}

// HighlightedStars counts stars currently painted active.
func (w *Widget) HighlightedStars() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, star := range w.stars {
		if HasClass(star, ClassActive) {
			n++
		}
	}
	return n
}

// SubmitEnabled reports whether the submit control accepts clicks.
func (w *Widget) SubmitEnabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.completed {
		return false
	}
	_, disabled := Attr(w.submit, "disabled")
	return !disabled
}

// Message returns the inline message text and whether it is an error.
func (w *Widget) Message() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return TextContent(w.message), HasClass(w.message, ClassError)
}

// Overlay returns the current overlay node.
func (w *Widget) Overlay() *html.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.overlay
}

// Star returns the node of star n (1-based). Nodes stay addressable after the
// thank-you swap even though they are detached.
func (w *Widget) Star(n int) *html.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n < 1 || n > len(w.stars) {
		return nil
	}
	return w.stars[n-1]
}

// Textarea, SubmitButton and CloseButton expose the live controls.
func (w *Widget) Textarea() *html.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.textarea
}

func (w *Widget) SubmitButton() *html.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submit
}

func (w *Widget) CloseButton() *html.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.completed {
		return FindByClass(w.overlay, ClassCloseBtn)
	}
	return FindByClass(w.overlay, ClassClose)
}
