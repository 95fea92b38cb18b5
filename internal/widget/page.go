package widget

import (
	"fmt"
	"net/url"
	"sync"
)

// Page is the host environment a widget runs in: its document plus the
// navigation state the metadata collector reads. Location may change while a
// widget is alive (single-page apps rewrite it with pushState), which is why
// metadata is always read fresh from here.
type Page struct {
	Document *Document

	mu        sync.RWMutex
	location  string
	referrer  string
	userAgent string
}

// NewPage creates a page with an empty document.
func NewPage(location, referrer, userAgent string) (*Page, error) {
	if _, err := url.Parse(location); err != nil {
		return nil, fmt.Errorf("page location: %w", err)
	}
	return &Page{
		Document:  NewDocument(),
		location:  location,
		referrer:  referrer,
		userAgent: userAgent,
	}, nil
}

// Navigate replaces the current location and referrer.
func (p *Page) Navigate(location, referrer string) error {
	if _, err := url.Parse(location); err != nil {
		return fmt.Errorf("page location: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = location
	p.referrer = referrer
	return nil
}

// Environment returns a snapshot of the navigation state.
func (p *Page) Environment() Environment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Environment{
		Location:  p.location,
		Referrer:  p.referrer,
		UserAgent: p.userAgent,
	}
}
