package chatbot

import "sync"

// Compose is the pending input: the text that will be sent next and the
// images attached to it.
type Compose struct {
	mu     sync.Mutex
	text   string
	images []string
}

// SetText replaces the pending text
func (c *Compose) SetText(text string) {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
}

// Text returns the pending text
func (c *Compose) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Clear empties the pending text. Attachments are kept.
func (c *Compose) Clear() {
	c.SetText("")
}

// Attach appends a normalized image reference
func (c *Compose) Attach(image string) {
	c.mu.Lock()
	c.images = append(c.images, image)
	c.mu.Unlock()
}

// Images returns a copy of the attached images
func (c *Compose) Images() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.images...)
}

// ClearImages drops all attachments
func (c *Compose) ClearImages() {
	c.mu.Lock()
	c.images = nil
	c.mu.Unlock()
}
