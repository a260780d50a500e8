package remote

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console prints status changes to a terminal. Debug text is only printed
// when verbose is set, since it changes with every packet.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	status  string
	debug   string
}

func NewConsole(w io.Writer, verbose bool) *Console {
	return &Console{w: w, verbose: verbose}
}

func (c *Console) SetStatus(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if text == c.status {
		return
	}
	c.status = text
	fmt.Fprintf(c.w, "[status] %s\n", oneLine(text))
}

func (c *Console) SetDebug(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debug = text
	if c.verbose {
		fmt.Fprintf(c.w, "[debug] %s\n", oneLine(text))
	}
}

// Println writes a line of its own, such as a reply to typed input.
func (c *Console) Println(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, text)
}

func (c *Console) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Console) Debug() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debug
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " | ")
}
