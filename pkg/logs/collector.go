// Package logs captures log lines emitted while a request is served so they
// can be embedded in error pages.
package logs

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// FieldRequestID tags an entry with the request it belongs to. Entries
// without it are delivered to every active collector.
const FieldRequestID = "request"

const defaultMaxLines = 500

// Hub is a logrus hook fanning entries out to the active collectors.
type Hub struct {
	formatter logrus.Formatter
	maxLines  int

	mu   sync.RWMutex
	subs map[*Collector]struct{}
}

func NewHub() *Hub {
	return &Hub{
		formatter: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
		maxLines:  defaultMaxLines,
		subs:      make(map[*Collector]struct{}),
	}
}

func (h *Hub) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hub) Fire(e *logrus.Entry) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.subs) == 0 {
		return nil
	}

	id, _ := e.Data[FieldRequestID].(string)
	var line string
	for c := range h.subs {
		if id != "" && c.id != "" && id != c.id {
			continue
		}
		if line == "" {
			b, err := h.formatter.Format(e)
			if err != nil {
				return err
			}
			line = strings.TrimRight(string(b), "\n")
		}
		c.add(line)
	}
	return nil
}

// Collect starts a collector for request id. Close it when the request is
// done. A nil hub collects nothing.
func (h *Hub) Collect(id string) *Collector {
	if h == nil {
		return nil
	}
	c := &Collector{hub: h, id: id, max: h.maxLines}
	h.mu.Lock()
	h.subs[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Collector holds the lines seen while it was open, oldest first. Past the
// limit the oldest lines are dropped.
type Collector struct {
	hub *Hub
	id  string
	max int

	mu      sync.Mutex
	lines   []string
	dropped int
}

func (c *Collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) >= c.max {
		c.lines = c.lines[1:]
		c.dropped++
	}
	c.lines = append(c.lines, line)
}

func (c *Collector) Lines() []string {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *Collector) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func (c *Collector) Close() {
	if c == nil || c.hub == nil {
		return
	}
	c.hub.mu.Lock()
	delete(c.hub.subs, c)
	c.hub.mu.Unlock()
}
