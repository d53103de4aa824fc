// Package providers collects the content providers a fetch reported, for
// display on error pages.
package providers

import (
	"sort"
	"sync"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/fetcher"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"
)

// MaxEntries bounds the number of distinct providers kept per fetch.
const MaxEntries = 10

// Summary is what an error page shows.
type Summary struct {
	Total     int                `json:"total"`
	Providers []fetcher.Provider `json:"providers"`
}

// Collector receives progress events for one fetch. It is safe for
// concurrent use.
type Collector struct {
	mu      sync.Mutex
	total   int
	order   []string
	entries map[string]*entry
}

type entry struct {
	provider fetcher.Provider
	addrs    map[string]struct{}
}

func NewCollector() *Collector {
	return &Collector{entries: make(map[string]*entry)}
}

// OnProgress matches fetcher.Options.OnProgress.
func (c *Collector) OnProgress(evt fetcher.ProgressEvent) {
	if !evt.IsFoundProvider() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++

	p := evt.Provider
	key := string(p.Type) + "|" + p.PeerID + "|" + p.URL
	e, ok := c.entries[key]
	if !ok {
		if len(c.order) >= MaxEntries {
			return
		}
		e = &entry{provider: p, addrs: make(map[string]struct{})}
		e.provider.Multiaddrs = nil
		c.entries[key] = e
		c.order = append(c.order, key)
	}
	for _, s := range p.Multiaddrs {
		if n, ok := normalizeAddr(s); ok {
			e.addrs[n] = struct{}{}
		}
	}
}

func normalizeAddr(s string) (string, bool) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		logrus.Debugf("providers: dropping multiaddr %q: %v", s, err)
		return "", false
	}
	return addr.String(), true
}

// Summary returns a snapshot of what has been collected so far.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Summary{Total: c.total, Providers: make([]fetcher.Provider, 0, len(c.order))}
	for _, key := range c.order {
		e := c.entries[key]
		p := e.provider
		if len(e.addrs) > 0 {
			p.Multiaddrs = make([]string, 0, len(e.addrs))
			for a := range e.addrs {
				p.Multiaddrs = append(p.Multiaddrs, a)
			}
			sort.Strings(p.Multiaddrs)
		}
		out.Providers = append(out.Providers, p)
	}
	return out
}
