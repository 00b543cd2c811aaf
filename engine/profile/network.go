package profile

import (
	"fmt"
	"io"

	"github.com/xiaonanln/gomercury/engine/msgcatalog"
)

// NetworkProfile reports message traffic of catalogs since it started
type NetworkProfile struct {
	catalogs []*msgcatalog.Catalog
	baseline map[*msgcatalog.MessageHandler]msgcatalog.MessageStats
}

// NewNetworkProfile records the current counters of every message as the baseline
func NewNetworkProfile(catalogs ...*msgcatalog.Catalog) *NetworkProfile {
	p := &NetworkProfile{
		catalogs: catalogs,
		baseline: map[*msgcatalog.MessageHandler]msgcatalog.MessageStats{},
	}
	for _, c := range catalogs {
		for _, h := range c.Handlers() {
			p.baseline[h] = h.Stats()
		}
	}
	return p
}

// MessageTraffic is the traffic of one message over a profile window
type MessageTraffic struct {
	FullName string
	msgcatalog.MessageStats
}

// Diff returns the traffic of messages that were sent or received since the baseline
func (p *NetworkProfile) Diff() []MessageTraffic {
	var res []MessageTraffic
	for _, c := range p.catalogs {
		for _, h := range c.Handlers() {
			cur, base := h.Stats(), p.baseline[h]
			cur.SendCount -= base.SendCount
			cur.SendSize -= base.SendSize
			cur.RecvCount -= base.RecvCount
			cur.RecvSize -= base.RecvSize
			if cur.SendCount == 0 && cur.RecvCount == 0 {
				continue
			}
			res = append(res, MessageTraffic{FullName: h.FullName(), MessageStats: cur})
		}
	}
	return res
}

// Dump writes the traffic to w
func (p *NetworkProfile) Dump(w io.Writer) {
	fmt.Fprintf(w, "%-50s %10s %12s %8s %10s %12s %8s\n", "message", "sent", "bytes", "avg", "recv", "bytes", "avg")
	for _, t := range p.Diff() {
		fmt.Fprintf(w, "%-50s %10d %12d %8d %10d %12d %8d\n", t.FullName,
			t.SendCount, t.SendSize, t.SendAvgSize(), t.RecvCount, t.RecvSize, t.RecvAvgSize())
	}
}
