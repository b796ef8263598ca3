package graph

import (
	"sort"
	"strings"

	"github.com/OFFIS-RIT/netunion/pkg/common"
	"github.com/OFFIS-RIT/netunion/pkg/loader"
	"github.com/OFFIS-RIT/netunion/pkg/logger"
)

// Catalogue stores the distinct candidate networks of every size class.
// Within one size class no two networks have the same edge identity set.
//
// A Catalogue is filled once and then only read; reads are safe from
// multiple goroutines as long as no Add is running.
type Catalogue struct {
	bySize map[int][]*common.Network
	seen   map[int]map[string]struct{}
	nextID int
}

// NewCatalogue returns an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{
		bySize: make(map[int][]*common.Network),
		seen:   make(map[int]map[string]struct{}),
	}
}

// Ingest parses and catalogues the given records. Records are processed in
// (size, source ref) order, so of several identical networks the one with
// the smallest source ref is kept whatever order the records came in.
//
// Records that fail to parse are logged, skipped and returned as errors;
// they never abort the ingestion.
func Ingest(records []loader.Record) (*Catalogue, []error) {
	sorted := make([]loader.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Size != sorted[j].Size {
			return sorted[i].Size < sorted[j].Size
		}
		return sorted[i].SourceRef < sorted[j].SourceRef
	})

	cat := NewCatalogue()
	var errs []error
	duplicates := 0
	for _, rec := range sorted {
		network, err := ParseNetwork(rec)
		if err != nil {
			logger.Warn("[Catalogue] Skipping malformed record", "source", rec.SourceRef, "err", err)
			errs = append(errs, err)
			continue
		}
		if !cat.Add(network) {
			duplicates++
			logger.Debug("[Catalogue] Dropping duplicate network", "source", rec.SourceRef, "size", rec.Size)
		}
	}

	logger.Info("[Catalogue] Ingested records",
		"records", len(records),
		"networks", cat.Len(),
		"duplicates", duplicates,
		"malformed", len(errs),
		"sizes", len(cat.bySize),
	)
	return cat, errs
}

// Add appends the network to its size class unless a network with the same
// edge identity set is already there. It reports whether the network was
// added; on success the network's ID is set.
func (c *Catalogue) Add(network *common.Network) bool {
	key := edgeSetKey(network)
	seen, ok := c.seen[network.Size]
	if !ok {
		seen = make(map[string]struct{})
		c.seen[network.Size] = seen
	}
	if _, dup := seen[key]; dup {
		return false
	}
	seen[key] = struct{}{}

	network.ID = c.nextID
	c.nextID++
	c.bySize[network.Size] = append(c.bySize[network.Size], network)
	return true
}

// Sizes returns the populated size classes in ascending order.
func (c *Catalogue) Sizes() []int {
	sizes := make([]int, 0, len(c.bySize))
	for size, networks := range c.bySize {
		if len(networks) > 0 {
			sizes = append(sizes, size)
		}
	}
	sort.Ints(sizes)
	return sizes
}

// Get returns the networks of a size class in ingestion order. The slice
// must not be modified.
func (c *Catalogue) Get(size int) []*common.Network {
	return c.bySize[size]
}

// Len returns the total number of networks.
func (c *Catalogue) Len() int {
	n := 0
	for _, networks := range c.bySize {
		n += len(networks)
	}
	return n
}

// MaxSize returns the largest populated size class, or 0 for an empty
// catalogue.
func (c *Catalogue) MaxSize() int {
	sizes := c.Sizes()
	if len(sizes) == 0 {
		return 0
	}
	return sizes[len(sizes)-1]
}

// edgeSetKey builds a canonical string for the network's set of edge
// identities.
func edgeSetKey(network *common.Network) string {
	keys := network.EdgeKeys()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Source != keys[j].Source {
			return keys[i].Source < keys[j].Source
		}
		return keys[i].Sink < keys[j].Sink
	})

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(string(k.Source))
		b.WriteByte(0)
		b.WriteString(string(k.Sink))
		b.WriteByte(0)
	}
	return b.String()
}
