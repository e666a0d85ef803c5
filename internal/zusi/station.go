package zusi

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/zugdienste/internal/ir"
)

// DefaultClassifierCacheSize bounds the number of memoized station names.
const DefaultClassifierCacheSize = 4096

// stationRules are checked in order; the first rule with a keyword
// contained in the lower-cased name wins.
var stationRules = []struct {
	kind     ir.StationKind
	keywords []string
}{
	{ir.StationOpenLine, []string{"sbk", "bk", "esig", "zsig", "asig", "abzw", "üst", "vsig"}},
	{ir.StationOperatingPoint, []string{"bft", "bbf"}},
	{ir.StationPassenger, []string{"hp", "pbf", "hbf"}},
	{ir.StationFreightYard, []string{"gbf", "rbf"}},
}

// Classifier maps station names to a StationKind. The same station names
// recur across thousands of services, so results are memoized in a bounded
// LRU cache. Safe for concurrent use.
type Classifier struct {
	cache *lru.Cache[string, ir.StationKind]
}

// NewClassifier creates a classifier with a cache of the given size.
// A non-positive size uses DefaultClassifierCacheSize.
func NewClassifier(size int) (*Classifier, error) {
	if size <= 0 {
		size = DefaultClassifierCacheSize
	}
	cache, err := lru.New[string, ir.StationKind](size)
	if err != nil {
		return nil, err
	}
	return &Classifier{cache: cache}, nil
}

// Classify returns the kind of the named station.
func (c *Classifier) Classify(name string) ir.StationKind {
	if name == "" {
		return ir.StationUnknown
	}
	if kind, ok := c.cache.Get(name); ok {
		return kind
	}
	kind := classify(name)
	c.cache.Add(name, kind)
	return kind
}

// Len reports the number of memoized names.
func (c *Classifier) Len() int {
	return c.cache.Len()
}

func classify(name string) ir.StationKind {
	lower := norm.NFC.String(strings.ToLower(norm.NFC.String(name)))
	for _, rule := range stationRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.kind
			}
		}
	}
	return ir.StationUnknown
}

// normalizeName trims and NFC-normalizes a station name so that composed
// and decomposed umlauts compare equal.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
