// Package cache keeps descriptions of the exchange's pairs, so that pair
// symbols can be checked without a REST call each time.
package cache // import "github.com/btcturk-go/btcturk-go/cache"

import (
	"context"
	"strings"
	"sync"

	"github.com/juju/errors"

	"github.com/btcturk-go/btcturk-go/client/rest"
)

// PairSource is what the cache is filled from; *rest.RESTClient implements it.
type PairSource interface {
	GetPairsIndex(ctx context.Context) ([]rest.PairDescr, error)
}

var _ PairSource = &rest.RESTClient{}

type Cache struct {
	mtx sync.RWMutex

	pairsByName map[string]rest.PairDescr
	pairsByID   map[int]rest.PairDescr
}

func New() *Cache {
	return &Cache{
		pairsByName: make(map[string]rest.PairDescr),
		pairsByID:   make(map[int]rest.PairDescr),
	}
}

// GetPair looks the pair up by its symbol, plain ("BTCTRY") or normalized
// ("BTC_TRY"), case-insensitively.
func (c *Cache) GetPair(symbol string) (rest.PairDescr, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	p, hit := c.pairsByName[strings.ToUpper(symbol)]
	return p, hit
}

func (c *Cache) GetPairByID(id int) (rest.PairDescr, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	p, hit := c.pairsByID[id]
	return p, hit
}

func (c *Cache) SetPair(p rest.PairDescr) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.setPair(p)
}

func (c *Cache) setPair(p rest.PairDescr) {
	c.pairsByName[strings.ToUpper(p.Name)] = p
	if p.NameNormalized != "" {
		c.pairsByName[strings.ToUpper(p.NameNormalized)] = p
	}
	c.pairsByID[p.ID] = p
}

// Len returns the number of cached pairs.
func (c *Cache) Len() int {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	return len(c.pairsByID)
}

// Refresh replaces the cached pairs with the ones from src.
func (c *Cache) Refresh(ctx context.Context, src PairSource) error {
	pairs, err := src.GetPairsIndex(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.pairsByName = make(map[string]rest.PairDescr, len(pairs)*2)
	c.pairsByID = make(map[int]rest.PairDescr, len(pairs))

	for _, p := range pairs {
		c.setPair(p)
	}

	return nil
}

// LookupPair returns the pair from the cache, refreshing the cache from src
// on a miss. If the pair is still unknown, an error satisfying
// errors.IsNotFound is returned.
func (c *Cache) LookupPair(ctx context.Context, src PairSource, symbol string) (rest.PairDescr, error) {
	if p, hit := c.GetPair(symbol); hit {
		return p, nil
	}

	if err := c.Refresh(ctx, src); err != nil {
		return rest.PairDescr{}, errors.Trace(err)
	}

	if p, hit := c.GetPair(symbol); hit {
		return p, nil
	}

	return rest.PairDescr{}, errors.NotFoundf("pair %q", symbol)
}
