// Package dcache wraps the PowerPC decoder with an Akita-backed directory
// cache keyed by guest instruction address, so the segment scanner and
// the per-function CFG builder do not decode a word again while it is
// still cached; a word evicted by the LRU policy is decoded again on its
// next miss.
package dcache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/cellforge/ppuxlate/guest"
	"github.com/cellforge/ppuxlate/ppc"
)

// Config sizes the decode cache. BlockSize is fixed at 4 (one PowerPC
// instruction word); Sets and Associativity are the only tunables.
type Config struct {
	Sets          int
	Associativity int
}

// DefaultConfig sizes the decode cache for a typical segment-sized
// translation run, where the payload is a decoded Instruction rather
// than a raw cache line.
func DefaultConfig() Config {
	return Config{Sets: 512, Associativity: 4}
}

// Stats counts decode cache accesses.
type Stats struct {
	Lookups uint64
	Hits    uint64
	Misses  uint64
}

// Cache decodes guest instruction words through an LRU directory, so a
// scan and an overlapping function analysis pass over the same address
// range pay the decode cost once per word for as long as the word stays
// cached.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	decoder   *ppc.Decoder
	store     []ppc.Instruction
	stats     Stats
}

// New creates a decode cache over config.
func New(config Config) *Cache {
	total := config.Sets * config.Associativity
	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			config.Sets,
			config.Associativity,
			4,
			akitacache.NewLRUVictimFinder(),
		),
		decoder: ppc.NewDecoder(),
		store:   make([]ppc.Instruction, total),
	}
}

// Stats returns a snapshot of the cache's access counters.
func (c *Cache) Stats() Stats { return c.stats }

// Decode returns the decoded instruction at addr, reading through mem on
// a miss. The result is identical to calling ppc.NewDecoder().Decode
// directly; caching only ever changes latency, never the decoded value.
func (c *Cache) Decode(mem guest.Memory, addr uint32) ppc.Instruction {
	c.stats.Lookups++

	if block := c.directory.Lookup(0, uint64(addr)); block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		return c.store[c.index(block)]
	}

	c.stats.Misses++
	inst := c.decoder.Decode(mem.Read32(addr))

	victim := c.directory.FindVictim(uint64(addr))
	if victim == nil {
		return inst
	}
	victim.Tag = uint64(addr)
	victim.IsValid = true
	c.store[c.index(victim)] = inst
	c.directory.Visit(victim)

	return inst
}

func (c *Cache) index(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// Reset invalidates every cached line and clears the statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Stats{}
}
