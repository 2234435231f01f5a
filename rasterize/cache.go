/*
Copyright (C) 2018 the emitk authors.
This file is part of emitk.

emitk is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

emitk is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with emitk.  If not, see <http://www.gnu.org/licenses/>.
*/

package rasterize

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/ctessum/sparse"
	"github.com/golang/groupcache/lru"

	"github.com/airshedmodel/emitk/inventory"
)

// defaultPageSize is the number of source weight maps buffered in memory
// before a page is flushed to the backing store.
const defaultPageSize = 500

// pageCacheEntries is the number of recently read pages kept in memory,
// so that one substance pass after another usually reads weight pages
// from memory instead of disk.
const pageCacheEntries = 8

// ErrNotInCache signals that a requested page number exceeds what was
// written. Callers use it to detect the end of a page sequence; it is
// not an application error.
var ErrNotInCache = errors.New("rasterize: page not in cache")

// A CachedRecord is the geometry-independent part of an emission record:
// everything needed to evaluate one (source, substance) emission per
// timestep once the source's cell weights are known.
type CachedRecord struct {
	SourceID  int64
	TimevarID int64
	// Emission is in kg/s.
	Emission float64
}

type emisKey struct {
	sourceType inventory.SourceType
	substance  int64
}

// A Cache pages per-source cell weights and per-substance emission
// records to a temporary directory, bounding the memory needed to
// process a large number of sources. Weight page n holds the weights of
// exactly the sources whose emission records are in emission page n of
// every substance, so callers can read both with the same page number.
//
// A Cache is scoped to a single rasterizer run: acquire it with
// OpenCache, release it with Close on every exit path.
type Cache struct {
	dir      string
	pageSize int
	pages    *lru.Cache

	weightBuf   map[inventory.SourceType]map[int64]*sparse.SparseArray
	weightPages map[inventory.SourceType]int

	emisBuf   map[emisKey][]*CachedRecord
	emisPages map[emisKey]int

	// seen marks every source id encountered, dropped marks those whose
	// geometry contributes to no cell.
	seen    map[inventory.SourceType]map[int64]bool
	dropped map[inventory.SourceType]map[int64]bool

	// features maps each contributing source id to a dense 0-based
	// index, in the order sources were first added.
	features map[inventory.SourceType]map[int64]int

	// timevars holds the time-variation profile ids referenced by the
	// cached records.
	timevars map[int64]bool
}

// OpenCache creates a cache backed by a new temporary directory. A
// pageSize < 1 selects the default of 500 sources per page.
func OpenCache(pageSize int) (*Cache, error) {
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	dir, err := ioutil.TempDir("", "emitk_cache_")
	if err != nil {
		return nil, fmt.Errorf("rasterize: creating cache directory: %v", err)
	}
	c := &Cache{
		dir:         dir,
		pageSize:    pageSize,
		pages:       lru.New(pageCacheEntries),
		weightBuf:   make(map[inventory.SourceType]map[int64]*sparse.SparseArray),
		weightPages: make(map[inventory.SourceType]int),
		emisBuf:     make(map[emisKey][]*CachedRecord),
		emisPages:   make(map[emisKey]int),
		seen:        make(map[inventory.SourceType]map[int64]bool),
		dropped:     make(map[inventory.SourceType]map[int64]bool),
		features:    make(map[inventory.SourceType]map[int64]int),
		timevars:    make(map[int64]bool),
	}
	return c, nil
}

// Close releases the cache's temporary storage.
func (c *Cache) Close() error {
	return os.RemoveAll(c.dir)
}

// Seen reports whether a record for the given source was added before,
// in which case its cell weights are already cached.
func (c *Cache) Seen(st inventory.SourceType, sourceID int64) bool {
	return c.seen[st][sourceID]
}

// AddRecord buffers one emission record. The first time a source id is
// seen, weights must hold its precomputed cell weights; an empty weight
// map means the source contributes to no cell, and all of its records
// are skipped. On later records for the same source, weights is ignored.
func (c *Cache) AddRecord(rec *inventory.EmissionRecord, st inventory.SourceType, weights *sparse.SparseArray) error {
	if c.seen[st] == nil {
		c.seen[st] = make(map[int64]bool)
		c.dropped[st] = make(map[int64]bool)
		c.features[st] = make(map[int64]int)
		c.weightBuf[st] = make(map[int64]*sparse.SparseArray)
	}
	if !c.seen[st][rec.SourceID] {
		c.seen[st][rec.SourceID] = true
		if weights == nil || len(weights.Elements) == 0 {
			c.dropped[st][rec.SourceID] = true
			return nil
		}
		if len(c.weightBuf[st]) >= c.pageSize {
			if err := c.Flush(st); err != nil {
				return err
			}
		}
		c.features[st][rec.SourceID] = len(c.features[st])
		c.weightBuf[st][rec.SourceID] = weights
	}
	if c.dropped[st][rec.SourceID] {
		return nil
	}
	k := emisKey{sourceType: st, substance: rec.SubstanceID}
	if _, ok := c.emisPages[k]; !ok {
		// The substance first appears mid-sequence: backfill empty pages
		// so that its page numbering stays aligned with the weight pages.
		for p := 0; p < c.weightPages[st]; p++ {
			if err := c.writePage(c.emisPageName(k, p), []*CachedRecord{}); err != nil {
				return err
			}
		}
		c.emisPages[k] = c.weightPages[st]
	}
	c.emisBuf[k] = append(c.emisBuf[k], &CachedRecord{
		SourceID:  rec.SourceID,
		TimevarID: rec.TimevarID,
		Emission:  rec.Emission,
	})
	c.timevars[rec.TimevarID] = true
	return nil
}

// Flush writes the current in-memory page of source weights for the
// given source type, together with the buffered emission records of
// every substance of that source type, assigning them the next
// sequential page number. Call it once more after the last record of a
// source type has been added.
func (c *Cache) Flush(st inventory.SourceType) error {
	if len(c.weightBuf[st]) == 0 {
		return nil
	}
	page := c.weightPages[st]
	if err := c.writePage(c.weightPageName(st, page), c.weightBuf[st]); err != nil {
		return err
	}
	c.weightPages[st] = page + 1
	c.weightBuf[st] = make(map[int64]*sparse.SparseArray)
	for k, recs := range c.emisBuf {
		if k.sourceType != st {
			continue
		}
		if err := c.writePage(c.emisPageName(k, page), recs); err != nil {
			return err
		}
		c.emisPages[k] = page + 1
		c.emisBuf[k] = nil
	}
	return nil
}

func (c *Cache) weightPageName(st inventory.SourceType, page int) string {
	return fmt.Sprintf("%s_weights_%d.dat", st, page)
}

func (c *Cache) emisPageName(k emisKey, page int) string {
	return fmt.Sprintf("%s_emis_%d_%d.dat", k.sourceType, k.substance, page)
}

func (c *Cache) writePage(name string, data interface{}) error {
	f, err := os.Create(filepath.Join(c.dir, name))
	if err != nil {
		return fmt.Errorf("rasterize: creating cache page %s: %v", name, err)
	}
	if err := gob.NewEncoder(f).Encode(data); err != nil {
		f.Close()
		return fmt.Errorf("rasterize: writing cache page %s: %v", name, err)
	}
	return f.Close()
}

func (c *Cache) readPage(name string, data interface{}) error {
	f, err := os.Open(filepath.Join(c.dir, name))
	if err != nil {
		return fmt.Errorf("rasterize: opening cache page %s: %v", name, err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(data); err != nil {
		return fmt.Errorf("rasterize: reading cache page %s: %v", name, err)
	}
	return nil
}

// ReadWeights returns the cell weights of the sources in the given page,
// keyed by source id. It returns ErrNotInCache when page exceeds the
// number of pages written.
func (c *Cache) ReadWeights(st inventory.SourceType, page int) (map[int64]*sparse.SparseArray, error) {
	if page >= c.weightPages[st] {
		return nil, ErrNotInCache
	}
	name := c.weightPageName(st, page)
	if w, ok := c.pages.Get(name); ok {
		return w.(map[int64]*sparse.SparseArray), nil
	}
	w := make(map[int64]*sparse.SparseArray)
	if err := c.readPage(name, &w); err != nil {
		return nil, err
	}
	for _, a := range w {
		a.Fix()
	}
	c.pages.Add(name, w)
	return w, nil
}

// ReadEmissions returns the emission records of one substance in the
// given page. It returns ErrNotInCache when page exceeds the number of
// pages written for the (source type, substance) key.
func (c *Cache) ReadEmissions(st inventory.SourceType, substance int64, page int) ([]*CachedRecord, error) {
	k := emisKey{sourceType: st, substance: substance}
	if page >= c.emisPages[k] {
		return nil, ErrNotInCache
	}
	name := c.emisPageName(k, page)
	if recs, ok := c.pages.Get(name); ok {
		return recs.([]*CachedRecord), nil
	}
	var recs []*CachedRecord
	if err := c.readPage(name, &recs); err != nil {
		return nil, err
	}
	c.pages.Add(name, recs)
	return recs, nil
}

// EmissionPageCount returns the number of pages written for a (source
// type, substance) key. Callers iterate pages 0..count-1.
func (c *Cache) EmissionPageCount(st inventory.SourceType, substance int64) int {
	return c.emisPages[emisKey{sourceType: st, substance: substance}]
}

// WeightPageCount returns the number of weight pages written for a
// source type.
func (c *Cache) WeightPageCount(st inventory.SourceType) int {
	return c.weightPages[st]
}

// HasSourceType reports whether any contributing source of the given
// type was cached.
func (c *Cache) HasSourceType(st inventory.SourceType) bool {
	return len(c.features[st]) > 0
}

// HasSubstance reports whether any emission record of the given
// substance and source type was cached.
func (c *Cache) HasSubstance(st inventory.SourceType, substance int64) bool {
	return c.EmissionPageCount(st, substance) > 0
}

// FeatureIndex returns a stable mapping from source id to a dense
// 0-based index for the contributing sources of the given type.
func (c *Cache) FeatureIndex(st inventory.SourceType) map[int64]int {
	return c.features[st]
}

// TimevarIDs returns the ids of the time-variation profiles referenced
// by the cached records. The id 0 stands for the flat default profile.
func (c *Cache) TimevarIDs() []int64 {
	ids := make([]int64, 0, len(c.timevars))
	for id := range c.timevars {
		ids = append(ids, id)
	}
	return ids
}
