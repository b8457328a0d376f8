// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package twoway

import (
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// templateCache holds the parsed templates of the process, keyed by template
// ID. Concurrent first requests for an ID share a single parse, and a failed
// parse is never stored.
//
// The mutex must be locked when accessing templates or gen.
type templateCache struct {
	templates map[string]*Template
	// gen is incremented by every invalidation. A parse started before an
	// invalidation is not stored, as its text may be stale.
	gen   uint64
	mutex sync.RWMutex
	group singleflight.Group
}

var once sync.Once
var singleTemplateCache *templateCache

// templates returns the single instance of the template cache.
func templates() *templateCache {
	once.Do(func() {
		singleTemplateCache = &templateCache{
			templates: map[string]*Template{},
		}
	})
	return singleTemplateCache
}

func (tc *templateCache) lookup(id string) (*Template, bool) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	t, ok := tc.templates[id]
	return t, ok
}

// get returns the template with the given ID, calling load for its text and
// parsing it if it is not cached. Callers share a parse only within the same
// cache generation, so a caller arriving after an invalidation loads afresh.
func (tc *templateCache) get(id string, load func() (string, error)) (*Template, error) {
	tc.mutex.RLock()
	t, ok := tc.templates[id]
	gen := tc.gen
	tc.mutex.RUnlock()
	if ok {
		return t, nil
	}
	key := id + "\x00" + strconv.FormatUint(gen, 10)
	v, err, _ := tc.group.Do(key, func() (any, error) {
		// Check if the template has been stored by someone else since we last
		// checked.
		if t, ok := tc.lookup(id); ok {
			return t, nil
		}

		text, err := load()
		if err != nil {
			return nil, err
		}
		t, err := Parse(text, id)
		if err != nil {
			return nil, err
		}

		tc.mutex.Lock()
		if tc.gen == gen {
			tc.templates[id] = t
		}
		tc.mutex.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Template), nil
}

// invalidatePrefix removes the templates whose ID starts with prefix.
func (tc *templateCache) invalidatePrefix(prefix string) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	for id := range tc.templates {
		if strings.HasPrefix(id, prefix) {
			delete(tc.templates, id)
		}
	}
	tc.gen++
}

func (tc *templateCache) invalidate(id string) {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	delete(tc.templates, id)
	tc.gen++
}

func (tc *templateCache) invalidateAll() {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()
	tc.templates = map[string]*Template{}
	tc.gen++
}

// Prepare returns the template with the given ID from the process wide
// template cache, parsing text and caching the result on first use. Later
// calls with the same ID return the cached template and ignore text until
// the ID is invalidated.
func Prepare(id, text string) (*Template, error) {
	return templates().get(id, func() (string, error) {
		return text, nil
	})
}

// MustPrepare is the same as [Prepare] except that it panics on error.
func MustPrepare(id, text string) *Template {
	t, err := Prepare(id, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Invalidate removes a template from the cache. The next Prepare for id
// parses its text again.
func Invalidate(id string) {
	templates().invalidate(id)
}

// InvalidateAll empties the template cache.
func InvalidateAll() {
	templates().invalidateAll()
}
