package dedup

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/ppiankov/mergertracker/internal/model"
)

const defaultShards = 16

// Result is the outcome of merging one candidate
type Result struct {
	Key      string
	Survivor model.ExtractedDeal
	// Updated holds every record whose stored form changed: the candidate,
	// and when the survivor changes, the old survivor and any duplicates
	// re-pointed at the new one. Persisting them keeps the store consistent.
	Updated []model.ExtractedDeal
	Links   []model.DuplicateLink
}

// Duplicate reports whether the candidate lost to an existing deal
func (r Result) Duplicate(candidateID string) bool {
	return r.Survivor.ID != candidateID
}

// Index groups deals by Key. Within a group the survivor is the deal with
// the highest confidence, ties going to the lexically smaller SourceURL, so
// the final state does not depend on arrival order. Nothing is deleted;
// losers get DuplicateOf set.
type Index struct {
	shards []*shard
	digits int
}

type shard struct {
	mu     sync.Mutex
	groups map[string]*group
}

type group struct {
	survivor string
	members  map[string]model.ExtractedDeal
}

// NewIndex creates an index
func NewIndex(cfg model.DedupConfig) *Index {
	n := cfg.Shards
	if n <= 0 {
		n = defaultShards
	}
	ix := &Index{shards: make([]*shard, n), digits: cfg.ValueDigits}
	for i := range ix.shards {
		ix.shards[i] = &shard{groups: make(map[string]*group)}
	}
	return ix
}

func (ix *Index) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return ix.shards[h.Sum32()%uint32(len(ix.shards))]
}

// Merge adds a candidate and returns the group's survivor
func (ix *Index) Merge(candidate model.ExtractedDeal) Result {
	key := Key(candidate, ix.digits)
	candidate.DuplicateOf = nil

	s := ix.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[key]
	if !ok {
		s.groups[key] = &group{
			survivor: candidate.ID,
			members:  map[string]model.ExtractedDeal{candidate.ID: candidate},
		}
		return Result{Key: key, Survivor: candidate, Updated: []model.ExtractedDeal{candidate}}
	}

	if prev, seen := g.members[candidate.ID]; seen && Better(prev, candidate) {
		candidate = prev
	}
	g.members[candidate.ID] = candidate

	best := g.survivor
	for id, m := range g.members {
		if id != best && Better(m, g.members[best]) {
			best = id
		}
	}

	res := Result{Key: key}
	if best == g.survivor {
		survivor := g.members[best]
		if candidate.ID != best {
			candidate.DuplicateOf = model.StringPtr(best)
			g.members[candidate.ID] = candidate
			res.Links = append(res.Links, link(candidate, best, key))
		}
		res.Survivor = survivor
		res.Updated = []model.ExtractedDeal{g.members[candidate.ID]}
		return res
	}

	g.survivor = best
	for id, m := range g.members {
		if id == best {
			m.DuplicateOf = nil
		} else {
			m.DuplicateOf = model.StringPtr(best)
			res.Links = append(res.Links, link(m, best, key))
		}
		g.members[id] = m
		res.Updated = append(res.Updated, m)
	}
	sort.Slice(res.Updated, func(i, j int) bool { return res.Updated[i].ID < res.Updated[j].ID })
	sort.Slice(res.Links, func(i, j int) bool { return res.Links[i].DuplicateID < res.Links[j].DuplicateID })
	res.Survivor = g.members[best]
	return res
}

// Survivors returns the current survivor of every group, sorted by ID
func (ix *Index) Survivors() []model.ExtractedDeal {
	var out []model.ExtractedDeal
	for _, s := range ix.shards {
		s.mu.Lock()
		for _, g := range s.groups {
			out = append(out, g.members[g.survivor])
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of deals merged so far, duplicates included
func (ix *Index) Len() int {
	n := 0
	for _, s := range ix.shards {
		s.mu.Lock()
		for _, g := range s.groups {
			n += len(g.members)
		}
		s.mu.Unlock()
	}
	return n
}

// Better reports whether a should survive over b
func Better(a, b model.ExtractedDeal) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.SourceURL != b.SourceURL {
		return a.SourceURL < b.SourceURL
	}
	return a.ID < b.ID
}

func link(dup model.ExtractedDeal, survivorID, key string) model.DuplicateLink {
	return model.DuplicateLink{
		DuplicateID:  dup.ID,
		SurvivorID:   survivorID,
		Key:          key,
		DuplicateURL: dup.SourceURL,
	}
}
