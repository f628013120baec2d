package cinefusion

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/oarkflow/cinefusion/avl"
	"github.com/oarkflow/cinefusion/trie"
)

// indexes are the read-only structures derived from a Store.
type indexes struct {
	titles  *trie.Trie
	numeric map[SortKey]*avl.Tree[float64]
	byTitle *avl.Tree[string]
}

// IndexStats describes the size of the built indexes.
type IndexStats struct {
	TrieNodes  int                  `json:"trie_nodes"`
	TrieKeys   int                  `json:"trie_keys"`
	TrieTitles int                  `json:"trie_titles"`
	Trees      map[string]TreeStats `json:"trees"`
}

type TreeStats struct {
	Keys   int `json:"keys"`
	IDs    int `json:"ids"`
	Height int `json:"height"`
}

func (idx *indexes) stats() IndexStats {
	s := IndexStats{
		TrieNodes:  idx.titles.Nodes(),
		TrieKeys:   idx.titles.Len(),
		TrieTitles: idx.titles.Titles(),
		Trees:      make(map[string]TreeStats, len(idx.numeric)+1),
	}
	for k, t := range idx.numeric {
		s.Trees[string(k)] = TreeStats{Keys: t.Len(), IDs: t.Count(), Height: t.Height()}
	}
	s.Trees[string(SortTitle)] = TreeStats{Keys: idx.byTitle.Len(), IDs: idx.byTitle.Count(), Height: idx.byTitle.Height()}
	return s
}

// buildIndexes builds every index from store. Each index is owned by one
// goroutine, so no index is ever written concurrently.
func buildIndexes(ctx context.Context, store *Store, cfg *Config) (*indexes, error) {
	idx := &indexes{
		titles:  trie.New(trie.WithTopK(cfg.MaxSuggestions), trie.WithStopWords(cfg.StopWords...)),
		numeric: make(map[SortKey]*avl.Tree[float64], 4),
		byTitle: avl.New[string](),
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := range store.records {
			if i%cancelCheckEvery == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			r := &store.records[i]
			idx.titles.Insert(r.Title, r.ID, cfg.Scorer.Score(*r))
		}
		idx.titles.Seal()
		return nil
	})
	g.Go(func() error {
		for i := range store.records {
			if i%cancelCheckEvery == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			idx.byTitle.Insert(store.folded[i].title, store.records[i].ID)
		}
		return idx.byTitle.Validate()
	})
	for _, k := range []SortKey{SortRating, SortYear, SortRuntime, SortVotes} {
		tree := avl.New[float64]()
		idx.numeric[k] = tree
		g.Go(func() error {
			for i := range store.records {
				if i%cancelCheckEvery == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				tree.Insert(numericKey(&store.records[i], k), store.records[i].ID)
			}
			if err := tree.Validate(); err != nil {
				return fmt.Errorf("%s index: %w", k, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return idx, nil
}
