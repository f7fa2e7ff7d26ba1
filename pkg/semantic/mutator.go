package semantic

import (
	"context"

	"github.com/XiaoConstantine/bmark/pkg/embed"
	"github.com/XiaoConstantine/bmark/pkg/store"
)

// Outcome says what Upsert did with a bookmark.
type Outcome int

const (
	// Embedded means the bookmark was (re-)embedded and stored.
	Embedded Outcome = iota
	// Unchanged means the stored vector already matches the content.
	Unchanged
	// Skipped means the bookmark has no text; any stale vector is removed.
	Skipped
	// Failed means embedding or storing the bookmark failed, or an earlier
	// failure in the same batch stopped it from being tried.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Embedded:
		return "embedded"
	case Unchanged:
		return "unchanged"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Item is the text of one bookmark to index.
type Item struct {
	ID          uint64
	Title       string
	Description string
}

// Mutator edits the index inside WithIndexMut. It must not escape the
// callback.
type Mutator struct {
	ctx context.Context
	svc *Service
}

// Index exposes the index for reads.
func (m *Mutator) Index() *store.Index { return m.svc.index }

// Upsert embeds and stores item unless its content hash is unchanged.
func (m *Mutator) Upsert(item Item) (Outcome, error) {
	out, err := m.UpsertBatch([]Item{item})
	if err != nil {
		return Failed, err
	}
	return out[0], nil
}

// UpsertBatch is Upsert for many items with one embedding call for all
// stale ones. On an embedding or insert error nothing after the failure is
// stored and the error is returned along with the full outcome slice: items
// already stored are Embedded, the rest of the stale ones are Failed.
func (m *Mutator) UpsertBatch(items []Item) ([]Outcome, error) {
	s := m.svc
	outcomes := make([]Outcome, len(items))

	var texts []string
	var pending []int
	hashes := make([]uint64, len(items))
	for i, it := range items {
		text, ok := embed.Preprocess(it.Title, it.Description)
		if !ok {
			if s.index.Remove(it.ID) {
				s.dirty = true
			}
			outcomes[i] = Skipped
			continue
		}
		hashes[i] = embed.ContentHash(it.Title, it.Description)
		if e, ok := s.index.Get(it.ID); ok && e.ContentHash == hashes[i] {
			outcomes[i] = Unchanged
			continue
		}
		texts = append(texts, text)
		pending = append(pending, i)
		outcomes[i] = Failed
	}
	if len(texts) == 0 {
		return outcomes, nil
	}

	vecs, err := s.model.EmbedBatch(m.ctx, texts)
	if err != nil {
		return outcomes, err
	}
	for j, i := range pending {
		if err := s.index.Insert(items[i].ID, hashes[i], vecs[j]); err != nil {
			return outcomes, err
		}
		s.dirty = true
		outcomes[i] = Embedded
	}
	return outcomes, nil
}

// Insert stores a precomputed embedding.
func (m *Mutator) Insert(id, contentHash uint64, embedding []float32) error {
	if err := m.svc.index.Insert(id, contentHash, embedding); err != nil {
		return err
	}
	m.svc.dirty = true
	return nil
}

// Dirty reports whether the index has changes not yet saved.
func (m *Mutator) Dirty() bool { return m.svc.dirty }

// Remove deletes id and reports whether it was indexed.
func (m *Mutator) Remove(id uint64) bool {
	if m.svc.index.Remove(id) {
		m.svc.dirty = true
		return true
	}
	return false
}
