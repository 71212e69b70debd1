package services

import (
	"context"
	"strings"

	"story-offline/internal/models"
	"story-offline/internal/repository"

	"github.com/rs/zerolog/log"
)

// Reconciler decides how remote results merge into the confirmed partition
type Reconciler struct {
	store *repository.Store
}

// NewReconciler creates a new reconciler
func NewReconciler(store *repository.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Apply upserts a successfully fetched set. Confirmed entries missing from
// the set are kept: the remote list may be paginated or filtered, and the
// user's saved copies must survive it. Records without an id cannot be
// keyed and are dropped; the result holds only what was stored.
func (r *Reconciler) Apply(ctx context.Context, fetched []*models.Story) ([]*models.Story, error) {
	valid := withIDs(fetched)
	if skipped := len(fetched) - len(valid); skipped > 0 {
		log.Warn().Int("skipped", skipped).Msg("Dropping fetched stories without id")
	}
	if len(valid) == 0 {
		return []*models.Story{}, nil
	}
	return r.store.PutAll(ctx, valid)
}

func withIDs(stories []*models.Story) []*models.Story {
	out := make([]*models.Story, 0, len(stories))
	for _, st := range stories {
		if st == nil || strings.TrimSpace(st.ID) == "" {
			continue
		}
		out = append(out, st)
	}
	return out
}

// Fallback returns the confirmed partition as-is after a failed fetch
func (r *Reconciler) Fallback(ctx context.Context) ([]*models.Story, error) {
	return r.store.GetAll(ctx)
}
