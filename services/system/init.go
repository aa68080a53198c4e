package system

import (
	"context"
	"time"

	"github.com/ValentinKolb/dCtl/lib/confstore"
	"github.com/ValentinKolb/dCtl/lib/model"
	"github.com/ValentinKolb/dCtl/lib/reconcile"
)

// InitInterval is the first delay of the startup reconciliation
const InitInterval = 5 * time.Second

// NewInitPoller returns the startup task: once the config store finished
// its initial load, the debug level of the local cluster member is reset
// to 0 so the stored value matches the running process.
func (s *Service) NewInitPoller() *reconcile.Poller {
	return &reconcile.Poller{
		Name:     "system.init",
		Interval: InitInterval,
		Clock:    s.clock,
		Predicate: func(context.Context) (bool, error) {
			return s.store.IsFinishedInitialLoad(), nil
		},
		Action: func(ctx context.Context) error {
			local, ok := s.store.LocalCluster()
			if !ok {
				return nil
			}
			_, err := s.store.MakeChanges(ctx, confstore.Changes{Update: map[model.Collection][]confstore.Patch{
				model.Clusters: {confstore.NewPatch(local.ID, map[string]interface{}{"debug_level": 0})},
			}})
			return err
		},
	}
}

// StartInit runs the startup task in the background. The returned channel
// is closed when it finished or ctx was cancelled.
func (s *Service) StartInit(ctx context.Context) <-chan struct{} {
	return s.NewInitPoller().Start(ctx)
}
