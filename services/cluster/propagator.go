package cluster

import (
	"context"
	"sync"

	"github.com/ValentinKolb/dCtl/api"
	"go.uber.org/multierr"
)

// Propagator announces committed revisions to every peer through
// cluster_internal.load_system_store. It implements confstore.Propagator.
type Propagator struct {
	peers []*api.ClusterInternalClient
}

// NewPropagator creates a propagator over one remote only client per peer
func NewPropagator(peers ...*api.ClusterInternalClient) *Propagator {
	return &Propagator{peers: peers}
}

// Publish calls all peers in parallel and waits for every one of them, a
// failing peer does not cut the others short. Every failed peer is part of
// the returned error.
func (p *Propagator) Publish(ctx context.Context, revision uint64) error {
	errs := make([]error, len(p.peers))
	var wg sync.WaitGroup
	for i, peer := range p.peers {
		wg.Add(1)
		go func(i int, peer *api.ClusterInternalClient) {
			defer wg.Done()
			errs[i] = peer.LoadSystemStore(ctx, revision)
		}(i, peer)
	}
	wg.Wait()
	err := multierr.Combine(errs...)
	if err == nil && len(p.peers) > 0 {
		log.Debugf("revision %d announced to %d peers", revision, len(p.peers))
	}
	return err
}
