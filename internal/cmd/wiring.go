package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tomasbasham/ipfs-relay/internal/channel"
	"github.com/tomasbasham/ipfs-relay/internal/config"
	"github.com/tomasbasham/ipfs-relay/internal/ipfs"
	"github.com/tomasbasham/ipfs-relay/internal/relay"
	"github.com/tomasbasham/ipfs-relay/internal/storage"
)

// blobStore is what the relay needs from a storage backend.
type blobStore interface {
	storage.Fetcher
	storage.Signer
}

// newBlobStore opens the backend selected by cfg.
func newBlobStore(ctx context.Context, cfg *config.Config) (blobStore, error) {
	switch cfg.StorageBackend {
	case config.BackendDisk:
		store, err := storage.NewLocalStore(cfg.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise local store: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewGCSStore(ctx, cfg.BucketName, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise GCS store: %w", err)
		}
		return store, nil
	}
}

// newOrchestrator wires an Orchestrator to the IPFS API named in cfg.
func newOrchestrator(cfg *config.Config, fetcher storage.Fetcher, ch channel.Channel, logger *slog.Logger) *relay.Orchestrator {
	return relay.New(relay.Options{
		Fetcher:   fetcher,
		Addresser: ipfs.NewAddresser(cfg.IPFSURL, cfg.Credentials(), cfg.IPFSTimeout),
		Channel:   ch,
		Logger:    logger,
	})
}
