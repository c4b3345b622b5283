package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anonvote/anonvote/circuits"
)

// DownloadArtifacts downloads the membership circuit artifacts concurrently.
func DownloadArtifacts(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return circuits.MembershipWasm.Download(ctx)
	})
	g.Go(func() error {
		return circuits.MembershipProvingKey.Download(ctx)
	})
	return g.Wait()
}
