// Package gateway wraps the VPN panel control API with timeouts, bounded
// retries and idempotency keys. The panel gives no transactional guarantees,
// so every mutating call here is written to be safe to repeat.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"peergate/internal/panel"
)

// ErrUnavailable is the single failure shape callers see once retries are
// exhausted. Local state must not be committed as if the call succeeded.
var ErrUnavailable = errors.New("provisioning unavailable")

// PeerHandle identifies a peer as the remote side knows it.
type PeerHandle struct {
	RemoteID       string
	UserID         uint
	IdempotencyKey string
	PublicKey      string
}

// RetryConfig bounds the retry policy around every panel call.
type RetryConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
}

type Gateway struct {
	client *panel.Client
	retry  RetryConfig
	log    zerolog.Logger
}

func New(client *panel.Client, retry RetryConfig, log zerolog.Logger) *Gateway {
	if retry.MaxTries == 0 {
		retry.MaxTries = 4
	}
	if retry.InitialInterval == 0 {
		retry.InitialInterval = 200 * time.Millisecond
	}
	return &Gateway{
		client: client,
		retry:  retry,
		log:    log.With().Str("component", "gateway").Logger(),
	}
}

func (g *Gateway) retryOpts() []backoff.RetryOption {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.retry.InitialInterval
	return []backoff.RetryOption{
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(g.retry.MaxTries),
	}
}

// AddPeer creates a peer for the user. When a prior attempt's outcome is
// unknown (transport error, the request may have landed), the next attempt
// first checks the remote peer list for the idempotency key instead of
// blindly creating a duplicate.
func (g *Gateway) AddPeer(ctx context.Context, userID uint, idempotencyKey string) (*PeerHandle, error) {
	unknown := false
	op := func() (*PeerHandle, error) {
		if unknown {
			if h := g.findByKey(ctx, userID, idempotencyKey); h != nil {
				g.log.Info().Uint("user_id", userID).Str("remote_id", h.RemoteID).
					Msg("prior add attempt had landed, reusing remote peer")
				return h, nil
			}
		}

		resp, err := g.client.CreatePeer(ctx, panel.CreatePeerRequest{
			UserID:         formatUserID(userID),
			IdempotencyKey: idempotencyKey,
		})
		if err != nil {
			unknown = outcomeUnknown(err)
			return nil, classify(err)
		}
		return handleFrom(userID, resp), nil
	}

	h, err := backoff.Retry(ctx, op, g.retryOpts()...)
	if err != nil {
		return nil, fmt.Errorf("add peer: %w: %w", ErrUnavailable, err)
	}
	return h, nil
}

// RemovePeer deletes a peer by its remote identifier. Deleting an
// already-absent peer is success.
func (g *Gateway) RemovePeer(ctx context.Context, remoteID string) error {
	op := func() (struct{}, error) {
		err := g.client.DeletePeer(ctx, remoteID)
		var apiErr *panel.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return struct{}{}, nil
		}
		if err != nil {
			return struct{}{}, classify(err)
		}
		return struct{}{}, nil
	}

	if _, err := backoff.Retry(ctx, op, g.retryOpts()...); err != nil {
		return fmt.Errorf("remove peer: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// ListPeers returns the peers the remote side currently holds for the user.
func (g *Gateway) ListPeers(ctx context.Context, userID uint) ([]PeerHandle, error) {
	op := func() ([]PeerHandle, error) {
		resp, err := g.client.ListPeers(ctx, formatUserID(userID))
		if err != nil {
			return nil, classify(err)
		}
		handles := make([]PeerHandle, 0, len(resp))
		for i := range resp {
			handles = append(handles, *handleFrom(userID, &resp[i]))
		}
		return handles, nil
	}

	handles, err := backoff.Retry(ctx, op, g.retryOpts()...)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w: %w", ErrUnavailable, err)
	}
	return handles, nil
}

// findByKey checks the remote list for a peer created under the given
// idempotency key. Best effort: listing failures read as "not found" and the
// caller falls back to creating.
func (g *Gateway) findByKey(ctx context.Context, userID uint, idempotencyKey string) *PeerHandle {
	resp, err := g.client.ListPeers(ctx, formatUserID(userID))
	if err != nil {
		return nil
	}
	for i := range resp {
		if resp[i].IdempotencyKey == idempotencyKey {
			return handleFrom(userID, &resp[i])
		}
	}
	return nil
}

// outcomeUnknown reports whether the panel may have applied the request even
// though the call errored. An APIError means the panel answered and rejected;
// anything else is a transport failure with an unknown result.
func outcomeUnknown(err error) bool {
	var apiErr *panel.APIError
	return !errors.As(err, &apiErr)
}

func classify(err error) error {
	var apiErr *panel.APIError
	if errors.As(err, &apiErr) && !apiErr.Temporary() {
		return backoff.Permanent(err)
	}
	return err
}

func handleFrom(userID uint, resp *panel.PeerResponse) *PeerHandle {
	return &PeerHandle{
		RemoteID:       resp.UUID,
		UserID:         userID,
		IdempotencyKey: resp.IdempotencyKey,
		PublicKey:      resp.PublicKey,
	}
}

func formatUserID(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}
