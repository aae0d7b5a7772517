package treetopk

import (
	"errors"
	"fmt"

	"github.com/hupe1980/treetopk/node"
	"github.com/hupe1980/treetopk/resource"
	"github.com/hupe1980/treetopk/topk"
	"github.com/hupe1980/treetopk/topology"
	"github.com/hupe1980/treetopk/transport"
	"github.com/hupe1980/treetopk/wire"
)

var (
	// ErrConfig is returned for invalid counts, ranks or K. It is fatal at startup.
	ErrConfig = errors.New("invalid configuration")
	// ErrFetch classifies object read or decode failures. Selectors log and
	// skip them; they are never returned from Run.
	ErrFetch = errors.New("fetch failed")
	// ErrTransport is returned when a snapshot cannot be sent or received.
	ErrTransport = errors.New("transport failed")
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var ce *topology.ConfigError
	if errors.As(err, &ce) {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if errors.Is(err, topk.ErrInvalidK) || errors.Is(err, node.ErrRole) || errors.Is(err, resource.ErrMemoryLimitExceeded) {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	var te *transport.Error
	if errors.As(err, &te) {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	var wm *wire.ErrWidthMismatch
	if errors.As(err, &wm) || errors.Is(err, wire.ErrChecksum) || errors.Is(err, wire.ErrBadMagic) || errors.Is(err, wire.ErrShortFrame) {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	var fe *node.FetchError
	if errors.As(err, &fe) {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	return err
}
