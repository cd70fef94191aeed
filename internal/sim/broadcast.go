package sim

import (
	"context"
	"errors"
	"time"
)

var (
	errTimeout = errors.New("timeout")
	errDropped = errors.New("message dropped")
)

type Result[T any] struct {
	PeerID int
	Value  T
	Err    error
}

// Broadcast runs call against every peer concurrently and waits for each to
// answer or time out. Results come back in completion order.
func Broadcast[T any](ctx context.Context, peers []Peer, timeout time.Duration, call func(context.Context, Peer) (T, error)) []Result[T] {
	resultsChan := make(chan Result[T], len(peers))

	for _, p := range peers {
		go func(peer Peer) {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan Result[T], 1)
			go func() {
				reply, err := call(callCtx, peer)
				done <- Result[T]{PeerID: peer.ID(), Value: reply, Err: err}
			}()

			select {
			case r := <-done:
				if r.Err != nil && ctx.Err() == nil && errors.Is(r.Err, context.DeadlineExceeded) {
					r.Err = errTimeout
				}
				resultsChan <- r
			case <-callCtx.Done():
				err := errTimeout
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				resultsChan <- Result[T]{PeerID: peer.ID(), Err: err}
			}
		}(p)
	}

	results := make([]Result[T], 0, len(peers))
	for range peers {
		results = append(results, <-resultsChan)
	}

	return results
}

// lost reports whether err only means the message never arrived.
func lost(err error) bool {
	return errors.Is(err, errDropped) || errors.Is(err, errTimeout)
}
