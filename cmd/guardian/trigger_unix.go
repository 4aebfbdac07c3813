//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

const externalTriggerHelp = "Send SIGUSR1 to the process to checkpoint immediately, e.g. after an AI tool edited files."

// externalTrigger turns SIGUSR1 into checkpoint requests.
func externalTrigger(ctx context.Context) (<-chan struct{}, func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)

	out := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, func() { signal.Stop(sigs) }
}
