//go:build !unix

package main

import "context"

const externalTriggerHelp = "External checkpoint requests are not supported on this platform."

func externalTrigger(ctx context.Context) (<-chan struct{}, func()) {
	return nil, func() {}
}
