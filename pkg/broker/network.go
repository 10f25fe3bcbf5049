package broker

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var lookupHost = net.DefaultResolver.LookupHost

// WaitForNetwork blocks until host resolves, retrying every interval with no
// give-up. Link association itself is the operating system's job; a
// resolvable broker endpoint is how the node knows the link is up.
func WaitForNetwork(ctx context.Context, host string, every time.Duration) error {
	if every <= 0 {
		every = 500 * time.Millisecond
	}
	attempts := 0
	op := func() error {
		attempts++
		addrs, err := lookupHost(ctx, host)
		if err != nil {
			return err
		}
		if len(addrs) == 0 {
			return fmt.Errorf("no addresses for %s", host)
		}
		return nil
	}
	notify := func(err error, _ time.Duration) {
		if attempts == 1 || attempts%20 == 0 {
			log.Printf("broker: waiting for network (%s): %v", host, err)
		}
	}
	bo := backoff.WithContext(backoff.NewConstantBackOff(every), ctx)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return err
	}
	log.Printf("broker: network up, %s resolves after %d attempt(s)", host, attempts)
	return nil
}
