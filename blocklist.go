// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"context"
	"net"
	"net/netip"
	"slices"
)

// BlockedTargetChecker tells whether a host must not be probed.
//
// Implementations are read-only collaborators injected through
// [Config.BlockedTargets]. They may be shared by concurrent operations.
type BlockedTargetChecker interface {
	// IsBlockedTarget returns the owner of the range containing host
	// and true when host is blocked.
	IsBlockedTarget(ctx context.Context, host string) (owner string, blocked bool)
}

// BlockedTargetFunc adapts a function to the [BlockedTargetChecker] interface.
type BlockedTargetFunc func(ctx context.Context, host string) (string, bool)

var _ BlockedTargetChecker = BlockedTargetFunc(nil)

// IsBlockedTarget implements [BlockedTargetChecker].
func (f BlockedTargetFunc) IsBlockedTarget(ctx context.Context, host string) (string, bool) {
	return f(ctx, host)
}

// AllowAllTargets is the [BlockedTargetChecker] that never blocks.
var AllowAllTargets = BlockedTargetFunc(func(ctx context.Context, host string) (string, bool) {
	return "", false
})

// Resolver abstracts the [*net.Resolver] behavior.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// PrefixBlocklist blocks hosts resolving into known address ranges.
//
// Host names are resolved with Resolver. IP literals are matched
// directly. A resolution failure does not block: the subsequent dial
// reports it as [KindDNSFailure].
//
// Construct using [NewPrefixBlocklist].
type PrefixBlocklist struct {
	// Owners maps an owner label (e.g., "cloudflare") to its ranges.
	Owners map[string][]netip.Prefix

	// Resolver resolves host names.
	//
	// Set by [NewPrefixBlocklist] to [net.DefaultResolver].
	Resolver Resolver
}

var _ BlockedTargetChecker = &PrefixBlocklist{}

// NewPrefixBlocklist returns a [*PrefixBlocklist] for owners.
func NewPrefixBlocklist(owners map[string][]netip.Prefix) *PrefixBlocklist {
	return &PrefixBlocklist{Owners: owners, Resolver: net.DefaultResolver}
}

// IsBlockedTarget implements [BlockedTargetChecker].
func (b *PrefixBlocklist) IsBlockedTarget(ctx context.Context, host string) (string, bool) {
	var addrs []netip.Addr
	if addr, err := netip.ParseAddr(host); err == nil {
		addrs = append(addrs, addr)
	} else {
		resolved, err := b.Resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return "", false
		}
		addrs = resolved
	}
	return b.match(addrs)
}

func (b *PrefixBlocklist) match(addrs []netip.Addr) (string, bool) {
	owners := make([]string, 0, len(b.Owners))
	for owner := range b.Owners {
		owners = append(owners, owner)
	}
	slices.Sort(owners)
	for _, addr := range addrs {
		addr = addr.Unmap()
		for _, owner := range owners {
			for _, prefix := range b.Owners[owner] {
				if prefix.Contains(addr) {
					return owner, true
				}
			}
		}
	}
	return "", false
}
