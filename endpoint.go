// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import (
	"net"
	"strconv"
)

// Endpoint is the target of an operation: a host name or IP literal and
// a TCP port.
type Endpoint struct {
	Host string
	Port uint16
}

// String returns the "host:port" form, bracketing IPv6 literals.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}
