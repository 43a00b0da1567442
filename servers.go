package stompclient

import (
	"errors"

	"github.com/zeebo/xxh3"

	"github.com/pior/stompclient/internal"
)

var ErrNoServers = errors.New("stompclient: no servers configured")

// Servers supplies the broker addresses a PublishClient may send to.
// Implementations can be static or back onto service discovery.
type Servers interface {
	// List returns the current broker addresses ("host:port").
	List() []string
}

// NewStaticServers returns a fixed server list.
func NewStaticServers(addresses ...string) Servers {
	return staticServers(addresses)
}

type staticServers []string

func (s staticServers) List() []string { return s }

// SelectServerFunc picks which broker receives frames for a destination.
// It gets the destination and the current server list.
type SelectServerFunc func(destination string, servers []string) (string, error)

// DefaultSelectServer hashes the destination over the server list, so all
// frames for one destination land on the same broker. Single-address
// lists skip the hash.
func DefaultSelectServer(destination string, servers []string) (string, error) {
	switch len(servers) {
	case 0:
		return "", ErrNoServers
	case 1:
		return servers[0], nil
	}
	return servers[xxh3.HashString(destination)%uint64(len(servers))], nil
}

// JumpSelectServer maps destinations onto the server list with Jump
// consistent hashing. Compared to DefaultSelectServer it moves only
// 1/n of the destinations when a server is appended to the list, at the
// cost of sensitivity to reordering.
func JumpSelectServer(destination string, servers []string) (string, error) {
	switch len(servers) {
	case 0:
		return "", ErrNoServers
	case 1:
		return servers[0], nil
	}
	return servers[internal.JumpHash(xxh3.HashString(destination), len(servers))], nil
}
