package meshnet

import "fmt"

// AddressBook implements the deterministic ID-to-address mapping of
// spec §6: host is fixed for the deployment, port = BasePort + id.
// Implementations that need a registry instead (spec §6) can satisfy
// the same Addresser interface.
type AddressBook struct {
	Host     string
	BasePort int
}

// Addresser resolves a peer ID to a reachable base URL.
type Addresser interface {
	AddressFor(id PeerId) string
}

// AddressFor returns the base URL ("http://host:port") for a peer ID.
func (b AddressBook) AddressFor(id PeerId) string {
	return fmt.Sprintf("http://%s:%d", b.Host, b.BasePort+int(id))
}
