// Package acinfo resolves access concentrator Ethernet addresses to the
// name of the vendor which registered the address block, using the IEEE
// OUI registry.
package acinfo

import (
	"errors"
	"fmt"
	"net"

	"github.com/klauspost/oui"
)

// Directory answers vendor queries from a loaded OUI registry.
// A nil *Directory is valid and knows no vendors.
type Directory struct {
	query func(mac string) (string, error)
}

// Open loads the IEEE OUI registry file at path, in the oui.txt format
// published by the IEEE and shipped by e.g. the ieee-data package.
func Open(path string) (*Directory, error) {
	db, err := oui.OpenStaticFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open OUI database %s: %w", path, err)
	}
	return &Directory{
		query: func(mac string) (string, error) {
			entry, err := db.Query(mac)
			if err != nil {
				return "", err
			}
			return entry.Manufacturer, nil
		},
	}, nil
}

// IsLocal reports whether addr is locally administered, in which case
// its leading octets are not an OUI.
func IsLocal(addr [6]byte) bool {
	return addr[0]&0x02 != 0
}

// Vendor returns the manufacturer registered for the OUI of addr.  The
// second return value is false if the vendor is unknown.
func (d *Directory) Vendor(addr [6]byte) (string, bool, error) {
	if d == nil || IsLocal(addr) {
		return "", false, nil
	}
	mac := net.HardwareAddr(addr[:]).String()
	name, err := d.query(mac)
	if err != nil {
		if errors.Is(err, oui.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("OUI lookup of %s failed: %w", mac, err)
	}
	return name, name != "", nil
}
