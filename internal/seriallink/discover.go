package seriallink

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// ErrNoPort is returned when no serial device matches a known signature.
var ErrNoPort = errors.New("no matching serial device found")

// DefaultSignatures are substrings of the port description or device name
// that identify the actuator board.
var DefaultSignatures = []string{"Arduino", "ACM"}

// listPorts is replaced in tests.
var listPorts = enumerator.GetDetailedPortsList

// Discover scans the available serial devices and returns the first whose
// product description or device name contains one of the signatures.
func Discover(signatures []string) (string, error) {
	if len(signatures) == 0 {
		signatures = DefaultSignatures
	}
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	for _, p := range ports {
		diagf("found port %s (product=%q usb=%v vid=%s pid=%s)", p.Name, p.Product, p.IsUSB, p.VID, p.PID)
		for _, sig := range signatures {
			if sig == "" {
				continue
			}
			if strings.Contains(p.Product, sig) || strings.Contains(p.Name, sig) {
				return p.Name, nil
			}
		}
	}
	return "", ErrNoPort
}
