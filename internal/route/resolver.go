package route

import "tvroute/internal/hal"

// Inventory reads ports from the hardware. It never caches: hardware state
// may change between calls, so every reconciliation pass re-queries.
type Inventory struct {
	hw hal.Hardware
}

// NewInventory wraps hw.
func NewInventory(hw hal.Hardware) *Inventory {
	return &Inventory{hw: hw}
}

// ListPorts returns the current ports or an ErrHardwareQuery error.
func (i *Inventory) ListPorts() ([]hal.Port, error) {
	ports, err := i.hw.ListPorts()
	if err != nil {
		return nil, hwErr(opListPorts, err)
	}
	return ports, nil
}

// ResolveSinks returns the sink ports whose class intersects the routed
// output devices, in inventory order.
func ResolveSinks(ports []hal.Port, devices hal.DeviceClass) []hal.Port {
	var sinks []hal.Port
	for _, p := range ports {
		if p.Direction == hal.Sink && p.Class.Intersects(devices) {
			sinks = append(sinks, p)
		}
	}
	return sinks
}

// FindSource returns the source port matching (class, address). An empty
// address matches the first source of the class.
func FindSource(ports []hal.Port, class hal.DeviceClass, address string) *hal.Port {
	for i := range ports {
		p := ports[i]
		if p.Direction != hal.Source || p.Class != class {
			continue
		}
		if address == "" || p.Address == address {
			return &p
		}
	}
	return nil
}

// ResolveSource looks up the source port. DeviceNone returns nil without
// querying the hardware.
func ResolveSource(inv *Inventory, class hal.DeviceClass, address string) (*hal.Port, error) {
	if class == hal.DeviceNone {
		return nil, nil
	}
	ports, err := inv.ListPorts()
	if err != nil {
		return nil, err
	}
	return FindSource(ports, class, address), nil
}

func sinkRefs(sinks []hal.Port) []hal.PortRef {
	refs := make([]hal.PortRef, len(sinks))
	for i, s := range sinks {
		refs[i] = s.Ref()
	}
	return refs
}

// sameMembers compares two ref lists as sets.
func sameMembers(a, b []hal.PortRef) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[hal.PortRef]int, len(a))
	for _, r := range a {
		seen[r]++
	}
	for _, r := range b {
		if seen[r] == 0 {
			return false
		}
		seen[r]--
	}
	return true
}
