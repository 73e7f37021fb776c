package ensemble

// PID identifies an actor. A PID with an empty Address names a local actor
// managed by this process's System; a non-empty Address names an actor
// owned by a remote System and is only meaningful to a configured Transport.
type PID struct {
	ID      string
	Address string
}

// NewPID builds a local PID from a raw id.
func NewPID(id string) *PID {
	return &PID{ID: id}
}

// NewRemotePID builds a PID addressed at a remote system.
func NewRemotePID(id, address string) *PID {
	return &PID{ID: id, Address: address}
}

func (p *PID) String() string {
	if p == nil {
		return "<nil>"
	}
	if p.Address == "" {
		return p.ID
	}
	return p.ID + "@" + p.Address
}

// IsLocal reports whether this PID names an actor hosted by the local system.
func (p *PID) IsLocal() bool {
	return p == nil || p.Address == ""
}

// Equal compares two PIDs by value.
func (p *PID) Equal(other *PID) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.ID == other.ID && p.Address == other.Address
}
