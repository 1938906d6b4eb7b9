// Package address resolves gesture names to bit addresses in PLC memory.
package address

import (
	"errors"
	"fmt"
	"sort"
)

// Errors returned while loading or resolving an address map.
var (
	ErrConfigNotFound  = errors.New("gesture config not found")
	ErrConfigMalformed = errors.New("gesture config malformed")
	ErrUnknownGesture  = errors.New("unknown gesture")
)

// Area identifies a memory area inside the PLC.
type Area byte

// AreaMarker is the bit memory (flag/"Merker") area, written as M on the wire.
const AreaMarker Area = 'M'

func (a Area) String() string {
	return string(rune(a))
}

// ParseArea converts a wire token such as "M" into an Area.
func ParseArea(s string) (Area, error) {
	if len(s) != 1 {
		return 0, fmt.Errorf("invalid memory area %q", s)
	}
	c := s[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return 0, fmt.Errorf("invalid memory area %q", s)
	}
	return Area(c), nil
}

// MaxBit is the highest valid bit offset within a byte.
const MaxBit = 7

// Address locates a single boolean flag: memory area, byte offset and bit offset.
type Address struct {
	Area Area   `json:"area"`
	Byte uint16 `json:"byte"`
	Bit  uint8  `json:"bit"`
}

// String formats the address in PLC notation, e.g. "M4.2".
func (a Address) String() string {
	return fmt.Sprintf("%s%d.%d", a.Area, a.Byte, a.Bit)
}

// Mask returns the byte mask selecting this address's bit.
func (a Address) Mask() byte {
	return 1 << a.Bit
}

// Map is the immutable gesture name to Address table for the active gesture set.
type Map struct {
	set        string
	byteOffset uint16
	entries    map[string]Address
}

// New builds a Map for a gesture set whose flags all live in one byte of marker memory.
// Several names may share a bit; that merges them into one PLC flag.
func New(set string, byteOffset int, gestures map[string]int) (*Map, error) {
	if byteOffset < 0 || byteOffset > 0xFFFF {
		return nil, fmt.Errorf("%w: byte offset %d out of range", ErrConfigMalformed, byteOffset)
	}
	if len(gestures) == 0 {
		return nil, fmt.Errorf("%w: gesture set %q has no gestures", ErrConfigMalformed, set)
	}

	m := &Map{
		set:        set,
		byteOffset: uint16(byteOffset),
		entries:    make(map[string]Address, len(gestures)),
	}
	for name, bit := range gestures {
		if name == "" {
			return nil, fmt.Errorf("%w: empty gesture name in set %q", ErrConfigMalformed, set)
		}
		if bit < 0 || bit > MaxBit {
			return nil, fmt.Errorf("%w: gesture %q bit offset %d outside 0-%d", ErrConfigMalformed, name, bit, MaxBit)
		}
		m.entries[name] = Address{Area: AreaMarker, Byte: m.byteOffset, Bit: uint8(bit)}
	}
	return m, nil
}

// Resolve returns the address mapped to the gesture name.
func (m *Map) Resolve(name string) (Address, error) {
	addr, ok := m.entries[name]
	if !ok {
		return Address{}, fmt.Errorf("%w: %q", ErrUnknownGesture, name)
	}
	return addr, nil
}

// Set returns the name of the active gesture set.
func (m *Map) Set() string {
	return m.set
}

// ByteOffset returns the byte shared by every gesture in the set.
func (m *Map) ByteOffset() uint16 {
	return m.byteOffset
}

// Area returns the memory area of the gesture set.
func (m *Map) Area() Area {
	return AreaMarker
}

// Names returns the mapped gesture names in sorted order.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns the addresses claimed by more than one gesture name.
func (m *Map) Aliases() map[Address][]string {
	byAddr := make(map[Address][]string)
	for _, name := range m.Names() {
		addr := m.entries[name]
		byAddr[addr] = append(byAddr[addr], name)
	}
	for addr, names := range byAddr {
		if len(names) < 2 {
			delete(byAddr, addr)
		}
	}
	return byAddr
}
