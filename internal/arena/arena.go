// Package arena implements the single statically sized memory buffer the
// core carves into named regions at construction time, grounded on the
// teacher's kernel/threads/sab/layout.go region catalog (GetAllRegions,
// ValidateMemoryLayout, AlignOffset) generalized from that package's fixed
// SharedArrayBuffer offsets to a budget-driven layout: region sizes come
// from config.Budget instead of hardcoded constants, and the backing store
// is a single Go []byte slab instead of a SharedArrayBuffer.
package arena

import (
	"fmt"
	"unsafe"

	"go.uber.org/multierr"

	"github.com/firmcore/runtime/internal/config"
	"github.com/firmcore/runtime/internal/corerr"
)

const alignment = 8

// Name identifies a region in the catalog.
type Name string

const (
	Messaging   Name = "messaging"
	Events      Name = "events"
	Tasks       Name = "tasks"
	OS          Name = "os"
	Protocol    Name = "protocol"
	Diagnostics Name = "diagnostics"
	Pools       Name = "pools"
)

// Region describes one named, non-overlapping, 8-byte-aligned slice of the
// arena.
type Region struct {
	Name   Name
	Offset uint32
	Size   uint32
}

// Layout is the computed, immutable set of regions for a given budget.
type Layout struct {
	Regions []Region
	Total   uint32
}

func alignUp(n uint32) uint32 {
	return (n + alignment - 1) &^ (alignment - 1)
}

// regionSize returns the size in bytes a region needs for the given
// budget, or 0 if the owning feature is disabled — mirroring spec.md §3's
// "disabled regions have size 0".
func regionSize(name Name, b config.Budget) uint32 {
	switch name {
	case Messaging:
		if !b.Features.Messaging {
			return 0
		}
		perMailbox := b.MsgQueueCapacity * b.MediumEnvelopeSize
		return alignUp(b.MaxTasks*perMailbox + b.MsgMaxTopics*(4+b.MsgMaxSubsPerTopic*4))
	case Events:
		if !b.Features.Events {
			return 0
		}
		return alignUp(b.MaxEvents * 96)
	case Tasks:
		return alignUp(b.MaxTasks * 128)
	case OS:
		return alignUp(256)
	case Protocol:
		if !b.Features.Protocol {
			return 0
		}
		return alignUp(b.ProtocolRingSize + b.ProtocolPacketSize + b.ProtocolMaxHandlers*16)
	case Diagnostics:
		return alignUp(512)
	case Pools:
		if !b.Features.Pools {
			return 0
		}
		total := b.SmallEnvelopeSize*b.SmallPoolBlocks +
			b.MediumEnvelopeSize*b.MediumPoolBlocks +
			b.LargeEnvelopeSize*b.LargePoolBlocks
		if b.Features.ZeroCopy {
			total += b.ZCBlockSize * b.ZCBlockCount
		}
		return alignUp(total)
	default:
		return 0
	}
}

var catalog = []Name{Messaging, Events, Tasks, OS, Protocol, Diagnostics, Pools}

// DeriveLayout computes the region layout for a budget. It is the runtime
// analog of the teacher's compile-time SAB layout: a build-time-equivalent
// assertion that the total does not exceed MemoryBudgetBytes, evaluated
// once at construction instead of via a language-level static_assert (Go
// has none).
func DeriveLayout(b config.Budget) (Layout, error) {
	var regions []Region
	var offset uint32
	for _, name := range catalog {
		size := regionSize(name, b)
		regions = append(regions, Region{Name: name, Offset: offset, Size: size})
		offset += size
	}
	total := offset

	if err := validate(regions, total, b.MemoryBudgetBytes); err != nil {
		return Layout{}, err
	}

	return Layout{Regions: regions, Total: total}, nil
}

func validate(regions []Region, total, budget uint32) error {
	var errs error
	for _, r := range regions {
		if r.Offset%alignment != 0 {
			errs = multierr.Append(errs, fmt.Errorf("region %s offset %d not %d-byte aligned", r.Name, r.Offset, alignment))
		}
	}
	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i], regions[j]
			if a.Offset < b.Offset+b.Size && a.Offset+a.Size > b.Offset {
				errs = multierr.Append(errs, fmt.Errorf("region %s overlaps region %s", a.Name, b.Name))
			}
		}
	}
	if total > budget {
		errs = multierr.Append(errs, fmt.Errorf("arena total %d bytes exceeds memory budget %d bytes", total, budget))
	}
	if errs != nil {
		return corerr.Wrap("arena.DeriveLayout", corerr.InvalidParameter, errs)
	}
	return nil
}

// Arena owns the single backing byte slab and hands out stable region
// slices. Once constructed, an Arena's regions never move: every accessor
// returns a slice into the same backing array for the arena's whole
// lifetime, mirroring spec.md §4.1's "singletons never move" invariant.
type Arena struct {
	layout Layout
	buf    []byte
	byName map[Name]Region
}

// New allocates the backing slab for layout and returns an Arena.
func New(layout Layout) *Arena {
	a := &Arena{
		layout: layout,
		buf:    make([]byte, layout.Total),
		byName: make(map[Name]Region, len(layout.Regions)),
	}
	for _, r := range layout.Regions {
		a.byName[r.Name] = r
	}
	return a
}

// Layout returns the computed region layout.
func (a *Arena) Layout() Layout { return a.layout }

// region returns the raw slice for name, or an error if the region is
// disabled (size 0) — spec.md §4.1 calls accessing a disabled region "a
// programming error"; this port reports it instead of invoking undefined
// behavior, since panicking would violate the no-exceptions non-goal.
func (a *Arena) region(name Name) ([]byte, error) {
	r, ok := a.byName[name]
	if !ok || r.Size == 0 {
		return nil, corerr.New(fmt.Sprintf("arena.%s", name), corerr.InvalidParameter)
	}
	return a.buf[r.Offset : r.Offset+r.Size], nil
}

func (a *Arena) MessagingRegion() ([]byte, error)   { return a.region(Messaging) }
func (a *Arena) EventsRegion() ([]byte, error)      { return a.region(Events) }
func (a *Arena) TasksRegion() ([]byte, error)       { return a.region(Tasks) }
func (a *Arena) OSRegion() ([]byte, error)          { return a.region(OS) }
func (a *Arena) ProtocolRegion() ([]byte, error)    { return a.region(Protocol) }
func (a *Arena) DiagnosticsRegion() ([]byte, error) { return a.region(Diagnostics) }
func (a *Arena) PoolsRegion() ([]byte, error)       { return a.region(Pools) }

// FitsType reports whether T fits within region's size, the runtime
// analog of spec.md §4.1's sizeof(T) <= region.size compile-time
// assertion.
func FitsType[T any](region Region) bool {
	var zero T
	return uint32(unsafe.Sizeof(zero)) <= region.Size
}
