package arbor

import (
	"sync/atomic"
)

// Stats counts backend traffic. A batch is one Submit call.
type Stats struct {
	WriteBatches  uint64
	DeleteBatches uint64
	ReadBatches   uint64

	EntitiesWritten uint64
	EntitiesDeleted uint64
	EntitiesRead    uint64
}

// Batches returns the total number of Submit calls.
func (s Stats) Batches() uint64 {
	return s.WriteBatches + s.DeleteBatches + s.ReadBatches
}

type statsCounters struct {
	writeBatches    atomic.Uint64
	deleteBatches   atomic.Uint64
	readBatches     atomic.Uint64
	entitiesWritten atomic.Uint64
	entitiesDeleted atomic.Uint64
	entitiesRead    atomic.Uint64
}

func (c *statsCounters) record(op Op, n int) {
	switch op {
	case OpSave:
		c.writeBatches.Add(1)
		c.entitiesWritten.Add(uint64(n))
	case OpDelete:
		c.deleteBatches.Add(1)
		c.entitiesDeleted.Add(uint64(n))
	case OpLoad:
		c.readBatches.Add(1)
		c.entitiesRead.Add(uint64(n))
	default:
		panic(op.String())
	}
}

func (c *statsCounters) snapshot() Stats {
	return Stats{
		WriteBatches:    c.writeBatches.Load(),
		DeleteBatches:   c.deleteBatches.Load(),
		ReadBatches:     c.readBatches.Load(),
		EntitiesWritten: c.entitiesWritten.Load(),
		EntitiesDeleted: c.entitiesDeleted.Load(),
		EntitiesRead:    c.entitiesRead.Load(),
	}
}

// KindStats describes the stored entities of one kind.
type KindStats struct {
	Entities  int
	DataSize  int64
	DataAlloc int64
}

func loggableEntity(kind *Kind, node Node) string {
	if node == nil {
		return "<none>"
	}
	if kind != nil && kind.suppressContent {
		return "<suppressed>"
	}
	return Dump(node)
}
