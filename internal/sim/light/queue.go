package light

import "github.com/gammazero/deque"

// entry is one unit of flood-fill work: a local voxel plus the intensity
// it is proposed to hold (additive pass) or used to hold (removal pass).
type entry struct {
	x, y, z uint8
	value   uint8
}

// queueBaseCap pre-sizes frontiers so a typical pass never reallocates.
const queueBaseCap = 256

// frontier is the FIFO work queue of one flood-fill pass. It grows when a
// pass outruns the base capacity; entries are never dropped.
type frontier struct {
	d deque.Deque[entry]
}

func newFrontier() *frontier {
	f := &frontier{}
	f.d.SetBaseCap(queueBaseCap)
	return f
}

func (f *frontier) push(e entry) { f.d.PushBack(e) }

func (f *frontier) pop() (entry, bool) {
	if f.d.Len() == 0 {
		return entry{}, false
	}
	return f.d.PopFront(), true
}

func (f *frontier) empty() bool { return f.d.Len() == 0 }
