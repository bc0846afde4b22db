package emit

import "container/heap"

// Register is a virtual register handed out by RegAlloc.Alloc or
// RegAlloc.AllocWindow; it is
// only meaningful until RegAlloc.Finish runs, after which every
// virtual register index is replaced by a physical one via the
// returned mapping.
type Register int

type interval struct {
	index int
	start int
	end   int
}

// RegAlloc implements linear-scan register allocation (Poletto &
// Sarkar), ported from the original compiler's emit/regalloc.rs: each
// call to Alloc opens a new interval at the current event counter;
// each call to Access on a live register extends that interval's end
// to the current event. Finish never spills (the accumulator model
// means intervals are always short-lived), so it only ever grows the
// register file or reuses one that has gone dead.
type RegAlloc struct {
	intervals   []interval
	event       int
	windowSlots int
}

// NewRegAlloc returns an empty allocator.
func NewRegAlloc() *RegAlloc { return &RegAlloc{} }

// maxVirtualRegisters caps the number of virtual registers (linear-scan
// plus window) a single function may hand out. Width prefixes only
// widen an operand's *encoding*, never the logical register-index
// space a FunctionState draws from, which this module bounds
// independently — mirroring the original compiler's u8-register
// ceiling (ex/vm3/src/op/emit.rs's `reg()`, "uses too many registers,
// maximum is 255") rounded to the boundary case spec's own testable
// properties name directly: 256 virtual registers compiles, 257 is an
// EmitError.
const maxVirtualRegisters = 256

// Count reports the number of virtual registers handed out so far
// (Alloc plus AllocWindow), used by the emitter to enforce
// maxVirtualRegisters once a function finishes compiling.
func (r *RegAlloc) Count() int {
	return len(r.intervals) + r.windowSlots
}

func (r *RegAlloc) nextEvent() int {
	e := r.event
	r.event++
	return e
}

// Alloc opens a new virtual register's interval, starting and ending
// at the current event (it is extended by later Access calls).
func (r *RegAlloc) Alloc() Register {
	idx := len(r.intervals)
	e := r.nextEvent()
	r.intervals = append(r.intervals, interval{index: idx, start: e, end: e})
	return Register(idx)
}

// Access records a use of reg at the current event, extending its
// live interval. Not valid for a window register (AllocWindow); those
// are never reclaimed, so they need no liveness tracking.
func (r *RegAlloc) Access(reg Register) {
	r.intervals[reg].end = r.nextEvent()
}

// AllocWindow reserves n virtual registers guaranteed to land on n
// consecutive physical registers after Finish. Linear scan alone
// cannot promise that for independently-allocated registers, but
// several opcodes need it: Call's callee+args, MakeList/MakeDict's
// element run, and MakeClass's method/field run all read a "register
// window" of contiguous slots (spec §4.4, §4.6.3). Window registers
// are carved out of a separate range that sits above every
// linear-scan-tracked register, so they never need to participate in
// (and never collide with) the reuse-driven interval allocation: their
// virtual indices start at maxVirtualRegisters, past any index Alloc
// can hand out in a function that passes the register-count check.
func (r *RegAlloc) AllocWindow(n int) []Register {
	base := maxVirtualRegisters + r.windowSlots
	regs := make([]Register, n)
	for i := 0; i < n; i++ {
		regs[i] = Register(base + i)
	}
	r.windowSlots += n
	return regs
}

// Finish runs linear-scan over every recorded interval, appends the
// window range directly after it, and returns the total physical
// register count plus a mapping from virtual register index (as
// returned by Alloc/AllocWindow) to physical register index.
func (r *RegAlloc) Finish() (count int, mapping []int) {
	scanCount, scanMapping := linearScan(r.intervals)

	total := maxVirtualRegisters + r.windowSlots
	full := make([]int, total)
	copy(full, scanMapping)
	for i := 0; i < r.windowSlots; i++ {
		full[maxVirtualRegisters+i] = scanCount + i
	}
	return scanCount + r.windowSlots, full
}

type activeEntry struct {
	iv  interval
	reg int
}

type freeHeap []int

func (h freeHeap) Len() int            { return len(h) }
func (h freeHeap) Less(i, j int) bool   { return h[i] < h[j] }
func (h freeHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i] }
func (h *freeHeap) Push(x any)          { *h = append(*h, x.(int)) }
func (h *freeHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

func linearScan(intervals []interval) (int, []int) {
	mapping := make([]int, len(intervals))

	byStart := make([]interval, len(intervals))
	copy(byStart, intervals)
	// insertion sort by start; intervals are typically nearly sorted
	// already since allocation order tracks emission order.
	for i := 1; i < len(byStart); i++ {
		j := i
		for j > 0 && byStart[j-1].start > byStart[j].start {
			byStart[j-1], byStart[j] = byStart[j], byStart[j-1]
			j--
		}
	}

	free := &freeHeap{}
	heap.Init(free)
	active := map[int]activeEntry{}
	registers := 0

	for _, iv := range byStart {
		expireOldIntervals(iv, free, active)

		var reg int
		if free.Len() > 0 {
			reg = heap.Pop(free).(int)
		} else {
			reg = registers
			registers++
		}

		active[iv.index] = activeEntry{iv: iv, reg: reg}
		mapping[iv.index] = reg
	}

	return registers, mapping
}

func expireOldIntervals(i interval, free *freeHeap, active map[int]activeEntry) {
	type keyed struct {
		key int
		e   activeEntry
	}
	sorted := make([]keyed, 0, len(active))
	for k, e := range active {
		sorted = append(sorted, keyed{k, e})
	}
	for a := 1; a < len(sorted); a++ {
		b := a
		for b > 0 && sorted[b-1].e.iv.end > sorted[b].e.iv.end {
			sorted[b-1], sorted[b] = sorted[b], sorted[b-1]
			b--
		}
	}

	for _, ke := range sorted {
		if ke.e.iv.end >= i.start {
			return
		}
		delete(active, ke.key)
		heap.Push(free, ke.e.reg)
	}
}
