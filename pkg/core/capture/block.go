package capture

// blockAssembler regroups arbitrarily sized device callbacks into fixed-size
// blocks. The device delivers whatever period size the backend chose; the
// downlink wants uniform blocks.
type blockAssembler struct {
	size int
	buf  []float32
}

func newBlockAssembler(size int) *blockAssembler {
	return &blockAssembler{
		size: size,
		buf:  make([]float32, 0, size),
	}
}

// push appends samples and invokes emit once per completed block. The slice
// passed to emit is only valid for the duration of the call.
func (a *blockAssembler) push(samples []float32, emit func(block []float32)) {
	a.buf = append(a.buf, samples...)
	for len(a.buf) >= a.size {
		emit(a.buf[:a.size])
		a.buf = a.buf[:copy(a.buf, a.buf[a.size:])]
	}
}

// pending reports how many samples are buffered short of a full block.
func (a *blockAssembler) pending() int {
	return len(a.buf)
}

// reset discards any partial block.
func (a *blockAssembler) reset() {
	a.buf = a.buf[:0]
}
