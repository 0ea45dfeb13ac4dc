package ili9325

import "image"

// TouchRect marks dirty every region whose rows intersect r. It is safe to
// call from any goroutine and never touches the bus.
func (d *Dev) TouchRect(r image.Rectangle) {
	r = r.Intersect(d.rect)
	if r.Empty() {
		return
	}
	w := d.rect.Dx()
	for i := range d.regions {
		g := &d.regions[i]
		start, end := g.rows(w)
		if start < r.Max.Y && r.Min.Y < end {
			g.dirty.Store(true)
		}
	}
	d.notify()
}

// TouchAll marks every region dirty and forces the next flush to resend
// every pixel, whatever the shadows say. Nothing reports a controller that
// lost its content, so this is the way to resynchronize it.
func (d *Dev) TouchAll() {
	for i := range d.regions {
		r := &d.regions[i]
		r.force.Store(true)
		r.dirty.Store(true)
	}
	d.notify()
}

// TouchPages marks the regions with the given indices dirty. With the
// default RegionPixels, regions are sized to one memory page each, so page
// indices from a write-fault log map one to one. Out of range indices are
// ignored.
func (d *Dev) TouchPages(indices ...int) {
	for _, i := range indices {
		if i >= 0 && i < len(d.regions) {
			d.regions[i].dirty.Store(true)
		}
	}
	d.notify()
}

// notify wakes Run without blocking.
func (d *Dev) notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
