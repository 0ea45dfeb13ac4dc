package ili9325

// FlushStats counts the work done by one flush pass.
type FlushStats struct {
	Regions int // dirty regions visited
	Cursors int // cursor repositions
	Words   int // pixel words sent
}

// Flush sends every changed pixel of every dirty region to the controller.
//
// Within a region, consecutive changed pixels are streamed as one burst
// behind a single cursor move; any unchanged pixel ends the burst. Damage
// reported while a pass runs is picked up by the next one. Flush does
// nothing on a halted device.
func (d *Dev) Flush() FlushStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	var s FlushStats
	if d.halted.Load() {
		return s
	}
	for i := range d.regions {
		r := &d.regions[i]
		if !r.dirty.Swap(false) {
			continue
		}
		s.Regions++
		d.copyRegion(r, r.force.Swap(false), &s)
	}
	return s
}

// copyRegion diffs r against its shadow and sends the changed runs. With
// force, every pixel counts as changed. The caller must hold d.mu.
func (d *Dev) copyRegion(r *region, force bool, s *FlushStats) {
	w := d.rect.Dx()
	pix := d.fb.Pix[r.off : r.off+r.len]
	move := true
	for i, v := range pix {
		if !force && v == r.shadow[i] {
			move = true
			continue
		}
		if move {
			p := r.off + i
			d.setCursor(p%w, p/w)
			s.Cursors++
			move = false
		}
		d.bus.WriteWord(v, true)
		r.shadow[i] = v
		s.Words++
	}
}
