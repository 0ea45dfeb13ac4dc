package ili9325

import (
	"image"
	"sync/atomic"
)

// region is a fixed slice of the framebuffer with its own dirty flag and a
// shadow of what the controller last received for it.
type region struct {
	x, y   int // raster position of the first pixel
	off    int // index of the first pixel in the framebuffer
	len    int
	dirty  atomic.Bool
	force  atomic.Bool // resend every pixel, set with dirty
	shadow []uint16
}

// buildRegions partitions w*h pixels into consecutive regions of capacity
// pixels in raster order. The last region holds the remainder. All shadows
// share a single allocation.
func buildRegions(w, h, capacity int) []region {
	total := w * h
	n := (total + capacity - 1) / capacity
	shadow := make([]uint16, total)
	regions := make([]region, n)
	for i := range regions {
		off := i * capacity
		l := min(capacity, total-off)
		r := &regions[i]
		r.x = off % w
		r.y = off / w
		r.off = off
		r.len = l
		r.shadow = shadow[off : off+l : off+l]
	}
	return regions
}

// rows returns the half-open row range [start, end) the region may touch.
// It keeps one guard row past length/width, and never stops short of the row
// holding the region's last pixel.
func (r *region) rows(w int) (start, end int) {
	end = r.y + r.len/w + 1
	if last := (r.off+r.len-1)/w + 1; last > end {
		end = last
	}
	return r.y, end
}

// RegionInfo describes one tracked region of the framebuffer.
type RegionInfo struct {
	Origin image.Point // raster position of the first pixel
	Offset int         // index of the first pixel in Framebuffer().Pix
	Len    int         // pixel count
	Dirty  bool
}

// Regions returns the number of regions the framebuffer is split into.
func (d *Dev) Regions() int {
	return len(d.regions)
}

// Region describes region i. It panics if i is out of range.
func (d *Dev) Region(i int) RegionInfo {
	r := &d.regions[i]
	return RegionInfo{
		Origin: image.Point{X: r.x, Y: r.y},
		Offset: r.off,
		Len:    r.len,
		Dirty:  r.dirty.Load(),
	}
}
