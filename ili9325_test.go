package ili9325

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"
	"time"

	"periph.io/x/devices/v3/ili9325/image565"
)

func init() {
	sleep = func(time.Duration) {}
}

// fakePanel models the controller: registers, a GRAM addressed in logical
// raster order and the auto-incrementing write pointer.
type fakePanel struct {
	w, h       int
	upsideDown bool

	reg  uint16
	regs map[uint16]uint16
	gram []uint16
	pos  int

	cursors int   // writes to the GRAM data register index
	starts  []int // raster index of each cursor
	pixels  int   // data words written to GRAM
	resets  int
}

func newFakePanel(w, h int, upsideDown bool) *fakePanel {
	return &fakePanel{
		w:          w,
		h:          h,
		upsideDown: upsideDown,
		regs:       map[uint16]uint16{},
		gram:       make([]uint16, w*h),
	}
}

func (p *fakePanel) WriteWord(v uint16, data bool) {
	if !data {
		p.reg = v
		if v == regGRAMData {
			p.cursors++
			p.pos = p.address()
			p.starts = append(p.starts, p.pos)
		}
		return
	}
	if p.reg == regGRAMData {
		p.gram[p.pos] = v
		p.pos = (p.pos + 1) % len(p.gram)
		p.pixels++
		return
	}
	p.regs[p.reg] = v
}

// address converts the GRAM address registers back to a raster index.
func (p *fakePanel) address() int {
	h, v := int(p.regs[regGRAMHorizontal]), int(p.regs[regGRAMVertical])
	x, y := v, p.h-1-h
	if p.upsideDown {
		x, y = p.w-1-v, h
	}
	return y*p.w + x
}

func (p *fakePanel) clearCounters() {
	p.cursors = 0
	p.starts = nil
	p.pixels = 0
}

// resetPanel also implements the optional Reset hook.
type resetPanel struct {
	*fakePanel
}

func (p resetPanel) Reset() error {
	p.resets++
	return nil
}

func newTestDev(t *testing.T, w, h, regionPixels int) (*Dev, *fakePanel) {
	t.Helper()
	p := newFakePanel(w, h, false)
	d, err := New(p, &Opts{W: w, H: h, RegionPixels: regionPixels})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p.clearCounters()
	return d, p
}

func checkGRAM(t *testing.T, d *Dev, p *fakePanel) {
	t.Helper()
	for i, v := range d.fb.Pix {
		if p.gram[i] != v {
			t.Fatalf("GRAM[%d] = %#04x, want %#04x", i, p.gram[i], v)
		}
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    *Opts
		wantErr bool
	}{
		{"nil options (uses defaults)", nil, false},
		{"valid 320x240", &Opts{W: 320, H: 240}, false},
		{"valid 4x4", &Opts{W: 4, H: 4, RegionPixels: 4}, false},
		{"odd width", &Opts{W: 7, H: 3}, false},
		{"width zero", &Opts{W: 0, H: 64}, true},
		{"width > 320", &Opts{W: 321, H: 64}, true},
		{"height zero", &Opts{W: 64, H: 0}, true},
		{"height > 240", &Opts{W: 64, H: 241}, true},
		{"negative region", &Opts{W: 4, H: 4, RegionPixels: -1}, true},
		{"negative rate", &Opts{W: 4, H: 4, Rate: -1}, true},
		{"buffer wrong size", &Opts{W: 4, H: 4, Buffer: image565.New(image.Rect(0, 0, 4, 5))}, true},
		{"buffer wrong stride", &Opts{W: 4, H: 4, Buffer: &image565.Image{
			Pix: make([]uint16, 32), Stride: 8, Rect: image.Rect(0, 0, 4, 4),
		}}, true},
		{"buffer ok", &Opts{W: 4, H: 4, Buffer: image565.New(image.Rect(0, 0, 4, 4))}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(newFakePanel(320, 240, false), tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewNilBus(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("New(nil, nil) should fail")
	}
}

func TestNewDefaults(t *testing.T) {
	p := newFakePanel(320, 240, false)
	d, err := New(p, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := d.Bounds(); got != image.Rect(0, 0, 320, 240) {
		t.Errorf("Bounds() = %v, want 320x240", got)
	}
	if d.delay != 40*time.Millisecond {
		t.Errorf("flush delay = %v, want 40ms", d.delay)
	}
	if d.Region(0).Len <= 0 {
		t.Errorf("Region(0).Len = %d, want > 0", d.Region(0).Len)
	}
}

func TestNewInitSequence(t *testing.T) {
	tests := []struct {
		name       string
		upsideDown bool
		wantEntry  uint16
	}{
		{"normal", false, 0x1028},
		{"upside down", true, 0x1018},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := image565.New(image.Rect(0, 0, 6, 4))
			for i := range buf.Pix {
				buf.Pix[i] = uint16(0x100 + i)
			}
			p := newFakePanel(6, 4, tt.upsideDown)
			d, err := New(resetPanel{p}, &Opts{W: 6, H: 4, UpsideDown: tt.upsideDown, RegionPixels: 5, Buffer: buf})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			if p.resets != 1 {
				t.Errorf("Reset called %d times, want 1", p.resets)
			}
			for reg, want := range map[uint16]uint16{
				0x0003:            tt.wantEntry,
				0x0051:            3,
				0x0053:            5,
				regDisplayControl: 0x0133,
			} {
				if got := p.regs[reg]; got != want {
					t.Errorf("R%02X = %#04x, want %#04x", reg, got, want)
				}
			}

			// The buffer content is uploaded and the shadows agree with it.
			checkGRAM(t, d, p)
			p.clearCounters()
			d.TouchRect(d.Bounds())
			if s := d.Flush(); s.Words != 0 || p.pixels != 0 {
				t.Errorf("Flush() after init sent %d words, want 0", s.Words)
			}
		})
	}
}

func TestSetCursor(t *testing.T) {
	tests := []struct {
		name       string
		upsideDown bool
		x, y       int
		wantH      uint16
		wantV      uint16
	}{
		{"normal origin", false, 0, 0, 239, 0},
		{"normal corner", false, 319, 239, 0, 319},
		{"normal middle", false, 10, 20, 219, 10},
		{"upside down origin", true, 0, 0, 0, 319},
		{"upside down middle", true, 10, 20, 20, 309},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePanel(320, 240, tt.upsideDown)
			d := &Dev{bus: p, rect: image.Rect(0, 0, 320, 240), upsideDown: tt.upsideDown}
			d.setCursor(tt.x, tt.y)

			if got := p.regs[regGRAMHorizontal]; got != tt.wantH {
				t.Errorf("R20 = %d, want %d", got, tt.wantH)
			}
			if got := p.regs[regGRAMVertical]; got != tt.wantV {
				t.Errorf("R21 = %d, want %d", got, tt.wantV)
			}
			if p.reg != regGRAMData || p.cursors != 1 || p.pixels != 0 {
				t.Errorf("setCursor must end by selecting GRAM data without writing pixels")
			}
			if p.pos != tt.y*320+tt.x {
				t.Errorf("write pointer = %d, want %d", p.pos, tt.y*320+tt.x)
			}
		})
	}
}

func TestDevBounds(t *testing.T) {
	dev := &Dev{rect: image.Rect(0, 0, 320, 240)}
	want := image.Rect(0, 0, 320, 240)
	if got := dev.Bounds(); got != want {
		t.Errorf("Bounds() = %v, want %v", got, want)
	}
}

func TestDevColorModel(t *testing.T) {
	dev := &Dev{}
	if dev.ColorModel() != image565.RGB565Model {
		t.Error("ColorModel() did not return RGB565Model")
	}
}

func TestDevString(t *testing.T) {
	dev := &Dev{rect: image.Rect(0, 0, 320, 240)}
	want := "ili9325.Dev{320x240}"
	if got := dev.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestDraw(t *testing.T) {
	d, p := newTestDev(t, 8, 4, 8)

	red := image.NewUniform(color.RGBA{0xFF, 0, 0, 0xFF})
	if err := d.Draw(image.Rect(2, 1, 5, 3), red, image.Point{}); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}

	if got := d.fb.RGB565At(2, 1); got != 0xF800 {
		t.Errorf("pixel (2,1) = %#04x, want 0xf800", got)
	}
	checkGRAM(t, d, p)
	// Two rows of three pixels: one burst per row.
	if p.cursors != 2 || p.pixels != 6 {
		t.Errorf("Draw() sent %d cursors and %d words, want 2 and 6", p.cursors, p.pixels)
	}

	// Outside the display: nothing happens.
	p.clearCounters()
	if err := d.Draw(image.Rect(20, 20, 30, 30), red, image.Point{}); err != nil {
		t.Errorf("Draw() outside bounds error = %v", err)
	}
	if p.pixels != 0 {
		t.Errorf("Draw() outside bounds sent %d words", p.pixels)
	}
}

func TestDrawClippedSource(t *testing.T) {
	d, p := newTestDev(t, 4, 4, 4)

	src := image565.New(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = uint16(i + 1)
	}

	// Only the bottom-right quarter of dst is on screen; it must show the
	// matching quarter of src.
	if err := d.Draw(image.Rect(-2, -2, 2, 2), src, image.Point{}); err != nil {
		t.Fatalf("Draw() error = %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := image565.RGB565(0)
			if x < 2 && y < 2 {
				want = src.RGB565At(x+2, y+2)
			}
			if got := d.fb.RGB565At(x, y); got != want {
				t.Errorf("pixel (%d,%d) = %#04x, want %#04x", x, y, got, want)
			}
		}
	}
	checkGRAM(t, d, p)
}

func TestWrite(t *testing.T) {
	d, p := newTestDev(t, 4, 2, 4)

	frame := make([]byte, 4*2*2)
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(frame[2*i:], uint16(0xA000+i))
	}
	n, err := d.Write(frame)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != len(frame) {
		t.Errorf("Write() = %d, want %d", n, len(frame))
	}
	if d.fb.Pix[5] != 0xA005 {
		t.Errorf("Pix[5] = %#04x, want 0xa005", d.fb.Pix[5])
	}
	checkGRAM(t, d, p)
}

func TestWriteInvalidBufferSize(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"too small", 4*2*2 - 2},
		{"too large", 4*2*2 + 2},
		{"empty", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDev(t, 4, 2, 4)
			_, err := d.Write(make([]byte, tt.size))
			if err == nil {
				t.Fatal("Write should fail with invalid buffer size")
			}
			if err.Error() != "ili9325: invalid buffer size" {
				t.Errorf("Write error = %v, want 'ili9325: invalid buffer size'", err)
			}
		})
	}
}

func TestWriteAt(t *testing.T) {
	d, p := newTestDev(t, 4, 4, 4)

	// Pixels 6 and 7: the last two of row 1.
	n, err := d.WriteAt([]byte{0x34, 0x12, 0x78, 0x56}, 12)
	if err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	if n != 4 {
		t.Errorf("WriteAt() = %d, want 4", n)
	}
	if d.fb.Pix[6] != 0x1234 || d.fb.Pix[7] != 0x5678 {
		t.Errorf("Pix[6:8] = %#04x, want [0x1234 0x5678]", d.fb.Pix[6:8])
	}
	if !d.Region(1).Dirty {
		t.Error("region holding row 1 should be dirty")
	}
	if p.pixels != 0 {
		t.Errorf("WriteAt() sent %d words, want deferred", p.pixels)
	}

	d.Flush()
	checkGRAM(t, d, p)
	if p.cursors != 1 || p.pixels != 2 {
		t.Errorf("Flush() sent %d cursors and %d words, want 1 and 2", p.cursors, p.pixels)
	}
}

func TestWriteAtErrors(t *testing.T) {
	d, _ := newTestDev(t, 4, 4, 4)

	tests := []struct {
		name string
		p    []byte
		off  int64
	}{
		{"odd offset", []byte{0, 0}, 1},
		{"odd length", []byte{0, 0, 0}, 0},
		{"negative offset", []byte{0, 0}, -2},
		{"past the end", []byte{0, 0, 0, 0}, 30},
		{"offset near max int64", []byte{0, 0, 0, 0}, math.MaxInt64 - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.WriteAt(tt.p, tt.off); err == nil {
				t.Errorf("WriteAt(%d bytes, %d) should fail", len(tt.p), tt.off)
			}
		})
	}

	if n, err := d.WriteAt(nil, 32); n != 0 || err != nil {
		t.Errorf("WriteAt(nil, end) = %d, %v, want 0, nil", n, err)
	}
}

func TestDevHalt(t *testing.T) {
	d, p := newTestDev(t, 4, 4, 4)

	if err := d.Halt(); err != nil {
		t.Fatalf("Halt() error = %v", err)
	}
	if got := p.regs[regDisplayControl]; got != 0 {
		t.Errorf("R07 after Halt = %#04x, want 0", got)
	}

	if err := d.Draw(d.Bounds(), image.NewRGBA(d.Bounds()), image.Point{}); err == nil {
		t.Error("Draw should fail when halted")
	}
	if _, err := d.Write(make([]byte, 32)); err == nil {
		t.Error("Write should fail when halted")
	}
	if _, err := d.WriteAt([]byte{1, 2}, 0); err == nil {
		t.Error("WriteAt should fail when halted")
	}

	d.fb.Pix[0] = 0xFFFF
	d.TouchAll()
	if s := d.Flush(); s != (FlushStats{}) || p.pixels != 0 {
		t.Errorf("Flush() when halted = %+v, want no work", s)
	}
}

func TestHaltReportsBusError(t *testing.T) {
	var log []string
	pins, all := newTestPins(&log)
	b, err := NewGPIOBus(pins)
	if err != nil {
		t.Fatalf("NewGPIOBus() error = %v", err)
	}
	d, err := New(b, &Opts{W: 2, H: 2, RegionPixels: 4})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	all[6].fail = true // D1
	err = d.Halt()
	if err == nil {
		t.Fatal("Halt() should report the bus error")
	}
	if !strings.Contains(err.Error(), "D1") {
		t.Errorf("Halt() error = %v, want it to name D1", err)
	}
}
