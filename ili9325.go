// Package ili9325 drives an ILI9325 TFT controller over a write-only 16-bit
// parallel bus from a memory-resident RGB565 framebuffer.
//
// See doc.go for wiring and usage.
package ili9325

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ili9325/image565"
)

// Controller registers used by the driver.
const (
	regDisplayControl = 0x0007
	regGRAMHorizontal = 0x0020
	regGRAMVertical   = 0x0021
	regGRAMData       = 0x0022
)

// GRAM is 240x320 natively; the driver uses it in landscape.
const (
	maxWidth  = 320
	maxHeight = 240
)

// sleep is replaced in tests.
var sleep = time.Sleep

// Opts is the configuration for the ILI9325 display.
type Opts struct {
	// Display dimensions in pixels
	W int // Width (default: 320, must be ≤320)
	H int // Height (default: 240, must be ≤240)

	// UpsideDown selects the mirrored mount. It fixes the GRAM address
	// transform and the entry mode for the lifetime of the device.
	UpsideDown bool

	// RegionPixels is the number of pixels tracked by one dirty flag.
	// Default: one host memory page worth of 16-bit pixels.
	RegionPixels int

	// Rate is how often Run flushes pending damage (default: 25Hz).
	Rate physic.Frequency

	// Buffer is an optional externally owned framebuffer. It must cover
	// exactly W×H pixels with Stride == W. When nil, one is allocated.
	Buffer *image565.Image
}

// Dev is the device handle for the ILI9325 display.
type Dev struct {
	bus        Bus
	rect       image.Rectangle
	upsideDown bool
	fb         *image565.Image

	regions []region
	delay   time.Duration
	wake    chan struct{}

	// mu is the flush lock. It serializes every bus transaction and
	// guards all region shadows.
	mu     sync.Mutex
	halted atomic.Bool
}

// New initializes the controller behind bus and attaches a framebuffer to it.
//
// opts can be nil to use defaults (320x240, normal mount). If bus has a
// Reset() error method, it is called before the power-on sequence.
func New(bus Bus, opts *Opts) (*Dev, error) {
	if bus == nil {
		return nil, errors.New("ili9325: bus is required")
	}
	// Apply defaults and validate options
	o := Opts{W: maxWidth, H: maxHeight}
	if opts != nil {
		o = *opts
	}
	if o.RegionPixels == 0 {
		o.RegionPixels = os.Getpagesize() / 2
	}
	if o.Rate == 0 {
		o.Rate = 25 * physic.Hertz
	}

	if o.W <= 0 || o.W > maxWidth {
		return nil, fmt.Errorf("ili9325: width must be between 1 and %d", maxWidth)
	}
	if o.H <= 0 || o.H > maxHeight {
		return nil, fmt.Errorf("ili9325: height must be between 1 and %d", maxHeight)
	}
	if o.RegionPixels < 0 {
		return nil, errors.New("ili9325: region size must be positive")
	}
	if o.Rate < 0 {
		return nil, errors.New("ili9325: rate must be positive")
	}

	rect := image.Rect(0, 0, o.W, o.H)
	fb := o.Buffer
	if fb == nil {
		fb = image565.New(rect)
	} else if fb.Rect != rect || fb.Stride != o.W || len(fb.Pix) < o.W*o.H {
		return nil, fmt.Errorf("ili9325: buffer %v (stride %d) does not match %dx%d", fb.Rect, fb.Stride, o.W, o.H)
	}

	d := &Dev{
		bus:        bus,
		rect:       rect,
		upsideDown: o.UpsideDown,
		fb:         fb,
		regions:    buildRegions(o.W, o.H, o.RegionPixels),
		delay:      o.Rate.Period(),
		wake:       make(chan struct{}, 1),
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

// init resets the controller, runs the power-on sequence, clears GRAM and
// uploads the current buffer content.
func (d *Dev) init() error {
	if r, ok := d.bus.(interface{ Reset() error }); ok {
		if err := r.Reset(); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, w := range d.initSequence() {
		d.writeReg(w.reg, w.val)
		if w.delay != 0 {
			sleep(w.delay)
		}
	}
	d.bus.WriteWord(regGRAMData, false)

	n := d.rect.Dx() * d.rect.Dy()
	d.setCursor(0, 0)
	for i := 0; i < n; i++ {
		d.bus.WriteWord(0, true)
	}
	d.setCursor(0, 0)
	for i := range d.regions {
		r := &d.regions[i]
		for j, v := range d.fb.Pix[r.off : r.off+r.len] {
			d.bus.WriteWord(v, true)
			r.shadow[j] = v
		}
	}

	if e, ok := d.bus.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}

// regWrite is one register assignment of the power-on sequence, followed
// by an optional settle time.
type regWrite struct {
	reg, val uint16
	delay    time.Duration
}

// initSequence returns the power-on sequence. Several settle times are
// longer than the datasheet asks for; shorter ones proved unreliable.
func (d *Dev) initSequence() []regWrite {
	const ms = time.Millisecond

	entry := uint16(0x1028)
	if d.upsideDown {
		entry = 0x1018
	}

	return []regWrite{
		{0x00E3, 0x3008, 0}, // Internal timing
		{0x00E7, 0x0012, 0},
		{0x00EF, 0x1231, 200 * ms},
		{0x0001, 0x0100, 200 * ms}, // SS and SM
		{0x0002, 0x0700, 0},        // 1 line inversion
		{0x0003, entry, 100 * ms},  // GRAM write direction, BGR=1
		{0x0004, 0x0000, 100 * ms}, // Resize
		{0x0008, 0x0207, 100 * ms}, // Back and front porch
		{0x0009, 0x0000, 100 * ms}, // Non-display area refresh cycle
		{0x000A, 0x0000, 100 * ms}, // FMARK
		{0x000C, 0x0000, 100 * ms}, // RGB interface
		{0x000D, 0x0000, 100 * ms}, // Frame marker position
		{0x000F, 0x0000, 100 * ms}, // RGB interface polarity

		// Power on: wait 2 frames or more between steps.
		{0x0010, 0x0000, 100 * ms},
		{0x0011, 0x0007, 100 * ms},
		{0x0012, 0x0000, 100 * ms},
		{0x0013, 0x0000, 400 * ms}, // Discharge capacitor power voltage
		{0x0010, 0x1490, 0},
		{0x0011, 0x0227, 100 * ms},
		{0x0012, 0x001C, 100 * ms}, // External reference voltage = Vci
		{0x0013, 0x0A00, 0},        // VCOM amplitude
		{0x0029, 0x000F, 0},        // VCOMH
		{0x002B, 0x000D, 100 * ms}, // Frame rate 91Hz
		{regGRAMHorizontal, 0x0000, 0},
		{regGRAMVertical, 0x0000, 0},

		// Gamma curve
		{0x0030, 0x0006, 0},
		{0x0031, 0x0101, 0},
		{0x0032, 0x0003, 0},
		{0x0035, 0x0106, 0},
		{0x0036, 0x0B02, 0},
		{0x0037, 0x0302, 0},
		{0x0038, 0x0707, 0},
		{0x0039, 0x0007, 0},
		{0x003C, 0x0600, 0},
		{0x003D, 0x020B, 100 * ms},

		// GRAM window: the horizontal address runs along y, the vertical one along x.
		{0x0050, 0x0000, 0},
		{0x0051, uint16(d.rect.Dy() - 1), 0},
		{0x0052, 0x0000, 0},
		{0x0053, uint16(d.rect.Dx() - 1), 0},
		{0x0060, 0xA700, 0}, // Gate scan line
		{0x0061, 0x0001, 0}, // NDL, VLE, REV
		{0x006A, 0x0000, 500 * ms},

		// Partial display control
		{0x0080, 0x0000, 0},
		{0x0081, 0x0000, 0},
		{0x0082, 0x0000, 0},
		{0x0083, 0x0000, 0},
		{0x0084, 0x0000, 0},
		{0x0085, 0x0000, 100 * ms},

		// Panel control
		{0x0090, 0x0010, 0},
		{0x0092, 0x0600, 0},
		{0x0093, 0x0003, 0},
		{0x0095, 0x0110, 0},
		{0x0097, 0x0000, 0},
		{0x0098, 0x0000, 100 * ms},

		{regDisplayControl, 0x0133, 200 * ms}, // 262K colors, display ON
	}
}

// writeReg sets one controller register. The caller must hold d.mu.
func (d *Dev) writeReg(reg, val uint16) {
	d.bus.WriteWord(reg, false)
	d.bus.WriteWord(val, true)
}

// setCursor points the GRAM address counter at logical pixel (x, y) and
// selects the GRAM data register, so that the following data words stream
// from there. The caller must hold d.mu.
func (d *Dev) setCursor(x, y int) {
	if d.upsideDown {
		d.writeReg(regGRAMHorizontal, uint16(y))
		d.writeReg(regGRAMVertical, uint16(d.rect.Dx()-1-x))
	} else {
		d.writeReg(regGRAMHorizontal, uint16(d.rect.Dy()-1-y))
		d.writeReg(regGRAMVertical, uint16(x))
	}
	d.bus.WriteWord(regGRAMData, false)
}

// ColorModel returns the color model of the display.
func (d *Dev) ColorModel() color.Model {
	return image565.RGB565Model
}

// Bounds returns the image bounds of the display.
func (d *Dev) Bounds() image.Rectangle {
	return d.rect
}

// Framebuffer returns the pixel buffer backing the display.
//
// Writes to it are not observed by the driver. Report them with TouchRect,
// TouchPages or TouchAll; Run or Flush then sends what changed.
func (d *Dev) Framebuffer() *image565.Image {
	return d.fb
}

// Draw draws src into the framebuffer and sends the changed pixels before
// returning.
func (d *Dev) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	if d.halted.Load() {
		return errors.New("ili9325: halted")
	}

	r := dst.Intersect(d.rect)
	if r.Empty() {
		return nil
	}
	draw.Draw(d.fb, r, src, sp.Add(r.Min.Sub(dst.Min)), draw.Src)
	d.TouchRect(r)
	d.Flush()
	return nil
}

// Write replaces the whole frame with little-endian RGB565 words and sends
// the changed pixels before returning.
// The data must be exactly W * H * 2 bytes.
func (d *Dev) Write(pixels []byte) (int, error) {
	if d.halted.Load() {
		return 0, errors.New("ili9325: halted")
	}
	if len(pixels) != 2*d.rect.Dx()*d.rect.Dy() {
		return 0, errors.New("ili9325: invalid buffer size")
	}
	decode(d.fb.Pix, pixels)
	d.TouchRect(d.rect)
	d.Flush()
	return len(pixels), nil
}

// WriteAt stores little-endian RGB565 words at byte offset off of the
// framebuffer and marks the rows it covers dirty. Nothing is sent until the
// next flush.
func (d *Dev) WriteAt(p []byte, off int64) (int, error) {
	if d.halted.Load() {
		return 0, errors.New("ili9325: halted")
	}
	if off%2 != 0 || len(p)%2 != 0 {
		return 0, errors.New("ili9325: unaligned write")
	}
	size := int64(2 * d.rect.Dx() * d.rect.Dy())
	if off < 0 || off > size || int64(len(p)) > size-off {
		return 0, errors.New("ili9325: write out of range")
	}
	if len(p) == 0 {
		return 0, nil
	}

	first := int(off / 2)
	last := first + len(p)/2 - 1
	decode(d.fb.Pix[first:], p)

	w := d.rect.Dx()
	d.TouchRect(image.Rect(0, first/w, w, last/w+1))
	return len(p), nil
}

// decode unpacks little-endian 16-bit words from src into dst.
func decode(dst []uint16, src []byte) {
	for i := 0; i+1 < len(src); i += 2 {
		dst[i/2] = binary.LittleEndian.Uint16(src[i:])
	}
}

// Halt turns the display off. The framebuffer is kept but no longer sent.
// It returns the first error the bus recorded, if the bus tracks one.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.halted.Store(true)
	d.writeReg(regDisplayControl, 0x0000)
	if e, ok := d.bus.(interface{ Err() error }); ok {
		return e.Err()
	}
	return nil
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("ili9325.Dev{%dx%d}", d.rect.Dx(), d.rect.Dy())
}

var _ display.Drawer = &Dev{}
