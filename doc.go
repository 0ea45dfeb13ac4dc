// Package ili9325 controls an ILI9325 TFT display wired to plain GPIOs.
//
// The ILI9325 is a 240x320 RGB565 TFT controller. This driver runs it in
// 16-bit mode, landscape (320x240), behind an 8-bit latch: each 16-bit word
// is put on the bus as two bytes, the low one into the latch and the high one
// directly to the controller. The bus is write-only.
//
// # Framebuffer And Damage Tracking
//
// The driver owns (or borrows, see Opts.Buffer) a linear RGB565 framebuffer
// that applications write to directly. The buffer is split into fixed-size
// regions, by default one host memory page each. Every region has a dirty
// flag and a shadow copy of what the controller last received.
//
// Writers report damage instead of sending pixels:
//
//	fb := dev.Framebuffer()
//	draw.Draw(fb, r, src, sp, draw.Src)
//	dev.TouchRect(r)
//
// TouchPages marks regions by index, which lines up with page indices from a
// write-fault log. TouchAll marks everything and makes the next flush resend
// every pixel; since the bus gives no feedback, it is also how a controller
// that lost its content is resynchronized.
//
// A flush pass compares every dirty region against its shadow. Each run of
// consecutive changed pixels costs one cursor move (five bus words) followed
// by one data word per pixel; the controller auto-increments its address in
// between. An unchanged pixel ends the run.
//
// # Hardware Connection
//
//	Display Pin → System Pin
//	GND         → GND
//	VCC         → 3.3V
//	/CS         → GPIO (chip select, active low)
//	/WR         → GPIO (write strobe, active low)
//	RS          → GPIO (register select)
//	/RESET      → GPIO
//	LE          → GPIO (latch enable of the 8-bit latch)
//	DB0..DB7    → 8 GPIOs, shared by the latch inputs and DB8..DB15
//
// # Basic Usage
//
//	package main
//
//	import (
//		"context"
//		"image"
//
//		"periph.io/x/conn/v3/gpio/gpioreg"
//		"periph.io/x/devices/v3/ili9325"
//		"periph.io/x/host/v3"
//	)
//
//	func main() {
//		host.Init()
//
//		pins := ili9325.GPIOPins{
//			CS:  gpioreg.ByName("GPIO4"),
//			WR:  gpioreg.ByName("GPIO17"),
//			RS:  gpioreg.ByName("GPIO18"),
//			RST: gpioreg.ByName("GPIO7"),
//			LE:  gpioreg.ByName("GPIO27"),
//		}
//		for i, n := range []string{"GPIO22", "GPIO23", "GPIO24", "GPIO10", "GPIO25", "GPIO9", "GPIO11", "GPIO8"} {
//			pins.D[i] = gpioreg.ByName(n)
//		}
//		bus, _ := ili9325.NewGPIOBus(pins)
//
//		dev, _ := ili9325.New(bus, nil)
//		defer dev.Halt()
//
//		// Flush reported damage at 25Hz in the background.
//		go dev.Run(context.Background())
//
//		fb := dev.Framebuffer()
//		fb.SetRGB565(10, 10, 0xF800)
//		dev.TouchRect(image.Rect(10, 10, 11, 11))
//	}
//
// # Concurrency
//
// TouchRect, TouchPages and TouchAll only set atomic flags and may be called
// from any goroutine. Flush, Draw, Write and Halt serialize on one lock, which
// is the only thing keeping bus transactions from interleaving. Run is a
// single flushing goroutine.
//
// # Orientation
//
// Opts.UpsideDown selects the mirrored mount at construction time. It sets the
// GRAM entry mode and the mapping from (x, y) to the controller's horizontal
// and vertical GRAM address registers (R20h, R21h).
//
// # Compatibility with periph.io
//
// Dev implements display.Drawer:
// https://pkg.go.dev/periph.io/x/conn/v3/display
package ili9325
