package ili9325

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// Bus issues single 16-bit transactions to the controller.
//
// WriteWord must not return before the word is latched by the controller:
// the ILI9325 has no acknowledgement line, so ordering is the only contract.
// The controller is write-only, so there is nothing to report back.
//
// Implementations are not expected to be safe for concurrent use; Dev
// serializes every transaction under its flush lock.
type Bus interface {
	// WriteWord sends v as a register index when data is false and as a
	// register value or GRAM pixel when data is true.
	WriteWord(v uint16, data bool)
}

// GPIOPins describes the wiring of an ILI9325 in 16-bit mode behind an 8-bit
// latch. The data lines carry the low byte into the latch on a LE pulse, then
// the high byte directly to the controller on a /WR pulse.
type GPIOPins struct {
	CS  gpio.PinOut // /CS, active low
	WR  gpio.PinOut // /WR, active low
	RS  gpio.PinOut // register select: Low = command, High = data
	RST gpio.PinOut // /RESET, active low
	LE  gpio.PinOut // latch enable for the low byte

	// D are the eight shared data lines.
	D [8]gpio.PinOut

	// LowOrder and HighOrder map bit i of the low and high byte to an index
	// in D. The latch and the controller usually see the lines in different
	// orders. A nil map is the identity.
	LowOrder  *[8]int
	HighOrder *[8]int
}

// GPIOBus bit-bangs the ILI9325 parallel bus over periph GPIO pins.
//
// Pin errors cannot be reported per transaction. The first one is kept and
// returned by Err; later transactions are still attempted.
type GPIOBus struct {
	pins GPIOPins
	low  [8]int
	high [8]int

	mu  sync.Mutex
	err error
}

var identityOrder = [8]int{0, 1, 2, 3, 4, 5, 6, 7}

// NewGPIOBus validates the wiring and drives the control lines to idle:
// chip deselected, /WR high, reset released, latch closed.
func NewGPIOBus(pins GPIOPins) (*GPIOBus, error) {
	named := []struct {
		name string
		p    gpio.PinOut
	}{
		{"CS", pins.CS}, {"WR", pins.WR}, {"RS", pins.RS}, {"RST", pins.RST}, {"LE", pins.LE},
	}
	for i, p := range pins.D {
		named = append(named, struct {
			name string
			p    gpio.PinOut
		}{fmt.Sprintf("D%d", i), p})
	}
	for _, n := range named {
		if n.p == nil || n.p == gpio.INVALID {
			return nil, fmt.Errorf("ili9325: pin %s is not set", n.name)
		}
	}

	b := &GPIOBus{pins: pins, low: identityOrder, high: identityOrder}
	if pins.LowOrder != nil {
		if err := checkOrder(*pins.LowOrder); err != nil {
			return nil, err
		}
		b.low = *pins.LowOrder
	}
	if pins.HighOrder != nil {
		if err := checkOrder(*pins.HighOrder); err != nil {
			return nil, err
		}
		b.high = *pins.HighOrder
	}

	for _, s := range []struct {
		p gpio.PinOut
		l gpio.Level
	}{
		{pins.CS, gpio.High},
		{pins.WR, gpio.High},
		{pins.RST, gpio.High},
		{pins.LE, gpio.Low},
	} {
		if err := s.p.Out(s.l); err != nil {
			return nil, fmt.Errorf("ili9325: failed to initialize %s: %w", s.p, err)
		}
	}
	return b, nil
}

// checkOrder verifies that a bit order is a permutation of 0..7.
func checkOrder(order [8]int) error {
	var seen [8]bool
	for _, i := range order {
		if i < 0 || i > 7 || seen[i] {
			return errors.New("ili9325: data line order must be a permutation of 0..7")
		}
		seen[i] = true
	}
	return nil
}

// WriteWord implements Bus.
func (b *GPIOBus) WriteWord(v uint16, data bool) {
	p := &b.pins

	// Select the chip and the target register class, then present the low byte.
	b.out(p.CS, gpio.Low)
	b.out(p.WR, gpio.High)
	b.out(p.RS, gpio.Level(data))
	b.out(p.RST, gpio.High)
	b.out(p.LE, gpio.Low)
	b.putByte(byte(v), &b.low)

	// Latch the low byte.
	b.out(p.LE, gpio.High)
	b.out(p.LE, gpio.Low)

	// Present the high byte and strobe /WR to commit the full word.
	b.putByte(byte(v>>8), &b.high)
	b.out(p.WR, gpio.Low)
	b.out(p.WR, gpio.High)
}

// Reset pulses /RESET and waits for the controller to come back up.
func (b *GPIOBus) Reset() error {
	if err := b.pins.RST.Out(gpio.Low); err != nil {
		return fmt.Errorf("ili9325: failed to pull RST low: %w", err)
	}
	sleep(200 * time.Millisecond)
	if err := b.pins.RST.Out(gpio.High); err != nil {
		return fmt.Errorf("ili9325: failed to pull RST high: %w", err)
	}
	sleep(200 * time.Millisecond)
	return nil
}

// Err returns the first pin error seen by WriteWord, if any.
func (b *GPIOBus) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Halt deselects the chip.
func (b *GPIOBus) Halt() error {
	return b.pins.CS.Out(gpio.High)
}

func (b *GPIOBus) String() string {
	return fmt.Sprintf("ili9325.GPIOBus{CS:%s, WR:%s, RS:%s}", b.pins.CS, b.pins.WR, b.pins.RS)
}

func (b *GPIOBus) putByte(v byte, order *[8]int) {
	for bit, line := range order {
		b.out(b.pins.D[line], gpio.Level(v&(1<<bit) != 0))
	}
}

func (b *GPIOBus) out(p gpio.PinOut, l gpio.Level) {
	if err := p.Out(l); err != nil {
		b.mu.Lock()
		if b.err == nil {
			b.err = fmt.Errorf("ili9325: %s: %w", p, err)
		}
		b.mu.Unlock()
	}
}

var _ conn.Resource = &GPIOBus{}
var _ Bus = &GPIOBus{}
