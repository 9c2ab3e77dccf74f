package internal

import (
	"fmt"
)

// JEDEC identity reported by the simulated chip.
const (
	simManufacturer = 0xEF
	simMemoryType   = 0xAA
	simCapacity     = 0x21
)

// SimChip is an in-memory SPI NAND used in place of hardware. It models
// the cache/program-buffer architecture and the write-enable latch, and
// can inject the failure modes the driver has to handle.
type SimChip struct {
	blocks  int
	pages   [][]byte
	cache   [NandPageSize]byte
	progBuf [NandPageSize]byte

	wel        bool
	protection byte
	failFlags  byte // latched program/erase fail bits

	// Fault injection.
	StickBusy       bool // busy bit never clears
	FailProgram     bool // program-execute sets the fail bit
	FailErase       bool // block-erase sets the fail bit
	DropWriteEnable bool // write-enable commands are ignored

	Transfers int
}

func NewSimChip(blocks int) *SimChip {
	c := &SimChip{
		blocks:     blocks,
		pages:      make([][]byte, blocks*NandPagesPerBlock),
		protection: 0x7C, // all protection bits set, as shipped
	}
	return c
}

// page returns backing storage for a page, lazily allocated erased.
func (c *SimChip) page(n uint32) []byte {
	if c.pages[n] == nil {
		p := make([]byte, NandPageSize)
		for i := range p {
			p[i] = 0xFF
		}
		c.pages[n] = p
	}
	return c.pages[n]
}

func (c *SimChip) status() byte {
	var s byte = c.failFlags
	if c.StickBusy {
		s |= statusBusy
	}
	if c.wel {
		s |= statusWEL
	}
	return s
}

func pageAddr(tx []byte) uint32 {
	return uint32(tx[1])<<16 | uint32(tx[2])<<8 | uint32(tx[3])
}

func columnAddr(tx []byte) int {
	return int(tx[1])<<8 | int(tx[2])
}

func (c *SimChip) Transfer(tx, rx []byte) error {
	if len(tx) != len(rx) {
		return fmt.Errorf("sim: tx/rx length mismatch (%d != %d)", len(tx), len(rx))
	}
	if len(tx) == 0 {
		return fmt.Errorf("sim: empty transfer")
	}
	c.Transfers++

	switch tx[0] {
	case opReset:
		c.wel = false
		c.failFlags = 0

	case opReadJEDEC:
		if len(rx) >= 4 {
			rx[1] = simManufacturer
			rx[2] = simMemoryType
			rx[3] = simCapacity
		}

	case opReadStatus:
		if len(rx) >= 3 {
			switch tx[1] {
			case regStatus:
				rx[2] = c.status()
			case regProtection:
				rx[2] = c.protection
			}
		}

	case opWriteStatus:
		if len(tx) >= 3 && tx[1] == regProtection {
			c.protection = tx[2]
		}

	case opWriteEnable:
		if !c.DropWriteEnable {
			c.wel = true
		}

	case opWriteDisable:
		c.wel = false

	case opPageDataRead:
		n := pageAddr(tx)
		if n < uint32(len(c.pages)) {
			copy(c.cache[:], c.page(n))
		}

	case opReadCache:
		// 2-byte column, 1 dummy byte, then data.
		col := columnAddr(tx)
		for i := 4; i < len(rx); i++ {
			if col+i-4 < NandPageSize {
				rx[i] = c.cache[col+i-4]
			}
		}

	case opProgramLoad:
		for i := range c.progBuf {
			c.progBuf[i] = 0xFF
		}
		c.loadProgramBuffer(tx)

	case opProgramRandom:
		c.loadProgramBuffer(tx)

	case opProgramExecute:
		if !c.wel {
			return nil // silently ignored without the latch
		}
		c.wel = false
		if c.FailProgram {
			c.failFlags |= statusProgramFail
			return nil
		}
		n := pageAddr(tx)
		if n < uint32(len(c.pages)) {
			p := c.page(n)
			for i := range p {
				p[i] &= c.progBuf[i] // programming only clears bits
			}
		}

	case opBlockErase:
		if !c.wel {
			return nil
		}
		c.wel = false
		if c.FailErase {
			c.failFlags |= statusEraseFail
			return nil
		}
		block := pageAddr(tx) >> 6
		base := block * NandPagesPerBlock
		for i := uint32(0); i < NandPagesPerBlock; i++ {
			if base+i < uint32(len(c.pages)) {
				c.pages[base+i] = nil
			}
		}
	}

	return nil
}

func (c *SimChip) loadProgramBuffer(tx []byte) {
	col := columnAddr(tx)
	data := tx[3:]
	for i, b := range data {
		if col+i < NandPageSize {
			c.progBuf[col+i] = b
		}
	}
}

// PageBytes exposes raw page contents for verification.
func (c *SimChip) PageBytes(n uint32) []byte {
	out := make([]byte, NandPageSize)
	copy(out, c.page(n))
	return out
}
