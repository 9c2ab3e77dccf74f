package internal

import (
	"errors"
	"fmt"
	"time"

	"github.com/voltsys/batlog/libraries/logger"
)

// SPI NAND geometry for the W25N-class chips the battery logger ships with.
const (
	NandPageSize      = 2048
	NandPagesPerBlock = 64
)

// Command opcodes.
const (
	opReset          = 0xFF
	opReadJEDEC      = 0x9F
	opReadStatus     = 0x05
	opWriteStatus    = 0x01
	opWriteEnable    = 0x06
	opWriteDisable   = 0x04
	opBlockErase     = 0xD8
	opPageDataRead   = 0x13
	opReadCache      = 0x03
	opProgramLoad    = 0x02
	opProgramRandom  = 0x84
	opProgramExecute = 0x10
)

// Status register selectors (second byte of a 0x05/0x01 transfer).
const (
	regProtection = 0xA0
	regStatus     = 0xC0
)

// Bits in the operational status register.
const (
	statusBusy        = 1 << 0
	statusWEL         = 1 << 1
	statusProgramFail = 1 << 3
	statusEraseFail   = 1 << 4
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrTimeout           = errors.New("timeout waiting for device ready")
	ErrWriteEnableFailed = errors.New("write enable latch not set")
	ErrProgramFailure    = errors.New("program operation failed")
	ErrEraseFailure      = errors.New("erase operation failed")
)

// SpiBus is a full-duplex SPI transaction: tx and rx must be the same
// length, one chip-select assertion per call.
type SpiBus interface {
	Transfer(tx, rx []byte) error
}

type NandConfig struct {
	Blocks       int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	EraseTimeout time.Duration
	PollInterval time.Duration
}

func DefaultNandConfig() NandConfig {
	return NandConfig{
		Blocks:       1024,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		EraseTimeout: 10 * time.Second,
		PollInterval: time.Millisecond,
	}
}

type ChipID struct {
	Manufacturer byte
	Memory       byte
	Capacity     byte
}

func (id ChipID) String() string {
	return fmt.Sprintf("%02x:%02x:%02x", id.Manufacturer, id.Memory, id.Capacity)
}

// Command frames are fixed-size structs assembled by value. Addresses go
// out MSB first.
type regFrame struct {
	op  byte
	reg byte
}

func (f regFrame) encode() []byte { return []byte{f.op, f.reg} }

type pageFrame struct {
	op   byte
	addr [3]byte
}

func newPageFrame(op byte, page uint32) pageFrame {
	return pageFrame{op: op, addr: [3]byte{byte(page >> 16), byte(page >> 8), byte(page)}}
}

func (f pageFrame) encode() []byte { return []byte{f.op, f.addr[0], f.addr[1], f.addr[2]} }

type columnFrame struct {
	op  byte
	col [2]byte
}

func newColumnFrame(op byte, column uint16) columnFrame {
	return columnFrame{op: op, col: [2]byte{byte(column >> 8), byte(column)}}
}

func (f columnFrame) encode() []byte { return []byte{f.op, f.col[0], f.col[1]} }

// NandDevice drives one SPI NAND chip. It holds no locks: callers
// serialize mutating operations themselves.
type NandDevice struct {
	bus SpiBus
	cfg NandConfig
	id  ChipID
}

func NewNandDevice(bus SpiBus, cfg NandConfig) (*NandDevice, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: nil bus", ErrInvalidArgument)
	}
	if cfg.Blocks <= 0 {
		return nil, fmt.Errorf("%w: blocks must be positive", ErrInvalidArgument)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}

	d := &NandDevice{bus: bus, cfg: cfg}

	if err := d.command(opReset); err != nil {
		return nil, err
	}
	if err := d.WaitReady(cfg.ReadTimeout); err != nil {
		return nil, err
	}

	// Chips ship with all block-protection bits set; clear them or every
	// program/erase silently no-ops.
	if err := d.writeRegister(regProtection, 0x00); err != nil {
		return nil, err
	}

	id, err := d.Identify()
	if err != nil {
		return nil, err
	}
	d.id = id

	logger.Printf("nand", "Chip online: jedec=%s blocks=%d (%s)",
		id, cfg.Blocks, logger.FormatBytes(int64(cfg.Blocks)*NandPagesPerBlock*NandPageSize))
	return d, nil
}

func (d *NandDevice) ID() ChipID { return d.id }

func (d *NandDevice) Pages() uint32 { return uint32(d.cfg.Blocks) * NandPagesPerBlock }

// Identify reads the JEDEC identity. The chip returns one dummy byte
// before the three identity bytes.
func (d *NandDevice) Identify() (ChipID, error) {
	rx, err := d.exchange([]byte{opReadJEDEC}, 3)
	if err != nil {
		return ChipID{}, err
	}
	return ChipID{Manufacturer: rx[1], Memory: rx[2], Capacity: rx[3]}, nil
}

// ReadStatus returns the operational status register.
func (d *NandDevice) ReadStatus() (byte, error) {
	return d.readRegister(regStatus)
}

// WaitReady polls the busy bit until it clears or the deadline elapses.
func (d *NandDevice) WaitReady(deadline time.Duration) error {
	expire := time.Now().Add(deadline)
	for {
		status, err := d.ReadStatus()
		if err != nil {
			return err
		}
		if status&statusBusy == 0 {
			return nil
		}
		if time.Now().After(expire) {
			return ErrTimeout
		}
		time.Sleep(d.cfg.PollInterval)
	}
}

// ReadPage loads a page into the chip's cache and streams it out.
func (d *NandDevice) ReadPage(page uint32) ([]byte, error) {
	if page >= d.Pages() {
		return nil, fmt.Errorf("%w: page %d out of range", ErrInvalidArgument, page)
	}
	start := time.Now()
	data, err := d.readPage(page)
	finishNandOp("read", start, err)
	return data, err
}

func (d *NandDevice) readPage(page uint32) ([]byte, error) {
	if err := d.WaitReady(d.cfg.ReadTimeout); err != nil {
		return nil, err
	}
	if err := d.write(newPageFrame(opPageDataRead, page).encode()); err != nil {
		return nil, err
	}
	if err := d.WaitReady(d.cfg.ReadTimeout); err != nil {
		return nil, err
	}

	// Cache read takes a 2-byte column plus one dummy byte before data.
	header := append(newColumnFrame(opReadCache, 0).encode(), 0x00)
	rx, err := d.exchange(header, NandPageSize)
	if err != nil {
		return nil, err
	}
	return rx[len(header):], nil
}

// WritePage programs one full page. The containing block must have been
// erased. Program-load and program-execute are issued back to back with
// no intervening bus traffic.
func (d *NandDevice) WritePage(page uint32, data []byte) error {
	if page >= d.Pages() {
		return fmt.Errorf("%w: page %d out of range", ErrInvalidArgument, page)
	}
	if len(data) != NandPageSize {
		return fmt.Errorf("%w: page data must be %d bytes, got %d", ErrInvalidArgument, NandPageSize, len(data))
	}
	start := time.Now()
	err := d.writePage(page, data)
	finishNandOp("write", start, err)
	return err
}

func (d *NandDevice) writePage(page uint32, data []byte) error {
	if err := d.WaitReady(d.cfg.WriteTimeout); err != nil {
		return err
	}
	if err := d.writeEnable(); err != nil {
		return err
	}

	frame := make([]byte, 0, 3+NandPageSize)
	frame = append(frame, newColumnFrame(opProgramLoad, 0).encode()...)
	frame = append(frame, data...)
	if err := d.write(frame); err != nil {
		return err
	}
	if err := d.write(newPageFrame(opProgramExecute, page).encode()); err != nil {
		return err
	}

	if err := d.WaitReady(d.cfg.WriteTimeout); err != nil {
		return err
	}
	status, err := d.ReadStatus()
	if err != nil {
		return err
	}
	if status&statusProgramFail != 0 {
		return ErrProgramFailure
	}
	return d.command(opWriteDisable)
}

// EraseBlock erases one 64-page block, addressed by its first page.
func (d *NandDevice) EraseBlock(block uint32) error {
	if block >= uint32(d.cfg.Blocks) {
		return fmt.Errorf("%w: block %d out of range", ErrInvalidArgument, block)
	}
	start := time.Now()
	err := d.eraseBlock(block)
	finishNandOp("erase", start, err)
	return err
}

func (d *NandDevice) eraseBlock(block uint32) error {
	if err := d.WaitReady(d.cfg.EraseTimeout); err != nil {
		return err
	}
	if err := d.writeEnable(); err != nil {
		return err
	}
	if err := d.write(newPageFrame(opBlockErase, block<<6).encode()); err != nil {
		return err
	}
	if err := d.WaitReady(d.cfg.EraseTimeout); err != nil {
		return err
	}

	status, err := d.ReadStatus()
	if err != nil {
		return err
	}
	if status&statusEraseFail != 0 {
		return ErrEraseFailure
	}
	return d.command(opWriteDisable)
}

// writeEnable sets the write-enable latch and verifies it took. Program
// and erase commands without a confirmed latch are silently ignored by
// the chip, so an unset WEL is surfaced here instead.
func (d *NandDevice) writeEnable() error {
	if err := d.command(opWriteEnable); err != nil {
		return err
	}
	status, err := d.ReadStatus()
	if err != nil {
		return err
	}
	if status&statusWEL == 0 {
		return ErrWriteEnableFailed
	}
	return nil
}

func (d *NandDevice) command(op byte) error {
	return d.write([]byte{op})
}

func (d *NandDevice) readRegister(reg byte) (byte, error) {
	rx, err := d.exchange(regFrame{op: opReadStatus, reg: reg}.encode(), 1)
	if err != nil {
		return 0, err
	}
	return rx[2], nil
}

func (d *NandDevice) writeRegister(reg, value byte) error {
	return d.write([]byte{opWriteStatus, reg, value})
}

// exchange clocks the header out, then extra dummy bytes to clock the
// response in. The full rx buffer is returned so callers can index past
// the header.
func (d *NandDevice) exchange(header []byte, extra int) ([]byte, error) {
	tx := make([]byte, len(header)+extra)
	copy(tx, header)
	for i := len(header); i < len(tx); i++ {
		tx[i] = 0xFF
	}
	rx := make([]byte, len(tx))
	if err := d.bus.Transfer(tx, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

func (d *NandDevice) write(tx []byte) error {
	rx := make([]byte, len(tx))
	return d.bus.Transfer(tx, rx)
}

func finishNandOp(op string, start time.Time, err error) {
	metricNandOps.WithLabelValues(op).Inc()
	metricNandOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metricNandFailures.WithLabelValues(op).Inc()
	}
}
