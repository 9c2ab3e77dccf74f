package internal

import (
	"bytes"
	"testing"
	"time"
)

func newTestDevice(t *testing.T) (*NandDevice, *SimChip) {
	t.Helper()
	cfg := DefaultNandConfig()
	cfg.Blocks = 4
	cfg.ReadTimeout = 100 * time.Millisecond
	cfg.WriteTimeout = 100 * time.Millisecond
	cfg.EraseTimeout = 200 * time.Millisecond
	cfg.PollInterval = 100 * time.Microsecond

	chip := NewSimChip(cfg.Blocks)
	dev, err := NewNandDevice(chip, cfg)
	if err != nil {
		t.Fatalf("NewNandDevice: %v", err)
	}
	return dev, chip
}

func TestIdentify(t *testing.T) {
	dev, _ := newTestDevice(t)

	id, err := dev.Identify()
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	want := ChipID{Manufacturer: 0xEF, Memory: 0xAA, Capacity: 0x21}
	if id != want {
		t.Errorf("got %s, want %s", id, want)
	}
}

func TestInitClearsBlockProtection(t *testing.T) {
	_, chip := newTestDevice(t)
	if chip.protection != 0 {
		t.Errorf("protection register = %02x after init, want 00", chip.protection)
	}
}

func TestEraseBeforeWrite(t *testing.T) {
	dev, _ := newTestDevice(t)

	pattern := bytes.Repeat([]byte{0xA5}, NandPageSize)
	if err := dev.WritePage(3, pattern); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	if err := dev.EraseBlock(0); err != nil {
		t.Fatalf("EraseBlock: %v", err)
	}

	for _, page := range []uint32{0, 3, NandPagesPerBlock - 1} {
		data, err := dev.ReadPage(page)
		if err != nil {
			t.Fatalf("ReadPage(%d): %v", page, err)
		}
		for i, b := range data {
			if b != 0xFF {
				t.Fatalf("page %d byte %d = %02x after erase, want ff", page, i, b)
			}
		}
	}
}

func TestProgramReadFidelity(t *testing.T) {
	dev, _ := newTestDevice(t)

	pattern := make([]byte, NandPageSize)
	for i := range pattern {
		pattern[i] = byte(i*31 + 7)
	}
	if err := dev.WritePage(70, pattern); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got, err := dev.ReadPage(70)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(got, pattern) {
		t.Errorf("readback does not match written pattern")
	}
}

func TestWriteClearsLatch(t *testing.T) {
	dev, chip := newTestDevice(t)

	pattern := bytes.Repeat([]byte{0x42}, NandPageSize)
	if err := dev.WritePage(0, pattern); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if chip.wel {
		t.Error("write-enable latch still set after program")
	}
}

func TestWriteEnableFailed(t *testing.T) {
	dev, chip := newTestDevice(t)
	chip.DropWriteEnable = true

	pattern := bytes.Repeat([]byte{0x00}, NandPageSize)
	if err := dev.WritePage(0, pattern); err != ErrWriteEnableFailed {
		t.Errorf("WritePage: got %v, want %v", err, ErrWriteEnableFailed)
	}
	if err := dev.EraseBlock(0); err != ErrWriteEnableFailed {
		t.Errorf("EraseBlock: got %v, want %v", err, ErrWriteEnableFailed)
	}
}

func TestProgramFailure(t *testing.T) {
	dev, chip := newTestDevice(t)
	chip.FailProgram = true

	pattern := bytes.Repeat([]byte{0x11}, NandPageSize)
	if err := dev.WritePage(0, pattern); err != ErrProgramFailure {
		t.Errorf("got %v, want %v", err, ErrProgramFailure)
	}
}

func TestEraseFailure(t *testing.T) {
	dev, chip := newTestDevice(t)
	chip.FailErase = true

	if err := dev.EraseBlock(1); err != ErrEraseFailure {
		t.Errorf("got %v, want %v", err, ErrEraseFailure)
	}
}

func TestWaitReadyTimeout(t *testing.T) {
	dev, chip := newTestDevice(t)
	chip.StickBusy = true

	deadline := 20 * time.Millisecond
	start := time.Now()
	err := dev.WaitReady(deadline)
	elapsed := time.Since(start)

	if err != ErrTimeout {
		t.Fatalf("got %v, want %v", err, ErrTimeout)
	}
	if elapsed < deadline {
		t.Errorf("returned after %v, before the %v deadline", elapsed, deadline)
	}
	if elapsed > deadline+50*time.Millisecond {
		t.Errorf("returned after %v, too long past the %v deadline", elapsed, deadline)
	}
}

func TestInvalidArguments(t *testing.T) {
	dev, _ := newTestDevice(t)

	if _, err := dev.ReadPage(dev.Pages()); err == nil {
		t.Error("ReadPage past end of chip succeeded")
	}
	if err := dev.WritePage(0, make([]byte, 100)); err == nil {
		t.Error("WritePage with short buffer succeeded")
	}
	if err := dev.EraseBlock(uint32(dev.cfg.Blocks)); err == nil {
		t.Error("EraseBlock past end of chip succeeded")
	}
	if _, err := NewNandDevice(nil, DefaultNandConfig()); err == nil {
		t.Error("NewNandDevice with nil bus succeeded")
	}
}

func TestRunNandCheck(t *testing.T) {
	if err := RunNandCheck(); err != nil {
		t.Fatalf("RunNandCheck: %v", err)
	}
}
