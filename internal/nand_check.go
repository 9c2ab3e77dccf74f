package internal

import (
	"bytes"
	"fmt"
	"time"

	"github.com/voltsys/batlog/libraries/logger"
)

// RunNandCheck exercises the flash driver end to end against the
// simulated chip: identify, erase, pattern program, readback, and the
// failure paths the driver must surface. Used by the --nand-check
// one-shot mode.
func RunNandCheck() error {
	cfg := DefaultNandConfig()
	cfg.Blocks = 8
	cfg.PollInterval = 100 * time.Microsecond

	chip := NewSimChip(cfg.Blocks)
	dev, err := NewNandDevice(chip, cfg)
	if err != nil {
		return fmt.Errorf("device init: %w", err)
	}

	id := dev.ID()
	if id.Manufacturer != simManufacturer {
		return fmt.Errorf("identify: unexpected manufacturer %02x", id.Manufacturer)
	}
	logger.Printf("nand", "identify ok (%s)", id)

	if err := dev.EraseBlock(0); err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	page, err := dev.ReadPage(0)
	if err != nil {
		return fmt.Errorf("post-erase read: %w", err)
	}
	for i, b := range page {
		if b != 0xFF {
			return fmt.Errorf("post-erase read: byte %d is %02x, want ff", i, b)
		}
	}
	logger.Printf("nand", "erase + blank check ok")

	pattern := make([]byte, NandPageSize)
	for i := range pattern {
		pattern[i] = byte(i*7 + 13)
	}
	if err := dev.WritePage(5, pattern); err != nil {
		return fmt.Errorf("program: %w", err)
	}
	got, err := dev.ReadPage(5)
	if err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	if !bytes.Equal(got, pattern) {
		return fmt.Errorf("readback: pattern mismatch")
	}
	logger.Printf("nand", "program + readback ok")

	chip.DropWriteEnable = true
	if err := dev.WritePage(6, pattern); err != ErrWriteEnableFailed {
		return fmt.Errorf("dropped WEL: got %v, want %v", err, ErrWriteEnableFailed)
	}
	chip.DropWriteEnable = false
	logger.Printf("nand", "write-enable verification ok")

	chip.FailProgram = true
	if err := dev.WritePage(6, pattern); err != ErrProgramFailure {
		return fmt.Errorf("program fail bit: got %v, want %v", err, ErrProgramFailure)
	}
	chip.FailProgram = false
	if err := dev.write([]byte{opReset}); err != nil {
		return err
	}

	chip.FailErase = true
	if err := dev.EraseBlock(1); err != ErrEraseFailure {
		return fmt.Errorf("erase fail bit: got %v, want %v", err, ErrEraseFailure)
	}
	chip.FailErase = false
	if err := dev.write([]byte{opReset}); err != nil {
		return err
	}
	logger.Printf("nand", "failure bit handling ok")

	check := cfg
	check.ReadTimeout = 10 * time.Millisecond
	busyDev, err := NewNandDevice(NewSimChip(1), check)
	if err != nil {
		return err
	}
	busyChip := NewSimChip(1)
	busyChip.StickBusy = true
	busyDev.bus = busyChip
	start := time.Now()
	if err := busyDev.WaitReady(check.ReadTimeout); err != ErrTimeout {
		return fmt.Errorf("stuck busy: got %v, want %v", err, ErrTimeout)
	}
	if elapsed := time.Since(start); elapsed < check.ReadTimeout {
		return fmt.Errorf("stuck busy: returned after %v, before the %v deadline", elapsed, check.ReadTimeout)
	}
	logger.Printf("nand", "timeout bound ok")

	return nil
}
