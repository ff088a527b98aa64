package data

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
)

// Contract enforces the facade threading rules. The client's UI loop
// registers its goroutine once via BindUILoop; synchronous calls from that
// goroutine are a programming error, because SQLite access can block on disk
// I/O and must never stall the render loop. In debug the violation panics; in
// release it is logged and execution continues.
type Contract struct {
	debug  bool
	logger *zap.Logger
	uiGID  atomic.Uint64
}

// NewContract creates the policy object. debug comes from config, read once
// at startup.
func NewContract(debug bool, logger *zap.Logger) *Contract {
	return &Contract{debug: debug, logger: logger}
}

// BindUILoop records the calling goroutine as the UI loop. Until it is
// called, the contract is not enforced.
func (c *Contract) BindUILoop() {
	c.uiGID.Store(goroutineID())
}

// CheckSync fails when invoked on the UI loop goroutine.
func (c *Contract) CheckSync(op string) {
	if !c.onUILoop() {
		return
	}
	if c.debug {
		panic(fmt.Sprintf("data: synchronous %s on the UI loop goroutine", op))
	}
	c.logger.Error("synchronous cache call on the UI loop goroutine", zap.String("op", op))
}

// CheckAsync logs a warning when an async submission does not originate from
// the UI loop goroutine. Advisory only; async methods are goroutine-agnostic.
func (c *Contract) CheckAsync(op string) {
	if c.uiGID.Load() == 0 || c.onUILoop() {
		return
	}
	c.logger.Warn("async cache call off the UI loop goroutine", zap.String("op", op))
}

func (c *Contract) onUILoop() bool {
	id := c.uiGID.Load()
	return id != 0 && id == goroutineID()
}

// goroutineID parses the current goroutine's id from its stack header, which
// looks like "goroutine 123 [running]:". Goroutine ids start at 1, so 0 is a
// safe unbound sentinel.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
