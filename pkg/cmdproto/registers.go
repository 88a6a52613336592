package cmdproto

import (
	"sort"
	"sync"
)

// RegisterFile is the memory map commands read and write.
type RegisterFile interface {
	ReadReg(addr uint8) (uint16, error)
	WriteReg(addr uint8, data uint16) error
}

// ReadFunc supplies the value of a computed register.
type ReadFunc func() uint16

// WriteFunc is called after a register is written.
type WriteFunc func(data uint16) error

type register struct {
	value    uint16
	readOnly bool
	read     ReadFunc
	onWrite  WriteFunc
}

// Registers is a map backed RegisterFile. Only defined addresses
// are accessible.
type Registers struct {
	regs map[uint8]*register
	lock sync.RWMutex
}

// NewRegisters creates an empty register file.
func NewRegisters() *Registers {
	return &Registers{regs: make(map[uint8]*register)}
}

// Define maps a read/write register with an initial value.
func (r *Registers) Define(addr uint8, initial uint16) *Registers {
	r.lock.Lock()
	r.regs[addr] = &register{value: initial}
	r.lock.Unlock()
	return r
}

// DefineReadOnly maps a register whose value comes from fn.
func (r *Registers) DefineReadOnly(addr uint8, fn ReadFunc) *Registers {
	r.lock.Lock()
	r.regs[addr] = &register{readOnly: true, read: fn}
	r.lock.Unlock()
	return r
}

// OnWrite installs a hook called after addr is written.
func (r *Registers) OnWrite(addr uint8, fn WriteFunc) *Registers {
	r.lock.Lock()
	if reg := r.regs[addr]; reg != nil {
		reg.onWrite = fn
	}
	r.lock.Unlock()
	return r
}

// Addrs lists mapped addresses in order.
func (r *Registers) Addrs() []uint8 {
	r.lock.RLock()
	addrs := make([]uint8, 0, len(r.regs))
	for addr := range r.regs {
		addrs = append(addrs, addr)
	}
	r.lock.RUnlock()
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// ReadReg implements RegisterFile.
func (r *Registers) ReadReg(addr uint8) (uint16, error) {
	r.lock.RLock()
	reg := r.regs[addr]
	var value uint16
	var fn ReadFunc
	if reg != nil {
		value, fn = reg.value, reg.read
	}
	r.lock.RUnlock()
	if reg == nil {
		return 0, &RegisterError{Op: OpRead, Addr: addr, Err: ErrUnmapped}
	}
	if fn != nil {
		value = fn()
	}
	return value, nil
}

// WriteReg implements RegisterFile.
func (r *Registers) WriteReg(addr uint8, data uint16) error {
	r.lock.Lock()
	reg := r.regs[addr]
	var err error
	var hook WriteFunc
	switch {
	case reg == nil:
		err = ErrUnmapped
	case reg.readOnly:
		err = ErrReadOnly
	default:
		reg.value, hook = data, reg.onWrite
	}
	r.lock.Unlock()
	if err != nil {
		return &RegisterError{Op: OpWrite, Addr: addr, Err: err}
	}
	if hook != nil {
		if err = hook(data); err != nil {
			return &RegisterError{Op: OpWrite, Addr: addr, Err: err}
		}
	}
	return nil
}
