package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/bytelox/bytelox/debug"
	e "github.com/bytelox/bytelox/errors"
)

// VM executes one chunk at a time. Its interned-string table, globals and
// object roots outlive any single Interpret call, so a REPL can keep state
// across lines on the same VM.
type VM struct {
	chunk *Chunk
	ip    int
	stack []Value

	// Every object the VM has seen, keeping it alive for the VM's lifetime.
	objects []*Obj
	// Interning invariant: byte-equal strings share a single handle.
	strings map[string]*Obj
	globals map[*Obj]Value

	out, errOut io.Writer
}

func NewVM() *VM { return NewVMWithIO(os.Stdout, os.Stderr) }

func NewVMWithIO(out, errOut io.Writer) *VM {
	return &VM{
		strings: map[string]*Obj{},
		globals: map[*Obj]Value{},
		out:     out,
		errOut:  errOut,
	}
}

func (vm *VM) push(val Value) {
	vm.stack = append(vm.stack, val)
}

func (vm *VM) pop() (last Value) {
	debug.Assertf(len(vm.stack) > 0, "popped an empty stack")
	len_ := len(vm.stack)
	vm.stack, last = vm.stack[:len_-1], vm.stack[len_-1]
	return
}

func (vm *VM) peek(dist int) Value { return vm.stack[len(vm.stack)-1-dist] }

// takeString returns the canonical object for the given bytes, allocating
// and rooting a fresh one on first sight.
func (vm *VM) takeString(s string) *Obj {
	if o, ok := vm.strings[s]; ok {
		return o
	}
	o := newObjStr(s)
	vm.objects = append(vm.objects, o)
	vm.strings[o.str] = o
	return o
}

// Interpret compiles src and runs the resulting chunk. The returned error is
// nil, a compile error (possibly several, wrapped) or a *errors.RuntimeError.
func (vm *VM) Interpret(src string) error {
	parser := NewParser()
	parser.SetErrOut(vm.errOut)
	chunk, err := parser.Compile(src)
	if err != nil {
		return err
	}
	vm.chunk = chunk
	vm.ip = 0
	return vm.run()
}

// Free drops the object roots. Handles still referenced by globals or the
// intern table stay valid until those maps go away with the VM.
func (vm *VM) Free() {
	logrus.Debugf("Freeing %d objects.", len(vm.objects))
	vm.objects = nil
}

func (vm *VM) run() error {
	if vm.chunk == nil {
		return &e.RuntimeError{
			Line:   -1,
			Reason: "chunk uninitialized",
		}
	}

	readByte := func() (res byte) {
		res = vm.chunk.code[vm.ip]
		vm.ip++
		return
	}

	readShort := func() (res int) {
		res = int(vm.chunk.code[vm.ip])<<8 | int(vm.chunk.code[vm.ip+1])
		vm.ip += 2
		return
	}

	// readConst re-interns string constants so that every string handle the
	// stack ever sees comes from the VM's own table; other objects are only
	// rooted.
	readConst := func() Value {
		const_ := vm.chunk.consts[readByte()]
		if v, ok := const_.(VObj); ok {
			if s, ok := v.AsStr(); ok {
				return VObj{vm.takeString(s)}
			}
			vm.objects = append(vm.objects, v.Obj)
		}
		return const_
	}

	readGlobalName := func() *Obj {
		name := readConst()
		obj, ok := name.(VObj)
		debug.Assertf(ok && obj.IsStr(), "global name is not a string: %v", name)
		return obj.Obj
	}

	for {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logrus.Debugln(vm.stackTrace())
			instDump, _ := vm.chunk.DisassembleInst(vm.ip)
			logrus.Debugln(instDump)
		}
		oldIP := vm.ip
		switch inst := OpCode(readByte()); inst {
		case OpConst:
			vm.push(readConst())

		case OpNil:
			vm.push(VNil{})
		case OpTrue:
			vm.push(VBool(true))
		case OpFalse:
			vm.push(VBool(false))

		case OpNot:
			vm.push(!VTruthy(vm.pop()))

		case OpNeg:
			res, ok := VNeg(vm.pop())
			if !ok {
				return vm.runtimeError(oldIP, "Operand must be a number.")
			}
			vm.push(res)

		case OpAdd:
			rhs := vm.pop()
			lhs := vm.pop()
			switch lhs := lhs.(type) {
			case VNum:
				if rhs, ok := rhs.(VNum); ok {
					vm.push(lhs + rhs)
					continue
				}
			case VObj:
				if rhs, ok := rhs.(VObj); ok && lhs.IsStr() && rhs.IsStr() {
					// Concatenation results are interned like any string.
					vm.push(VObj{vm.takeString(lhs.AsStrUnsafe() + rhs.AsStrUnsafe())})
					continue
				}
			}
			return vm.runtimeError(oldIP, "Operands must be either two numbers or two strings.")

		case OpSub:
			rhs := vm.pop()
			res, ok := VSub(vm.pop(), rhs)
			if !ok {
				return vm.runtimeError(oldIP, "Operands must be numbers.")
			}
			vm.push(res)
		case OpMul:
			rhs := vm.pop()
			res, ok := VMul(vm.pop(), rhs)
			if !ok {
				return vm.runtimeError(oldIP, "Operands must be numbers.")
			}
			vm.push(res)
		case OpDiv:
			rhs := vm.pop()
			res, ok := VDiv(vm.pop(), rhs)
			if !ok {
				return vm.runtimeError(oldIP, "Operands must be numbers.")
			}
			vm.push(res)

		case OpEqual:
			rhs := vm.pop()
			vm.push(VEq(vm.pop(), rhs))
		case OpGreater:
			rhs := vm.pop()
			res, ok := VGreater(vm.pop(), rhs)
			if !ok {
				return vm.runtimeError(oldIP, "Operands must be numbers.")
			}
			vm.push(res)
		case OpLess:
			rhs := vm.pop()
			res, ok := VLess(vm.pop(), rhs)
			if !ok {
				return vm.runtimeError(oldIP, "Operands must be numbers.")
			}
			vm.push(res)

		case OpPrint:
			fmt.Fprintf(vm.out, "%s\n", vm.pop())
		case OpPop:
			vm.pop()

		case OpDefGlobal:
			name := readGlobalName()
			if _, defined := vm.globals[name]; defined {
				return vm.runtimeError(oldIP, "Global variable %s already declared.", name.AsStrUnsafe())
			}
			vm.globals[name] = vm.peek(0)
			vm.pop()
		case OpGetGlobal:
			name := readGlobalName()
			val, defined := vm.globals[name]
			if !defined {
				return vm.runtimeError(oldIP, "Unknown global variable %s.", name.AsStrUnsafe())
			}
			vm.push(val)
		case OpSetGlobal:
			name := readGlobalName()
			if _, defined := vm.globals[name]; !defined {
				return vm.runtimeError(oldIP, "Cannot assign to unknown global variable %s.", name.AsStrUnsafe())
			}
			// Assignment is an expression, so the value stays on the stack.
			vm.globals[name] = vm.peek(0)

		case OpGetLocal:
			slot := readByte()
			vm.push(vm.stack[slot])
		case OpSetLocal:
			slot := readByte()
			vm.stack[slot] = vm.peek(0)

		case OpJump:
			vm.ip += readShort()
		case OpLoop:
			vm.ip -= readShort()
		case OpJumpUnless:
			offset := readShort()
			if !VTruthy(vm.peek(0)) {
				vm.ip += offset
			}

		case OpReturn:
			return nil

		default:
			return vm.runtimeError(oldIP, "Unknown opcode %d.", byte(inst))
		}
	}
}

// runtimeError reports against the line of the instruction at ip, clears the
// value stack and leaves the VM reusable.
func (vm *VM) runtimeError(ip int, format string, a ...any) *e.RuntimeError {
	err := &e.RuntimeError{
		Line:   vm.chunk.lines[ip],
		Reason: fmt.Sprintf(format, a...),
	}
	fmt.Fprintln(vm.errOut, err)
	vm.stack = vm.stack[:0]
	return err
}

func (vm *VM) stackTrace() string {
	res := "          "
	for _, slot := range vm.stack {
		res += fmt.Sprintf("[ %s ]", slot)
	}
	return res
}
