package lua

import (
	"fmt"
	"os"

	"github.com/Shopify/go-lua"
)

// VM wraps a single Lua state. It is not safe for concurrent use.
type VM struct {
	state *lua.State
}

func NewVM() *VM {
	state := lua.NewState()
	openSafeLibraries(state)
	return &VM{state: state}
}

func openSafeLibraries(state *lua.State) {
	lua.OpenLibraries(state)

	for _, name := range []string{"io", "os", "debug", "dofile", "loadfile", "require"} {
		state.PushNil()
		state.SetGlobal(name)
	}
}

func (vm *VM) LoadFile(path string) error {
	if err := lua.DoFile(vm.state, path); err != nil {
		return fmt.Errorf("failed to load lua file %s: %w", path, err)
	}
	return nil
}

func (vm *VM) LoadString(code string) error {
	if err := lua.DoString(vm.state, code); err != nil {
		return fmt.Errorf("failed to load lua string: %w", err)
	}
	return nil
}

func (vm *VM) Close() {
	vm.state.SetTop(0)
}

func (vm *VM) GetGlobalString(name string) (string, error) {
	vm.state.Global(name)
	defer vm.state.Pop(1)
	if vm.state.TypeOf(-1) != lua.TypeString {
		return "", fmt.Errorf("global %s is not a string", name)
	}
	value, _ := vm.state.ToString(-1)
	return value, nil
}

func (vm *VM) GetGlobalNumber(name string) (float64, error) {
	vm.state.Global(name)
	defer vm.state.Pop(1)
	if vm.state.TypeOf(-1) != lua.TypeNumber {
		return 0, fmt.Errorf("global %s is not a number", name)
	}
	value, _ := vm.state.ToNumber(-1)
	return value, nil
}

func (vm *VM) GetGlobalBool(name string) (bool, error) {
	vm.state.Global(name)
	defer vm.state.Pop(1)
	if !vm.state.IsBoolean(-1) {
		return false, fmt.Errorf("global %s is not a boolean", name)
	}
	return vm.state.ToBoolean(-1), nil
}

func (vm *VM) pushArgs(args []interface{}) error {
	for i, arg := range args {
		switch v := arg.(type) {
		case nil:
			vm.state.PushNil()
		case string:
			vm.state.PushString(v)
		case int:
			vm.state.PushInteger(v)
		case float64:
			vm.state.PushNumber(v)
		case bool:
			vm.state.PushBoolean(v)
		case func(*lua.State):
			v(vm.state)
		default:
			vm.state.Pop(i + 1)
			return fmt.Errorf("unsupported argument type: %T", arg)
		}
	}
	return nil
}

// CallFunction calls the global function name with args. An argument of type
// func(*lua.State) pushes its own value, which is how tables are passed.
func (vm *VM) CallFunction(name string, args ...interface{}) error {
	_, err := vm.CallFunctionWithReturn(name, 0, args...)
	return err
}

func (vm *VM) CallFunctionWithReturn(name string, numReturns int, args ...interface{}) ([]interface{}, error) {
	vm.state.Global(name)
	if !vm.state.IsFunction(-1) {
		vm.state.Pop(1)
		return nil, fmt.Errorf("global %s is not a function", name)
	}

	if err := vm.pushArgs(args); err != nil {
		return nil, err
	}

	if err := vm.state.ProtectedCall(len(args), numReturns, 0); err != nil {
		vm.state.Pop(1)
		return nil, vm.enhanceError(fmt.Sprintf("function %s", name), err)
	}

	results := make([]interface{}, numReturns)
	for i := 0; i < numReturns; i++ {
		stackIndex := i - numReturns
		switch vm.state.TypeOf(stackIndex) {
		case lua.TypeNumber:
			value, _ := vm.state.ToNumber(stackIndex)
			results[i] = value
		case lua.TypeString:
			value, _ := vm.state.ToString(stackIndex)
			results[i] = value
		case lua.TypeBoolean:
			results[i] = vm.state.ToBoolean(stackIndex)
		default:
			results[i] = nil
		}
	}
	vm.state.Pop(numReturns)

	return results, nil
}

func (vm *VM) enhanceError(context string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[Lua Error] %s: %w", context, err)
}

func (vm *VM) HasFunction(name string) bool {
	vm.state.Global(name)
	isFunc := vm.state.IsFunction(-1)
	vm.state.Pop(1)
	return isFunc
}

func (vm *VM) RegisterFunction(name string, fn lua.Function) {
	vm.state.Register(name, fn)
}

func (vm *VM) State() *lua.State {
	return vm.state
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
