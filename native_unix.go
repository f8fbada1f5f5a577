//go:build !windows

package odbx

import (
	"errors"

	"github.com/ebitengine/purego"
)

// Load a dynamic library on unix systems using purego.
func loadDynamicLibrary(path string) (uintptr, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, err
	}
	return handle, nil
}

// Close the library.
func closeLibrary(handle uintptr) {
	if handle != 0 {
		purego.Dlclose(handle)
	}
}

// Get a symbol from the library.
func getSymbol(handle uintptr, name string) (uintptr, error) {
	if handle == 0 {
		return 0, errors.New("odbx: invalid library handle")
	}
	sym, err := purego.Dlsym(handle, name)
	if err != nil {
		return 0, err
	}
	return sym, nil
}

// nativeCall invokes a loaded driver-manager entry point.
func nativeCall(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(fn, args...)
	return r1
}

// defaultDriverManagers lists the driver manager library names probed
// by LoadDefaultDriverManager, most specific first.
var defaultDriverManagers = []string{
	"libodbc.so.2",
	"libodbc.so",
	"libodbc.dylib",
	"libiodbc.dylib",
}
