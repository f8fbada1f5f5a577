//go:build windows

package odbx

import (
	"errors"
	"syscall"
)

// Load a dynamic library on Windows systems.
func loadDynamicLibrary(path string) (uintptr, error) {
	handle, err := syscall.LoadLibrary(path)
	if err != nil {
		return 0, err
	}
	return uintptr(handle), nil
}

// Close the library.
func closeLibrary(handle uintptr) {
	if handle != 0 {
		syscall.FreeLibrary(syscall.Handle(handle))
	}
}

// Get a symbol from the library.
func getSymbol(handle uintptr, name string) (uintptr, error) {
	if handle == 0 {
		return 0, errors.New("odbx: invalid library handle")
	}
	proc, err := syscall.GetProcAddress(syscall.Handle(handle), name)
	if err != nil {
		return 0, err
	}
	return proc, nil
}

// nativeCall invokes a loaded driver-manager entry point.
func nativeCall(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := syscall.SyscallN(fn, args...)
	return r1
}

// defaultDriverManagers lists the driver manager library names probed
// by LoadDefaultDriverManager.
var defaultDriverManagers = []string{
	"odbc32.dll",
}
