//go:build windows

package filesystem

import (
	"syscall"
	"unsafe"
)

// MoveFileEx 标志位
const (
	movefileReplaceExisting = 0x1
	movefileWriteThrough    = 0x8
)

var (
	modkernel32     = syscall.NewLazyDLL("kernel32.dll")
	procMoveFileExW = modkernel32.NewProc("MoveFileExW")
)

// osReplace 使用 MoveFileExW(REPLACE_EXISTING|WRITE_THROUGH) 尽力原子替换。
func osReplace(tmpPath, dest string) error {
	from, err := syscall.UTF16PtrFromString(tmpPath)
	if err != nil {
		return err
	}
	to, err := syscall.UTF16PtrFromString(dest)
	if err != nil {
		return err
	}
	r1, _, e1 := procMoveFileExW.Call(
		uintptr(unsafe.Pointer(from)),
		uintptr(unsafe.Pointer(to)),
		uintptr(movefileReplaceExisting|movefileWriteThrough),
	)
	if r1 == 0 {
		if e1 != nil && e1 != syscall.Errno(0) {
			return e1
		}
		return syscall.EINVAL
	}
	return nil
}

// syncDir 在 Windows 上为 no-op。
func syncDir(string) error { return nil }
