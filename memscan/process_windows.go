package memscan

import (
	"sync"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows"
)

const (
	memCommit  = 0x1000
	memPrivate = 0x20000

	pageNoAccess         = 0x01
	pageReadOnly         = 0x02
	pageReadWrite        = 0x04
	pageWriteCopy        = 0x08
	pageExecuteRead      = 0x20
	pageExecuteReadWrite = 0x40
	pageExecuteWriteCopy = 0x80
	pageGuard            = 0x100

	pageReadable = pageReadOnly | pageReadWrite | pageWriteCopy | pageExecuteRead | pageExecuteReadWrite | pageExecuteWriteCopy
)

var debugPrivilege sync.Once

type winProcess struct {
	h windows.Handle
}

// OpenProcess opens pid for reading. SeDebugPrivilege is requested once,
// failure to get it is not an error.
func OpenProcess(pid int32) (Process, error) {
	debugPrivilege.Do(enableDebugPrivilege)

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ, false, uint32(pid))
	if err != nil {
		return nil, err
	}
	return &winProcess{h: h}, nil
}

func (p *winProcess) Regions() ([]Region, error) {
	var (
		regions []Region
		mbi     windows.MemoryBasicInformation
		addr    uintptr
	)
	for {
		if err := windows.VirtualQueryEx(p.h, addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			break
		}
		if mbi.State == memCommit && mbi.Type == memPrivate && readable(mbi.Protect) {
			regions = append(regions, Region{
				Base: uint64(mbi.BaseAddress),
				Size: uint64(mbi.RegionSize),
			})
		}
		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			break
		}
		addr = next
	}
	return regions, nil
}

func (p *winProcess) ReadAt(b []byte, addr uint64) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	var n uintptr
	err := windows.ReadProcessMemory(p.h, uintptr(addr), &b[0], uintptr(len(b)), &n)
	return int(n), err
}

func (p *winProcess) Close() error {
	return windows.CloseHandle(p.h)
}

func readable(protect uint32) bool {
	return protect&(pageGuard|pageNoAccess) == 0 && protect&pageReadable != 0
}

func enableDebugPrivilege() {
	var token windows.Token
	if err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_ADJUST_PRIVILEGES|windows.TOKEN_QUERY, &token); err != nil {
		log.Debug().Err(err).Msg("failed to open process token")
		return
	}
	defer token.Close()

	var luid windows.LUID
	if err := windows.LookupPrivilegeValue(nil, windows.StringToUTF16Ptr("SeDebugPrivilege"), &luid); err != nil {
		log.Debug().Err(err).Msg("failed to look up SeDebugPrivilege")
		return
	}
	tp := windows.Tokenprivileges{PrivilegeCount: 1}
	tp.Privileges[0] = windows.LUIDAndAttributes{Luid: luid, Attributes: windows.SE_PRIVILEGE_ENABLED}
	if err := windows.AdjustTokenPrivileges(token, false, &tp, 0, nil, nil); err != nil {
		log.Debug().Err(err).Msg("failed to enable SeDebugPrivilege")
	}
}
