package memscan

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

type procProcess struct {
	pid int32
	mem *os.File
}

// OpenProcess opens the memory of pid through procfs. It needs ptrace
// access to the target.
func OpenProcess(pid int32) (Process, error) {
	mem, err := os.Open("/proc/" + strconv.Itoa(int(pid)) + "/mem")
	if err != nil {
		return nil, err
	}
	return &procProcess{pid: pid, mem: mem}, nil
}

func (p *procProcess) Regions() ([]Region, error) {
	f, err := os.Open("/proc/" + strconv.Itoa(int(p.pid)) + "/maps")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMaps(f)
}

// parseMaps keeps the readable private anonymous mappings, the procfs
// equivalent of committed private memory.
func parseMaps(rd io.Reader) ([]Region, error) {
	var regions []Region
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 {
			continue
		}
		perms := fields[1]
		if len(perms) < 4 || perms[0] != 'r' || perms[3] != 'p' || fields[4] != "0" {
			continue
		}
		if len(fields) > 5 && fields[5] != "[heap]" && fields[5] != "[stack]" {
			continue
		}

		start, end, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		base, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			continue
		}
		limit, err := strconv.ParseUint(end, 16, 64)
		if err != nil || limit <= base {
			continue
		}
		regions = append(regions, Region{Base: base, Size: limit - base})
	}
	return regions, sc.Err()
}

func (p *procProcess) ReadAt(b []byte, addr uint64) (int, error) {
	return p.mem.ReadAt(b, int64(addr))
}

func (p *procProcess) Close() error {
	return p.mem.Close()
}
