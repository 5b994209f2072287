package memscan

import (
	"context"
	"strings"

	"github.com/shirou/gopsutil/process"
)

// FindProcesses returns the pids of processes named exactly like one of
// names, in the order of names, followed by those whose name starts with one
// of prefixes. Names are compared case-insensitively.
func FindProcesses(ctx context.Context, names, prefixes []string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	found := make([]processName, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		found = append(found, processName{pid: p.Pid, name: name})
	}
	return orderProcesses(found, names, prefixes), nil
}

type processName struct {
	pid  int32
	name string
}

func orderProcesses(procs []processName, names, prefixes []string) []int32 {
	exact := make(map[string][]int32, len(names))
	for _, name := range names {
		exact[strings.ToLower(name)] = nil
	}

	var extra []int32
	for _, p := range procs {
		if p.pid <= 0 {
			continue
		}
		name := strings.ToLower(p.name)
		if _, ok := exact[name]; ok {
			exact[name] = append(exact[name], p.pid)
			continue
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, strings.ToLower(prefix)) {
				extra = append(extra, p.pid)
				break
			}
		}
	}

	var ordered []int32
	for _, name := range names {
		ordered = append(ordered, exact[strings.ToLower(name)]...)
	}
	ordered = append(ordered, extra...)

	seen := make(map[int32]bool, len(ordered))
	pids := ordered[:0]
	for _, pid := range ordered {
		if !seen[pid] {
			seen[pid] = true
			pids = append(pids, pid)
		}
	}
	return pids
}
