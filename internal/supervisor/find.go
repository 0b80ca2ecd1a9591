package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/shirou/gopsutil/v3/process"
)

// FindRunning returns the PIDs of live processes whose name matches the
// base name of binary.
func FindRunning(ctx context.Context, binary string) ([]int32, error) {
	name := filepath.Base(binary)
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	pids := make([]int32, 0)
	for _, p := range procs {
		procName, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if procName == name {
			pids = append(pids, p.Pid)
		}
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids, nil
}
