// Package version reports build metadata and the control protocol revision.
package version

import (
	"fmt"
	"runtime"

	"github.com/rbright/ctrloem3/internal/protocol"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("ctrloem3 %s (commit=%s, date=%s, go=%s, protocol=%d/%d)",
		Version, Commit, Date, runtime.Version(),
		uint8(protocol.CommandGetStatus), uint8(protocol.CommandNotifyStop),
	)
}
