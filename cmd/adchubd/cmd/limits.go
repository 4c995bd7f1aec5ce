package cmd

import (
	"fmt"
	"log"
	"runtime"

	"golang.org/x/sys/unix"
)

// setLimits raises the process's open-file descriptor limit to its hard
// ceiling, the resource a hub under heavy concurrent connection load hits
// first. No-op on platforms without getrlimit/setrlimit.
func setLimits() error {
	if runtime.GOOS == "windows" {
		return nil
	}
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		return fmt.Errorf("getrlimit: %w", err)
	}
	if rlimit.Cur >= rlimit.Max {
		return nil
	}
	want := rlimit
	want.Cur = want.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &want); err != nil {
		log.Printf("raising RLIMIT_NOFILE to %d: %v\n", want.Max, err)
		return nil
	}
	log.Printf("raised RLIMIT_NOFILE to %d\n", want.Max)
	return nil
}
