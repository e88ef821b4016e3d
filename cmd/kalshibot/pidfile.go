package main

// pidfile.go — single-instance enforcement via a PID file.
//
// A stale file (process gone) is cleaned up silently; a live one blocks a
// second start.

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// writePIDFile claims the PID file for this process. It fails when another
// live daemon already holds it.
func writePIDFile(path string) error {
	if pid, ok := readPIDFile(path); ok {
		if processAlive(pid) {
			return fmt.Errorf("daemon already running with pid %d (%s)", pid, path)
		}
		// stale file from a crashed run
		os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// removePIDFile drops the file only if it still belongs to this process.
func removePIDFile(path string) {
	if pid, ok := readPIDFile(path); ok && pid == os.Getpid() {
		os.Remove(path)
	}
}

func readPIDFile(path string) (int, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive checks whether pid refers to a running process we can
// signal.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
