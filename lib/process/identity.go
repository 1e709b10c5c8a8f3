// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bufio"
	"io"
	"os"
	"path"
	"regexp"
	"strconv"
	"sync"
)

// CgroupPath is where the container ID is read from on Linux.
const CgroupPath = "/proc/self/cgroup"

// PID returns the current process ID as a decimal string.
func PID() string {
	return strconv.Itoa(os.Getpid())
}

var (
	containerIDOnce sync.Once
	containerID     string
)

// ContainerID returns the ID of the container this process runs in,
// or "" when it cannot be determined. The cgroup file is read once per
// process.
func ContainerID() string {
	containerIDOnce.Do(func() {
		file, err := os.Open(CgroupPath)
		if err != nil {
			return
		}
		defer file.Close()
		containerID = ParseContainerID(file)
	})
	return containerID
}

var (
	cgroupLine = regexp.MustCompile(`^(\d+):([^:]*):(.+)$`)

	// Docker and containerd use 64 hex characters, Kubernetes pods with
	// systemd use a UUID (dash or underscore separated), and ECS/Fargate
	// tasks use 32 hex characters followed by a numeric suffix.
	containerSegment = regexp.MustCompile(
		`(?:.+)?([0-9a-f]{8}[-_][0-9a-f]{4}[-_][0-9a-f]{4}[-_][0-9a-f]{4}[-_][0-9a-f]{12}|[0-9a-f]{64}|[0-9a-f]{32}-\d+)(?:\.scope)?$`,
	)
)

// ParseContainerID scans cgroup file content in the
// "hierarchy:controllers:path" format and returns the first container
// ID found in the last element of a path.
func ParseContainerID(cgroups io.Reader) string {
	scanner := bufio.NewScanner(cgroups)
	for scanner.Scan() {
		fields := cgroupLine.FindStringSubmatch(scanner.Text())
		if fields == nil {
			continue
		}
		match := containerSegment.FindStringSubmatch(path.Base(fields[3]))
		if match != nil {
			return match[1]
		}
	}
	return ""
}
