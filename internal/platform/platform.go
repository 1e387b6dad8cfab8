// Package platform answers the host questions the daemon cares about:
// whether Unix sockets work, and whether a directory can be watched.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform identifies the host OS, splitting Linux from WSL.
type Platform string

const (
	MacOS   Platform = "macos"
	Linux   Platform = "linux"
	WSL1    Platform = "wsl1"
	WSL2    Platform = "wsl2"
	Windows Platform = "windows"
	Unknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the current platform. The result is computed once.
func Detect() Platform {
	detectOnce.Do(func() {
		detected = detect(runtime.GOOS, readFile("/proc/version"), os.Getenv("WSL_DISTRO_NAME") != "", exists)
	})
	return detected
}

func readFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(b)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func detect(goos, procVersion string, wslEnv bool, exists func(string) bool) Platform {
	switch goos {
	case "darwin":
		return MacOS
	case "windows":
		return Windows
	case "linux":
	default:
		return Unknown
	}

	if !wslEnv && !strings.Contains(strings.ToLower(procVersion), "microsoft") {
		return Linux
	}
	// WSL2 kernels report "microsoft-standard"; WSL1 reports "Microsoft".
	switch {
	case strings.Contains(procVersion, "microsoft-standard"):
		return WSL2
	case strings.Contains(procVersion, "Microsoft"):
		return WSL1
	case exists("/run/WSL"), exists("/dev/vsock"):
		return WSL2
	default:
		return WSL1
	}
}

// SupportsUnixSockets reports whether the host has working AF_UNIX sockets.
// WSL1 accepts the bind but drops connections under load.
func SupportsUnixSockets() bool {
	return socketsSupported(Detect())
}

func socketsSupported(p Platform) bool {
	switch p {
	case MacOS, Linux, WSL2:
		return true
	default:
		return false
	}
}

func (p Platform) String() string {
	switch p {
	case MacOS:
		return "macOS"
	case Linux:
		return "Linux"
	case WSL1:
		return "WSL1"
	case WSL2:
		return "WSL2"
	case Windows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// WatchWarning returns a non-empty message when path lives on a filesystem
// that does not deliver inotify events (9p, NFS, CIFS, sshfs).
func WatchWarning(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	return watchWarning(abs, readFile("/proc/mounts"))
}

func watchWarning(abs, mounts string) string {
	var mountPoint, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mp := fields[1]
		if !under(abs, mp) || len(mp) <= len(mountPoint) {
			continue
		}
		mountPoint, fsType = mp, fields[2]
	}

	switch {
	case fsType == "9p":
		return "config is on a 9p mount (WSL2 Windows drive): changes need a daemon restart"
	case fsType == "nfs", fsType == "nfs4":
		return "config is on NFS: live reload may miss changes"
	case fsType == "cifs", fsType == "smbfs":
		return "config is on CIFS/SMB: live reload may miss changes"
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "config is on sshfs: changes need a daemon restart"
	}
	return ""
}

func under(path, mountPoint string) bool {
	if mountPoint == "/" || path == mountPoint {
		return true
	}
	return strings.HasPrefix(path, mountPoint+"/")
}
