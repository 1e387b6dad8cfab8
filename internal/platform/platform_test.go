package platform

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func none(string) bool { return false }

func TestDetect_Classification(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		version string
		wslEnv  bool
		exists  func(string) bool
		want    Platform
	}{
		{"darwin", "darwin", "", false, none, MacOS},
		{"windows", "windows", "", false, none, Windows},
		{"freebsd", "freebsd", "", false, none, Unknown},
		{"native linux", "linux", "Linux version 6.8.0-generic (gcc)", false, none, Linux},
		{"wsl2 kernel", "linux", "Linux version 5.15.153.1-microsoft-standard-WSL2", false, none, WSL2},
		{"wsl1 kernel", "linux", "Linux version 4.4.0-19041-Microsoft", false, none, WSL1},
		{"wsl env with run marker", "linux", "", true, func(p string) bool { return p == "/run/WSL" }, WSL2},
		{"wsl env without markers", "linux", "", true, none, WSL1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detect(tt.goos, tt.version, tt.wslEnv, tt.exists))
		})
	}
}

func TestDetect_Cached(t *testing.T) {
	p := Detect()
	assert.NotEmpty(t, p)
	assert.Equal(t, p, Detect())
	if runtime.GOOS == "darwin" {
		assert.Equal(t, MacOS, p)
	}
}

func TestSocketsSupported(t *testing.T) {
	assert.True(t, socketsSupported(Linux))
	assert.True(t, socketsSupported(MacOS))
	assert.True(t, socketsSupported(WSL2))
	assert.False(t, socketsSupported(WSL1))
	assert.False(t, socketsSupported(Windows))
	assert.False(t, socketsSupported(Unknown))
}

func TestString(t *testing.T) {
	assert.Equal(t, "WSL2", WSL2.String())
	assert.Equal(t, "macOS", MacOS.String())
	assert.Equal(t, "Unknown", Platform("plan9").String())
}

func TestWatchWarning(t *testing.T) {
	mounts := `/dev/sda1 / ext4 rw 0 0
C:\134 /mnt/c 9p rw 0 0
server:/export /home/dev/nfs nfs4 rw 0 0
dev@host:/src /home/dev/remote fuse.sshfs rw 0 0
//nas/share /media/share cifs rw 0 0`

	assert.Empty(t, watchWarning("/home/dev/.starcmd/config.toml", mounts))
	assert.Contains(t, watchWarning("/mnt/c/Users/dev/.starcmd", mounts), "9p")
	assert.Contains(t, watchWarning("/home/dev/nfs/.starcmd", mounts), "NFS")
	assert.Contains(t, watchWarning("/home/dev/remote/cfg", mounts), "sshfs")
	assert.Contains(t, watchWarning("/media/share", mounts), "CIFS")
	assert.Empty(t, watchWarning("/home/dev/nfsish/x", mounts), "prefix without a path separator is not a match")
	assert.Empty(t, watchWarning("/anything", ""))
}
