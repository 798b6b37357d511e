package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsAreUnderProfileDir(t *testing.T) {
	dir := Dir("test")
	for _, p := range []string{LockPath("test"), DBPath("test"), LogPath("test")} {
		if !strings.HasPrefix(p, dir) {
			t.Errorf("%q not under profile dir %q", p, dir)
		}
	}
}

func TestEnsureDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(home, ".chatwithyou", "profiles", "test", "logs"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Error("log dir is not a directory")
	}
}
