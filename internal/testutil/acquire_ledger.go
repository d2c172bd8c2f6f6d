package testutil

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/andrebq/portcullis/ledger"
)

type (
	TestLog interface {
		Fatal(...interface{})
		Log(...interface{})
	}
)

// AcquireLedger opens a writable ledger in a temporary directory. loader, when
// given, runs before the ledger is handed over (eg.: to provision users).
func AcquireLedger(ctx context.Context, t TestLog, name string, loader func(context.Context, *ledger.Control) error) (*ledger.Control, func()) {
	dir, err := ioutil.TempDir("", "portcullis-tests")
	if err != nil {
		t.Fatal(err)
	}
	abspath := filepath.Join(dir, name+".db")
	ctl, err := ledger.Load(ctx, abspath, true)
	if err != nil {
		t.Fatal(err)
	}
	if loader != nil {
		err = loader(ctx, ctl)
		if err != nil {
			t.Fatal(err)
		}
	}
	return ctl, func() {
		err := ctl.Close()
		if err != nil {
			t.Log("unable to close ledger", err)
		}
		err = os.RemoveAll(dir)
		if err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}

// TempPath returns a path inside a fresh temporary directory.
func TempPath(t TestLog, name string) (string, func()) {
	dir, err := ioutil.TempDir("", "portcullis-tests")
	if err != nil {
		t.Fatal(err)
	}
	return filepath.Join(dir, name), func() {
		err := os.RemoveAll(dir)
		if err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}
