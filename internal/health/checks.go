package health

import (
	"context"
	"fmt"
	"os"
)

// WritableStore is implemented by stores that can probe their directory,
// such as journal.FileStore.
type WritableStore interface {
	Writable(ctx context.Context) error
}

// CountingStore is implemented by stores that can report their size, such as
// vectorstore.Store and vectorindex.Index.
type CountingStore interface {
	Count(ctx context.Context) (int, error)
}

// Writable returns a Checker that passes when s can create files.
func Writable(name string, s WritableStore) Checker {
	return Checker{Name: name, Check: s.Writable}
}

// Reachable returns a Checker that passes when s answers a Count query.
func Reachable(name string, s CountingStore) Checker {
	return Checker{Name: name, Check: func(ctx context.Context) error {
		_, err := s.Count(ctx)
		return err
	}}
}

// Directory returns a Checker that passes when dir exists and is a
// directory.
func Directory(name, dir string) Checker {
	return Checker{Name: name, Check: func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}}
}
