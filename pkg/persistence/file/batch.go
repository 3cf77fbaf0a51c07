package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// change is one staged step of a commit: a record waiting in tmp, or a removal when tmp is empty.
type change struct {
	target  string
	tmp     string
	prior   []byte
	existed bool
}

// batch collects the changes of one commit so they become visible together.
type batch struct {
	fp      *Persistence
	changes []*change
}

func (b *batch) write(dir, id string, record any) error {
	err := os.MkdirAll(path.Join(b.fp.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", dir, id, err)
	}

	c, err := b.snapshot(dir, id)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.target), id+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to stage %s %s: %w", dir, id, err)
	}

	c.tmp = tmp.Name()
	b.changes = append(b.changes, c)

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", dir, id, err)
	}

	return nil
}

func (b *batch) remove(dir, id string) error {
	c, err := b.snapshot(dir, id)
	if err != nil {
		return err
	}

	b.changes = append(b.changes, c)

	return nil
}

// snapshot keeps the current content of a target so apply can put it back.
func (b *batch) snapshot(dir, id string) (*change, error) {
	c := &change{target: b.fp.filePath(dir, id)}

	prior, err := os.ReadFile(c.target)
	switch {
	case err == nil:
		c.prior = prior
		c.existed = true
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read %s %s: %w", dir, id, err)
	}

	return c, nil
}

func (b *batch) apply() error {
	for i, c := range b.changes {
		var err error

		if c.tmp == "" {
			err = os.Remove(c.target)
			if os.IsNotExist(err) {
				err = nil
			}
		} else {
			err = os.Rename(c.tmp, c.target)
		}

		if err != nil {
			b.rollback(i)
			b.discard()

			return fmt.Errorf("failed to commit %s: %w", c.target, err)
		}
	}

	return nil
}

// rollback restores the first applied changes in reverse order.
func (b *batch) rollback(applied int) {
	for i := applied - 1; i >= 0; i-- {
		c := b.changes[i]
		if c.existed {
			_ = os.WriteFile(c.target, c.prior, 0600)
		} else {
			_ = os.Remove(c.target)
		}
	}
}

// discard removes staged temp files that were not renamed.
func (b *batch) discard() {
	for _, c := range b.changes {
		if c.tmp != "" {
			_ = os.Remove(c.tmp)
		}
	}
}
