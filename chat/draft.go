package chat

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// A Draft holds the attachments of a message being composed. Files appear as
// temporary attachments as soon as they are picked and are swapped for the
// uploaded descriptor, matched by file name, once the upload completes.
type Draft struct {
	mu    sync.Mutex
	files []FileAttachment
}

// AddTemp adds a temporary attachment with a client assigned id and returns
// it.
func (d *Draft) AddTemp(name, fileType string, size int64, previewURL string) FileAttachment {
	f := FileAttachment{
		ID:   uuid.NewString(),
		Name: name,
		Type: fileType,
		Size: size,
		URL:  previewURL,
		Temp: true,
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = append(d.files, f)
	return f
}

// Complete replaces the temporary attachment named like f with f. If no
// temporary attachment matches, f is appended.
func (d *Draft) Complete(f FileAttachment) {
	f.Temp = false
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.files {
		if cur.Temp && cur.Name == f.Name {
			d.files[i] = f
			return
		}
	}
	d.files = append(d.files, f)
}

// Discard removes the temporary attachment with the given name.
func (d *Draft) Discard(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = slices.DeleteFunc(d.files, func(f FileAttachment) bool {
		return f.Temp && f.Name == name
	})
}

// Files returns every attachment, temporary ones included.
func (d *Draft) Files() []FileAttachment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.files)
}

// Pending reports whether an upload has not completed yet.
func (d *Draft) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.ContainsFunc(d.files, func(f FileAttachment) bool { return f.Temp })
}

// Ready returns the uploaded attachments.
func (d *Draft) Ready() []FileAttachment {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []FileAttachment
	for _, f := range d.files {
		if !f.Temp {
			out = append(out, f)
		}
	}
	return out
}

// Clear empties the draft.
func (d *Draft) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = nil
}
