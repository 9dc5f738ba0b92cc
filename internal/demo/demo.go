// Package demo registers the dialogs served by confirmd: a file list whose
// delete and archive actions are guarded, and an account panel guarding
// logout.
package demo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"confirm-dialog/internal/confirm"
	"confirm-dialog/internal/http/middleware"
	"confirm-dialog/internal/render"
)

const (
	FilesDialog   = "files"
	AccountDialog = "account"
)

type File struct {
	ID       int
	Name     string
	Archived bool
}

// Inventory is the state the guarded actions change.
type Inventory struct {
	mu    sync.RWMutex
	files map[int]*File
}

func NewInventory(names ...string) *Inventory {
	inv := &Inventory{files: make(map[int]*File, len(names))}
	for i, name := range names {
		inv.files[i+1] = &File{ID: i + 1, Name: name}
	}
	return inv
}

func (inv *Inventory) List() []File {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	out := make([]File, 0, len(inv.files))
	for _, f := range inv.files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (inv *Inventory) Get(id int) (File, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	f, ok := inv.files[id]
	if !ok {
		return File{}, false
	}
	return *f, true
}

func (inv *Inventory) Delete(id int) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, ok := inv.files[id]; !ok {
		return errors.Newf("file %d not found", id)
	}
	delete(inv.files, id)
	return nil
}

func (inv *Inventory) Archive(id int) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	f, ok := inv.files[id]
	if !ok {
		return errors.Newf("file %d not found", id)
	}
	f.Archived = true
	return nil
}

type Demo struct {
	inventory *Inventory
	log       *zap.Logger
}

func New(inventory *Inventory, log *zap.Logger) *Demo {
	if log == nil {
		log = zap.NewNop()
	}
	return &Demo{inventory: inventory, log: log.Named("demo")}
}

// Register adds the demo dialogs to reg.
func (d *Demo) Register(reg *confirm.Registry) error {
	files := confirm.Definition{
		Name: FilesDialog,
		Specs: []*confirm.Spec{
			{
				Name:     "delete",
				Heading:  confirm.StaticText("Delete file"),
				Question: confirm.ComputedText(d.fileQuestion("Delete %q for good?")),
				Icon:     "trash",
				CSSClass: "danger",
				Handler:  d.deleteFile,
			},
			{
				Name:     "archive",
				Heading:  confirm.StaticText("Archive file"),
				Question: confirm.ComputedText(d.fileQuestion("Move %q to the archive?")),
				Icon:     "archive",
				Handler:  d.archiveFile,
			},
		},
	}
	account := confirm.Definition{
		Name: AccountDialog,
		Specs: []*confirm.Spec{
			{
				Name:     "logout",
				Heading:  confirm.StaticText("Log out"),
				Question: confirm.StaticText("End this session? Pending confirmations are discarded."),
				Icon:     "logout",
				Handler:  d.logout,
			},
		},
	}
	if err := reg.Register(files); err != nil {
		return err
	}
	return reg.Register(account)
}

// Triggers lists the show buttons of a dialog.
func (d *Demo) Triggers(_ context.Context, dialog string) []render.Trigger {
	switch dialog {
	case FilesDialog:
		var out []render.Trigger
		for _, f := range d.inventory.List() {
			id := strconv.Itoa(f.ID)
			out = append(out, render.Trigger{Confirmer: "delete", Label: "Delete " + f.Name, Params: map[string]string{"id": id}, UseAjax: true})
			if !f.Archived {
				out = append(out, render.Trigger{Confirmer: "archive", Label: "Archive " + f.Name, Params: map[string]string{"id": id}, UseAjax: true})
			}
		}
		return out
	case AccountDialog:
		return []render.Trigger{{Confirmer: "logout", Label: "Log out"}}
	default:
		return nil
	}
}

func (d *Demo) fileQuestion(format string) func(confirm.Params) string {
	return func(p confirm.Params) string {
		name := fmt.Sprint(p["id"])
		if id, err := fileID(p); err == nil {
			if f, ok := d.inventory.Get(id); ok {
				name = f.Name
			}
		}
		return fmt.Sprintf(format, name)
	}
}

func (d *Demo) deleteFile(_ context.Context, _ confirm.Host, p confirm.Params) error {
	id, err := fileID(p)
	if err != nil {
		return err
	}
	if err := d.inventory.Delete(id); err != nil {
		return err
	}
	d.log.Info("file deleted", zap.Int("id", id))
	return nil
}

func (d *Demo) archiveFile(_ context.Context, _ confirm.Host, p confirm.Params) error {
	id, err := fileID(p)
	if err != nil {
		return err
	}
	if err := d.inventory.Archive(id); err != nil {
		return err
	}
	d.log.Info("file archived", zap.Int("id", id))
	return nil
}

// logout ends the session; the HTTP layer sees Session.Destroyed and expires
// the cookie.
func (d *Demo) logout(ctx context.Context, _ confirm.Host, _ confirm.Params) error {
	sess, ok := middleware.SessionFrom(ctx)
	if !ok {
		return errors.New("logout outside a session")
	}
	d.log.Info("session ended", zap.String("session", sess.ID()))
	return sess.Destroy(ctx)
}

func fileID(p confirm.Params) (int, error) {
	switch v := p["id"].(type) {
	case int:
		return v, nil
	case string:
		id, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.Wrapf(err, "bad file id %q", v)
		}
		return id, nil
	default:
		return 0, errors.New("missing file id")
	}
}
