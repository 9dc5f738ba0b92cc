package tools

import (
	"context"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confirm-dialog/internal/audit"
	"confirm-dialog/internal/confirm"
	"confirm-dialog/internal/policy"
	"confirm-dialog/internal/session"
)

type fixture struct {
	reg      *Registry
	sessions *session.Manager
	dialogs  *confirm.Registry
	calls    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.dialogs = confirm.NewRegistry()
	require.NoError(t, f.dialogs.Register(confirm.Definition{
		Name: "files",
		Specs: []*confirm.Spec{{
			Name:     "delete",
			Heading:  confirm.StaticText("Delete"),
			Question: confirm.StaticText("Delete it?"),
			Icon:     "trash",
			Handler: func(context.Context, confirm.Host, confirm.Params) error {
				f.calls++
				return nil
			},
		}},
	}))
	f.sessions = session.NewManager(session.NewMemoryBackend(time.Minute), session.Options{})
	f.reg = NewRegistry(Options{
		Dialogs:     f.dialogs,
		Sessions:    f.sessions,
		Confirm:     policy.NewConfirmPolicy("secret"),
		Idempotency: policy.NewIdempotencyStore(time.Minute),
		Audit:       audit.NewLogger(false, nil),
	})
	return f
}

// showPending shows the delete prompt in a fresh session and returns the
// session id and token.
func (f *fixture) showPending(t *testing.T) (string, string) {
	t.Helper()
	sess, ok := f.sessions.Open("6f1c5d1e-8f0a-4a8e-9a43-0d7b1f7f2c11")
	require.True(t, ok)
	d, err := f.dialogs.Open("files", sess, confirm.DialogOptions{})
	require.NoError(t, err)
	tok, err := d.Show(context.Background(), "delete", confirm.Params{"id": 1})
	require.NoError(t, err)
	return sess.ID(), tok
}

func TestDialogList(t *testing.T) {
	f := newFixture(t)
	_, out, err := f.reg.dialogList(context.Background(), nil, DialogListInput{})
	require.NoError(t, err)

	require.Equal(t, 1, out.Count)
	assert.Equal(t, "files", out.Dialogs[0].Name)
	assert.Equal(t, []ConfirmerInfo{{Name: "delete", Configured: true, Icon: "trash"}}, out.Dialogs[0].Confirmers)
}

func TestPendingCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sid, tok := f.showPending(t)

	in := PendingCancelInput{
		SessionID:      sid,
		Dialog:         "files",
		Confirmer:      "delete",
		Token:          tok,
		ConfirmToken:   "secret",
		IdempotencyKey: "k1",
	}
	_, out, err := f.reg.pendingCancel(ctx, nil, in)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", out.Outcome)
	assert.False(t, out.Replayed)
	assert.Zero(t, f.calls)

	sess, _ := f.sessions.Open(sid)
	_, err = confirm.NewStore(sess).Get(ctx, tok)
	assert.ErrorIs(t, err, confirm.ErrInvalidState)

	_, out, err = f.reg.pendingCancel(ctx, nil, in)
	require.NoError(t, err)
	assert.True(t, out.Replayed)

	in.Token = "other"
	_, _, err = f.reg.pendingCancel(ctx, nil, in)
	assert.ErrorContains(t, err, "idempotency_key conflict")
}

func TestPendingCancelRequiresConfirmToken(t *testing.T) {
	f := newFixture(t)
	sid, tok := f.showPending(t)

	_, _, err := f.reg.pendingCancel(context.Background(), nil, PendingCancelInput{
		SessionID: sid, Dialog: "files", Confirmer: "delete", Token: tok,
		ConfirmToken: "wrong", IdempotencyKey: "k1",
	})
	assert.ErrorIs(t, err, policy.ErrBadConfirmToken)

	sess, _ := f.sessions.Open(sid)
	_, err = confirm.NewStore(sess).Get(context.Background(), tok)
	assert.NoError(t, err)
}

func TestPendingCancelValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := PendingCancelInput{
		SessionID: "6f1c5d1e-8f0a-4a8e-9a43-0d7b1f7f2c11", Dialog: "files", Confirmer: "delete",
		Token: "t", ConfirmToken: "secret", IdempotencyKey: "k",
	}

	for name, mutate := range map[string]func(*PendingCancelInput){
		"session":     func(in *PendingCancelInput) { in.SessionID = "" },
		"dialog":      func(in *PendingCancelInput) { in.Dialog = "" },
		"confirmer":   func(in *PendingCancelInput) { in.Confirmer = "" },
		"idempotency": func(in *PendingCancelInput) { in.IdempotencyKey = "" },
	} {
		in := base
		mutate(&in)
		_, _, err := f.reg.pendingCancel(ctx, nil, in)
		assert.Error(t, err, name)
	}

	in := base
	in.SessionID = "not-a-uuid"
	_, _, err := f.reg.pendingCancel(ctx, nil, in)
	assert.Error(t, err)

	in = base
	in.Dialog = "nope"
	in.IdempotencyKey = "k2"
	_, _, err = f.reg.pendingCancel(ctx, nil, in)
	assert.ErrorIs(t, err, confirm.ErrConfiguration)
}

func TestToolsAreListedOverMCP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	server := mcp.NewServer(&mcp.Implementation{Name: "confirmd-test", Version: "0.0.1"}, nil)
	f.reg.Register(server)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"dialog.list", "pending.cancel"}, names)
}
