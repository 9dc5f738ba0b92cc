// Package tools exposes confirmd administration over MCP.
package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"confirm-dialog/internal/audit"
	"confirm-dialog/internal/confirm"
	"confirm-dialog/internal/policy"
	"confirm-dialog/internal/session"
)

type Registry struct {
	dialogs     *confirm.Registry
	sessions    *session.Manager
	observer    confirm.Observer
	confirm     *policy.ConfirmPolicy
	idempotency *policy.IdempotencyStore
	audit       *audit.Logger
	log         *zap.Logger
}

type Options struct {
	Dialogs     *confirm.Registry
	Sessions    *session.Manager
	Observer    confirm.Observer
	Confirm     *policy.ConfirmPolicy
	Idempotency *policy.IdempotencyStore
	Audit       *audit.Logger
	Logger      *zap.Logger
}

func NewRegistry(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		dialogs:     opts.Dialogs,
		sessions:    opts.Sessions,
		observer:    opts.Observer,
		confirm:     opts.Confirm,
		idempotency: opts.Idempotency,
		audit:       opts.Audit,
		log:         log.Named("mcp"),
	}
}

func (r *Registry) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "dialog.list",
		Description: "List registered dialogs and their confirmers",
	}, r.dialogList)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pending.cancel",
		Description: "Cancel a pending confirmation in a user session (requires confirm_token). Never runs the guarded action.",
	}, r.pendingCancel)
}

type DialogListInput struct{}

type ConfirmerInfo struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Icon       string `json:"icon,omitempty"`
	Template   string `json:"template,omitempty"`
}

type DialogInfo struct {
	Name       string          `json:"name"`
	Template   string          `json:"template,omitempty"`
	Confirmers []ConfirmerInfo `json:"confirmers"`
}

type DialogListOutput struct {
	Dialogs []DialogInfo `json:"dialogs" jsonschema:"Registered dialogs"`
	Count   int          `json:"count" jsonschema:"Number of dialogs"`
}

type PendingCancelInput struct {
	SessionID      string `json:"session_id" jsonschema:"Session id as carried by the session cookie"`
	Dialog         string `json:"dialog" jsonschema:"Dialog name"`
	Confirmer      string `json:"confirmer" jsonschema:"Confirmer name inside the dialog"`
	Token          string `json:"token" jsonschema:"Pending confirmation token"`
	ConfirmToken   string `json:"confirm_token" jsonschema:"Confirm token required for dangerous operations"`
	IdempotencyKey string `json:"idempotency_key" jsonschema:"Idempotency key for replay protection"`
}

type PendingCancelOutput struct {
	SessionID string `json:"session_id"`
	Dialog    string `json:"dialog"`
	Confirmer string `json:"confirmer"`
	Outcome   string `json:"outcome"`
	Replayed  bool   `json:"replayed"`
}

func (r *Registry) dialogList(_ context.Context, _ *mcp.CallToolRequest, _ DialogListInput) (result *mcp.CallToolResult, out DialogListOutput, err error) {
	startedAt := time.Now()
	defer func() { r.audit.LogToolCall("dialog.list", startedAt, err) }()

	for _, def := range r.dialogs.Definitions() {
		info := DialogInfo{Name: def.Name, Template: def.TemplateFile, Confirmers: []ConfirmerInfo{}}
		for _, spec := range def.Specs {
			info.Confirmers = append(info.Confirmers, ConfirmerInfo{
				Name:       spec.Name,
				Configured: spec.IsConfigured(),
				Icon:       spec.Icon,
				Template:   spec.TemplateFile,
			})
		}
		out.Dialogs = append(out.Dialogs, info)
	}
	if out.Dialogs == nil {
		out.Dialogs = []DialogInfo{}
	}
	out.Count = len(out.Dialogs)
	return textResult(out), out, nil
}

func (r *Registry) pendingCancel(ctx context.Context, _ *mcp.CallToolRequest, in PendingCancelInput) (result *mcp.CallToolResult, out PendingCancelOutput, err error) {
	startedAt := time.Now()
	defer func() { r.audit.LogToolCall("pending.cancel", startedAt, err) }()

	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return nil, PendingCancelOutput{}, errors.New("session_id is required")
	case strings.TrimSpace(in.Dialog) == "":
		return nil, PendingCancelOutput{}, errors.New("dialog is required")
	case strings.TrimSpace(in.Confirmer) == "":
		return nil, PendingCancelOutput{}, errors.New("confirmer is required")
	case strings.TrimSpace(in.IdempotencyKey) == "":
		return nil, PendingCancelOutput{}, errors.New("idempotency_key is required")
	}
	if err := r.confirm.RequireDangerous(in.ConfirmToken); err != nil {
		return nil, PendingCancelOutput{}, err
	}

	fingerprint := cancelFingerprint(in)
	if data, replay, conflict := r.idempotency.Lookup("pending.cancel", in.IdempotencyKey, fingerprint); conflict {
		return nil, PendingCancelOutput{}, errors.New("idempotency_key conflict: request payload mismatch")
	} else if replay {
		var replayOut PendingCancelOutput
		if err := json.Unmarshal(data, &replayOut); err != nil {
			return nil, PendingCancelOutput{}, errors.Wrap(err, "decode idempotent replay response")
		}
		replayOut.Replayed = true
		return textResult(replayOut), replayOut, nil
	}

	sess, ok := r.sessions.Open(in.SessionID)
	if !ok {
		return nil, PendingCancelOutput{}, errors.New("session_id is not a valid session id")
	}
	d, err := r.dialogs.Open(in.Dialog, sess, confirm.DialogOptions{Observer: r.observer, Logger: r.log})
	if err != nil {
		return nil, PendingCancelOutput{}, err
	}
	outcome, err := d.Cancel(ctx, in.Confirmer, in.Token)
	if err != nil {
		return nil, PendingCancelOutput{}, err
	}

	out = PendingCancelOutput{
		SessionID: sess.ID(),
		Dialog:    d.Name(),
		Confirmer: in.Confirmer,
		Outcome:   string(outcome),
	}
	_ = r.idempotency.Save("pending.cancel", in.IdempotencyKey, fingerprint, out)
	return textResult(out), out, nil
}

func cancelFingerprint(in PendingCancelInput) string {
	raw := fmt.Sprintf("%s|%s|%s|%s", strings.TrimSpace(in.SessionID), in.Dialog, in.Confirmer, in.Token)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func textResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "{}"}}}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}
