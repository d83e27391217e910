// Package mcp exposes the memory service as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdlog "log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/service/memory"
	"github.com/sandevgo/mnemo/pkg/log"
)

const instructions = `mnemo keeps durable project memory across sessions.
Call recall before answering questions about this codebase.
Call store when the user makes a decision, corrects you, states a convention or a fix lands.`

// Server adapts memory.Service to MCP. It holds the session of the
// connected assistant and flushes it on shutdown.
type Server struct {
	svc     *memory.Service
	mcp     *server.MCPServer
	in      io.Reader
	out     io.Writer
	session *memory.Session
}

func NewServer(svc *memory.Service, in io.Reader, out io.Writer) *Server {
	s := &Server{
		svc:     svc,
		in:      in,
		out:     out,
		session: svc.BeginSession(),
	}
	s.mcp = server.NewMCPServer(
		core.MnemoName,
		core.MnemoVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	s.mcp.AddTool(recallTool(), s.HandleRecall)
	s.mcp.AddTool(storeTool(), s.HandleStore)
	s.mcp.AddTool(updateTool(), s.HandleUpdate)
	s.mcp.AddTool(deactivateTool(), s.HandleDeactivate)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	ctx = log.WithComponent(ctx, "mcp")
	log.FromCtx(ctx).Info().Str("session", s.session.ID).Msg("serving MCP over stdio")

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(stdlog.New(io.Discard, "", 0))
	if err := stdio.Listen(ctx, s.in, s.out); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

// Shutdown flushes the assistant session into a conversation memory.
func (s *Server) Shutdown(ctx context.Context) error {
	res, err := s.svc.EndSession(ctx, s.session)
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return nil
		}
		return err
	}
	if res.Unit != nil {
		log.FromCtx(ctx).Info().Str("id", res.Unit.ID).Msg("session summary stored")
	}
	return nil
}

func recallTool() mcp.Tool {
	return mcp.NewTool("recall",
		mcp.WithDescription("Retrieve the project memories most relevant to a query, ranked."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What you need to know")),
		mcp.WithString("currentFile", mcp.Description("File being edited, boosts memories about it")),
		mcp.WithString("task", mcp.Description("debugging, coding, reviewing, exploring or chatting"),
			mcp.Enum(string(memory.TaskDebugging), string(memory.TaskCoding), string(memory.TaskReviewing),
				string(memory.TaskExploring), string(memory.TaskChatting))),
		mcp.WithArray("types", mcp.WithStringItems(), mcp.Description("Restrict to these memory types")),
		mcp.WithNumber("minImportance", mcp.Description("Drop memories below this importance (0-1)")),
		mcp.WithNumber("limit", mcp.Description("Maximum results, default 10")),
	)
}

func storeTool() mcp.Tool {
	types := make([]string, 0)
	for _, t := range core.AllMemoryTypes() {
		types = append(types, t.String())
	}
	return mcp.NewTool("store",
		mcp.WithDescription("Remember a decision, correction, convention, bug fix or insight about this project."),
		mcp.WithString("type", mcp.Required(), mcp.Enum(types...)),
		mcp.WithString("intent", mcp.Required(), mcp.Description("One sentence claim, 15-500 characters")),
		mcp.WithString("action", mcp.Description("What was done")),
		mcp.WithString("reason", mcp.Description("Why")),
		mcp.WithString("impact", mcp.Description("Consequences")),
		mcp.WithArray("relatedFiles", mcp.WithStringItems(), mcp.Description("Paths or globs")),
		mcp.WithArray("tags", mcp.WithStringItems()),
		mcp.WithNumber("importance", mcp.Description("0-1, default 0.5")),
		mcp.WithNumber("confidence", mcp.Description("0-1, default 0.5")),
	)
}

func updateTool() mcp.Tool {
	return mcp.NewTool("update",
		mcp.WithDescription("Change fields of an existing memory. Omitted fields keep their values."),
		mcp.WithString("id", mcp.Required()),
		mcp.WithString("intent"),
		mcp.WithString("action"),
		mcp.WithString("reason"),
		mcp.WithString("outcome", mcp.Description("e.g. worked, failed")),
		mcp.WithArray("tags", mcp.WithStringItems()),
		mcp.WithNumber("importance"),
		mcp.WithNumber("confidence"),
	)
}

func deactivateTool() mcp.Tool {
	return mcp.NewTool("deactivate",
		mcp.WithDescription("Retire a memory that is no longer true. It is kept for audit."),
		mcp.WithString("id", mcp.Required()),
		mcp.WithString("supersededBy", mcp.Description("Id of the memory replacing it")),
	)
}

type recallItem struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Intent      string   `json:"intent"`
	Action      string   `json:"action,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Files       []string `json:"relatedFiles,omitempty"`
	Score       float64  `json:"score"`
	MatchMethod string   `json:"matchMethod"`
}

func (s *Server) HandleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	q := memory.RecallQuery{
		Query:         query,
		CurrentFile:   req.GetString("currentFile", ""),
		MinImportance: req.GetFloat("minImportance", 0),
		Limit:         req.GetInt("limit", 0),
	}
	if task, ok := memory.ParseTaskContext(req.GetString("task", "")); ok {
		q.Task = task
	}
	for _, name := range req.GetStringSlice("types", nil) {
		t, err := core.ParseMemoryType(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		q.Types = append(q.Types, t)
	}

	s.session.Feed(memory.NoteTopic, query)
	if q.CurrentFile != "" {
		s.session.Feed(memory.NoteFile, q.CurrentFile)
	}

	results, err := s.svc.Recall(ctx, q)
	if err != nil {
		return toolError(err)
	}

	items := make([]recallItem, 0, len(results))
	for _, r := range results {
		items = append(items, recallItem{
			ID:          r.Unit.ID,
			Type:        r.Unit.Type.String(),
			Intent:      r.Unit.Intent,
			Action:      r.Unit.Action,
			Reason:      r.Unit.Reason,
			Files:       r.Unit.RelatedFiles,
			Score:       round(r.Score),
			MatchMethod: r.MatchMethod,
		})
	}
	return jsonResult(map[string]any{"memories": items})
}

func (s *Server) HandleStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := memory.StoreParams{
		Type:         req.GetString("type", ""),
		Intent:       req.GetString("intent", ""),
		Action:       req.GetString("action", ""),
		Reason:       req.GetString("reason", ""),
		Impact:       req.GetString("impact", ""),
		RelatedFiles: req.GetStringSlice("relatedFiles", nil),
		Tags:         req.GetStringSlice("tags", nil),
		Importance:   optionalFloat(req, "importance"),
		Confidence:   optionalFloat(req, "confidence"),
	}

	res, err := s.svc.Store(ctx, p)
	if err != nil {
		return toolError(err)
	}
	if res.Rejected() {
		return jsonResult(map[string]any{"stored": false, "rejection": res.Rejection})
	}

	s.feedStored(res.Unit)
	out := map[string]any{
		"stored":  true,
		"id":      res.Unit.ID,
		"created": res.Created,
	}
	if len(res.Contradicted) > 0 {
		out["contradicted"] = res.Contradicted
	}
	return jsonResult(out)
}

func (s *Server) feedStored(u *core.MemoryUnit) {
	switch u.Type {
	case core.TypeDecision, core.TypeConvention:
		s.session.Feed(memory.NoteDecision, u.Intent)
	case core.TypeFailedSuggestion:
		s.session.Feed(memory.NoteFailedAttempt, u.Intent)
	case core.TypeCorrection, core.TypeBugFix:
		s.session.Feed(memory.NoteGotcha, u.Intent)
	}
	for _, f := range u.RelatedFiles {
		s.session.Feed(memory.NoteFile, f)
	}
}

func (s *Server) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var patch core.UnitPatch
	args := req.GetArguments()
	for key, dst := range map[string]**string{
		"intent":  &patch.Intent,
		"action":  &patch.Action,
		"reason":  &patch.Reason,
		"outcome": &patch.Outcome,
	} {
		if _, ok := args[key]; ok {
			v := req.GetString(key, "")
			*dst = &v
		}
	}
	if _, ok := args["tags"]; ok {
		tags := req.GetStringSlice("tags", nil)
		patch.Tags = &tags
	}
	patch.Importance = optionalFloat(req, "importance")
	patch.Confidence = optionalFloat(req, "confidence")
	if patch.Empty() {
		return mcp.NewToolResultError("nothing to update"), nil
	}

	unit, res, err := s.svc.Update(ctx, id, patch)
	if err != nil {
		return toolError(err)
	}
	if res.Rejected() {
		return jsonResult(map[string]any{"updated": false, "rejection": res.Rejection})
	}
	if unit == nil {
		return mcp.NewToolResultError(fmt.Sprintf("memory %s not found", id)), nil
	}
	return jsonResult(map[string]any{"updated": true, "id": unit.ID})
}

func (s *Server) HandleDeactivate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Deactivate(ctx, id, req.GetString("supersededBy", "")); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{"deactivated": true, "id": id})
}

// toolError reports caller mistakes as tool errors and keeps protocol
// errors for storage failures.
func toolError(err error) (*mcp.CallToolResult, error) {
	var ve *core.ValidationError
	if errors.As(err, &ve) || errors.Is(err, core.ErrUnitNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

func optionalFloat(req mcp.CallToolRequest, key string) *float64 {
	if _, ok := req.GetArguments()[key]; !ok {
		return nil
	}
	v := req.GetFloat(key, 0)
	return &v
}

func round(v float64) float64 {
	return float64(int64(v*1e4+0.5)) / 1e4
}
