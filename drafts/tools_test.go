package drafts

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ggoodman/drafts-mcp-go/internal/applescript"
	"github.com/ggoodman/drafts-mcp-go/mcp"
	"github.com/ggoodman/drafts-mcp-go/mcpservice"
)

func callTool(t *testing.T, r *fakeRunner, name, args string) *mcp.CallToolResult {
	t.Helper()
	tools := mcpservice.NewToolsContainer(Tools(NewClient(r))...)
	res, err := tools.Call(context.Background(), nil, &mcp.CallToolRequestReceived{Name: name, Arguments: json.RawMessage(args)})
	if err != nil {
		t.Fatalf("Call %s: %v", name, err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("want one content block, got %+v", res.Content)
	}
	return res
}

func TestToolNames(t *testing.T) {
	want := []string{
		"drafts_list_workspaces", "drafts_get_current_workspace", "drafts_get_current",
		"drafts_get_workspace_drafts", "drafts_get_drafts", "drafts_create_draft",
		"drafts_get_draft", "drafts_update_draft", "drafts_add_tags", "drafts_search",
		"drafts_run_action", "drafts_list_actions", "drafts_list_tags", "drafts_get_tag",
		"drafts_flag", "drafts_archive", "drafts_inbox", "drafts_trash", "drafts_open",
	}
	tools := Tools(NewClient(replyWith("", nil)))
	if len(tools) != len(want) {
		t.Fatalf("want %d tools, got %d", len(want), len(tools))
	}
	for i, tool := range tools {
		if tool.Descriptor.Name != want[i] {
			t.Fatalf("tool %d: want %s, got %s", i, want[i], tool.Descriptor.Name)
		}
		if tool.Descriptor.Description == "" {
			t.Fatalf("tool %s has no description", want[i])
		}
	}
}

func TestToolSchemas(t *testing.T) {
	byName := map[string]mcp.Tool{}
	for _, tool := range Tools(NewClient(replyWith("", nil))) {
		byName[tool.Descriptor.Name] = tool.Descriptor
	}

	wd := byName["drafts_get_workspace_drafts"].InputSchema
	if len(wd.Required) != 1 || wd.Required[0] != "workspaceName" {
		t.Fatalf("want workspaceName required, got %v", wd.Required)
	}
	if got := wd.Properties["folder"].Enum; len(got) != 3 {
		t.Fatalf("want folder enum of three values, got %v", got)
	}

	gd := byName["drafts_get_drafts"].InputSchema
	if len(gd.Required) != 0 {
		t.Fatalf("get_drafts takes only optional filters, got required %v", gd.Required)
	}
	if gd.Properties["flagged"].Type != "boolean" {
		t.Fatalf("want boolean flagged, got %+v", gd.Properties["flagged"])
	}

	ra := byName["drafts_run_action"].InputSchema
	if len(ra.Required) != 2 {
		t.Fatalf("want draftUuid and actionName required, got %v", ra.Required)
	}
}

func TestGetDraftToolNotFound(t *testing.T) {
	res := callTool(t, replyWith("NOT_FOUND:missing", nil), "drafts_get_draft", `{"uuid":"U9"}`)
	if !res.IsError || res.Content[0].Text != "Draft not found: U9" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestGetDraftToolReturnsJSON(t *testing.T) {
	res := callTool(t, replyWith(record("ID", "U1", "TITLE", "T", "FOLDER", "trash"), nil), "drafts_get_draft", `{"uuid":"U1"}`)
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	var d Draft
	if err := json.Unmarshal([]byte(res.Content[0].Text), &d); err != nil {
		t.Fatalf("decode draft: %v", err)
	}
	if d.ID != "U1" || d.Folder != FolderTrash {
		t.Fatalf("unexpected draft: %+v", d)
	}
	if !strings.Contains(res.Content[0].Text, "\n  \"id\": \"U1\"") {
		t.Fatalf("want indented JSON, got %s", res.Content[0].Text)
	}
}

func TestCurrentDraftToolWithoutDraft(t *testing.T) {
	res := callTool(t, replyWith("NOT_FOUND:none", nil), "drafts_get_current", `{}`)
	if !res.IsError || res.Content[0].Text != "No current draft" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestMutationToolMessages(t *testing.T) {
	tests := []struct {
		tool    string
		args    string
		reply   string
		want    string
		isError bool
	}{
		{"drafts_update_draft", `{"uuid":"U","content":"c"}`, "SUCCESS", "Updated draft U", false},
		{"drafts_update_draft", `{"uuid":"U","content":"c"}`, "ERROR: nope", "Failed to update draft U", true},
		{"drafts_add_tags", `{"uuid":"U","tags":["a"]}`, "SUCCESS", "Added tags to draft U", false},
		{"drafts_run_action", `{"draftUuid":"U","actionName":"Copy"}`, "SUCCESS", `Ran action "Copy" on draft U`, false},
		{"drafts_run_action", `{"draftUuid":"U","actionName":"Copy"}`, "ERROR: no action", `Failed to run action "Copy" on draft U`, true},
		{"drafts_flag", `{"uuid":"U","flagged":true}`, "SUCCESS", "Flagged draft U", false},
		{"drafts_flag", `{"uuid":"U","flagged":false}`, "SUCCESS", "Unflagged draft U", false},
		{"drafts_flag", `{"uuid":"U","flagged":false}`, "ERROR: x", "Failed to unflag draft U", true},
		{"drafts_archive", `{"uuid":"U"}`, "SUCCESS", "Archived draft U", false},
		{"drafts_inbox", `{"uuid":"U"}`, "SUCCESS", "Moved draft U to inbox", false},
		{"drafts_inbox", `{"uuid":"U"}`, "ERROR: x", "Failed to move draft U to inbox", true},
		{"drafts_trash", `{"uuid":"U"}`, "SUCCESS", "Trashed draft U", false},
		{"drafts_open", `{"uuid":"U"}`, "SUCCESS", "Opened draft U", false},
		{"drafts_create_draft", `{"content":"hi"}`, "NEW", "Created draft with UUID: NEW", false},
	}
	for _, tt := range tests {
		t.Run(tt.tool+" "+tt.reply, func(t *testing.T) {
			res := callTool(t, replyWith(tt.reply, nil), tt.tool, tt.args)
			if res.Content[0].Text != tt.want || res.IsError != tt.isError {
				t.Fatalf("want (%q, isError=%v), got (%q, isError=%v)", tt.want, tt.isError, res.Content[0].Text, res.IsError)
			}
		})
	}
}

func TestToolErrorsBecomeErrorResults(t *testing.T) {
	r := replyWith("", &applescript.ScriptError{ExitCode: 1, Stderr: "Drafts is not running"})
	res := callTool(t, r, "drafts_list_workspaces", `{}`)
	want := "Error executing drafts_list_workspaces: list workspaces: applescript execution failed: Drafts is not running"
	if !res.IsError || res.Content[0].Text != want {
		t.Fatalf("want %q, got %+v", want, res)
	}

	res = callTool(t, replyWith("", nil), "drafts_get_drafts", `{"createdAfter":"yesterday"}`)
	if !res.IsError || !strings.HasPrefix(res.Content[0].Text, "Error executing drafts_get_drafts: ") {
		t.Fatalf("want invalid date error result, got %+v", res)
	}
}

func TestToolRejectsUnknownArguments(t *testing.T) {
	res := callTool(t, replyWith("", nil), "drafts_search", `{"query":"x","limit":3}`)
	if !res.IsError {
		t.Fatalf("want error result for unknown argument, got %+v", res)
	}
}

func TestCancelledToolCallIsAnError(t *testing.T) {
	tools := mcpservice.NewToolsContainer(Tools(NewClient(replyWith("Default", nil)))...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tools.Call(ctx, nil, &mcp.CallToolRequestReceived{Name: "drafts_list_workspaces"}); err == nil {
		t.Fatalf("want error for cancelled call")
	}
}
