package drafts

import (
	"context"
	"fmt"

	"github.com/ggoodman/drafts-mcp-go/mcpservice"
	"github.com/ggoodman/drafts-mcp-go/sessions"
)

type noArgs struct{}

type workspaceDraftsArgs struct {
	WorkspaceName string `json:"workspaceName" jsonschema:"description=The name of the workspace to get drafts from"`
	Folder        Folder `json:"folder,omitempty" jsonschema:"enum=inbox,enum=archive,enum=trash,description=Optional folder to filter drafts by"`
}

type getDraftsArgs struct {
	Query          string `json:"query,omitempty" jsonschema:"description=Filter drafts whose content contains this text"`
	Folder         Folder `json:"folder,omitempty" jsonschema:"enum=inbox,enum=archive,enum=trash,description=Filter by folder"`
	Tag            string `json:"tag,omitempty" jsonschema:"description=Filter drafts that have this tag"`
	Flagged        *bool  `json:"flagged,omitempty" jsonschema:"description=Filter by flagged status"`
	CreatedAfter   string `json:"createdAfter,omitempty" jsonschema:"description=Filter drafts created after this date (e.g. 2024-01-01)"`
	CreatedBefore  string `json:"createdBefore,omitempty" jsonschema:"description=Filter drafts created before this date (e.g. 2024-12-31)"`
	ModifiedAfter  string `json:"modifiedAfter,omitempty" jsonschema:"description=Filter drafts modified after this date (e.g. 2024-01-01)"`
	ModifiedBefore string `json:"modifiedBefore,omitempty" jsonschema:"description=Filter drafts modified before this date (e.g. 2024-12-31)"`
}

type createDraftArgs struct {
	Content string   `json:"content" jsonschema:"description=The content of the new draft"`
	Tags    []string `json:"tags,omitempty" jsonschema:"description=Optional tags to add to the draft"`
	Flagged bool     `json:"flagged,omitempty" jsonschema:"description=Whether to flag the draft"`
}

type uuidArgs struct {
	UUID string `json:"uuid" jsonschema:"description=The UUID of the draft"`
}

type updateDraftArgs struct {
	UUID    string `json:"uuid" jsonschema:"description=The UUID of the draft to update"`
	Content string `json:"content" jsonschema:"description=The new content for the draft"`
}

type addTagsArgs struct {
	UUID string   `json:"uuid" jsonschema:"description=The UUID of the draft"`
	Tags []string `json:"tags" jsonschema:"description=Tags to add to the draft"`
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"description=The search query"`
}

type runActionArgs struct {
	DraftUUID  string `json:"draftUuid" jsonschema:"description=The UUID of the draft to run the action on"`
	ActionName string `json:"actionName" jsonschema:"description=The name of the action to run"`
}

type flagArgs struct {
	UUID    string `json:"uuid" jsonschema:"description=The UUID of the draft"`
	Flagged bool   `json:"flagged" jsonschema:"description=Whether to flag (true) or unflag (false) the draft"`
}

type tagArgs struct {
	Name string `json:"name" jsonschema:"description=The tag name"`
}

// tool wraps fn so that errors become "Error executing <name>" results
// rather than protocol errors. Cancellation is still reported as an error.
func tool[A any](name, desc string, fn func(ctx context.Context, w mcpservice.ToolResponseWriter, args A) error) mcpservice.StaticTool {
	return mcpservice.NewTool[A](name, func(ctx context.Context, _ sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[A]) error {
		err := fn(ctx, w, r.Args())
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.SetError(true)
		return w.AppendText(fmt.Sprintf("Error executing %s: %s", name, err))
	}, mcpservice.WithToolDescription(desc))
}

// outcome writes the message matching ok and marks failures as errors.
func outcome(w mcpservice.ToolResponseWriter, ok bool, success, failure string) error {
	if !ok {
		w.SetError(true)
		return w.AppendText(failure)
	}
	return w.AppendText(success)
}

// Tools returns the Drafts tool set bound to c.
func Tools(c *Client) []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		tool("drafts_list_workspaces", "List all workspaces in Drafts",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, _ noArgs) error {
				ws, err := c.ListWorkspaces(ctx)
				if err != nil {
					return err
				}
				return w.AppendJSON(ws)
			}),
		tool("drafts_get_current_workspace", "Get the current workspace in Drafts",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, _ noArgs) error {
				ws, err := c.CurrentWorkspace(ctx)
				if err != nil {
					return err
				}
				return w.AppendJSON(ws)
			}),
		tool("drafts_get_current", "Get the current draft open in Drafts",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, _ noArgs) error {
				d, err := c.CurrentDraft(ctx)
				if err != nil {
					return err
				}
				if d == nil {
					w.SetError(true)
					return w.AppendText("No current draft")
				}
				return w.AppendJSON(d)
			}),
		tool("drafts_get_workspace_drafts", "Get drafts from a specific workspace, optionally filtered by folder",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a workspaceDraftsArgs) error {
				ds, err := c.WorkspaceDrafts(ctx, a.WorkspaceName, a.Folder)
				if err != nil {
					return err
				}
				return w.AppendJSON(ds)
			}),
		tool("drafts_get_drafts", "Get drafts with flexible filtering by content, folder, tag, flagged status, and dates",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a getDraftsArgs) error {
				ds, err := c.Drafts(ctx, Filter{
					Query:          a.Query,
					Folder:         a.Folder,
					Tag:            a.Tag,
					Flagged:        a.Flagged,
					CreatedAfter:   a.CreatedAfter,
					CreatedBefore:  a.CreatedBefore,
					ModifiedAfter:  a.ModifiedAfter,
					ModifiedBefore: a.ModifiedBefore,
				})
				if err != nil {
					return err
				}
				return w.AppendJSON(ds)
			}),
		tool("drafts_create_draft", "Create a new draft with content and optional tags",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a createDraftArgs) error {
				uuid, err := c.CreateDraft(ctx, a.Content, a.Tags, a.Flagged)
				if err != nil {
					return err
				}
				return w.AppendText("Created draft with UUID: " + uuid)
			}),
		tool("drafts_get_draft", "Get a specific draft by its UUID",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a uuidArgs) error {
				d, err := c.Draft(ctx, a.UUID)
				if err != nil {
					return err
				}
				if d == nil {
					w.SetError(true)
					return w.AppendText("Draft not found: " + a.UUID)
				}
				return w.AppendJSON(d)
			}),
		tool("drafts_update_draft", "Update the content of an existing draft",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a updateDraftArgs) error {
				ok, err := c.UpdateDraft(ctx, a.UUID, a.Content)
				if err != nil {
					return err
				}
				return outcome(w, ok, "Updated draft "+a.UUID, "Failed to update draft "+a.UUID)
			}),
		tool("drafts_add_tags", "Add tags to an existing draft",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a addTagsArgs) error {
				ok, err := c.AddTags(ctx, a.UUID, a.Tags)
				if err != nil {
					return err
				}
				return outcome(w, ok, "Added tags to draft "+a.UUID, "Failed to add tags to draft "+a.UUID)
			}),
		tool("drafts_search", "Search for drafts using a query string",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a searchArgs) error {
				ds, err := c.Search(ctx, a.Query)
				if err != nil {
					return err
				}
				return w.AppendJSON(ds)
			}),
		tool("drafts_run_action", "Run a Drafts action on a specific draft",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a runActionArgs) error {
				ok, err := c.RunAction(ctx, a.DraftUUID, a.ActionName)
				if err != nil {
					return err
				}
				return outcome(w, ok,
					fmt.Sprintf("Ran action %q on draft %s", a.ActionName, a.DraftUUID),
					fmt.Sprintf("Failed to run action %q on draft %s", a.ActionName, a.DraftUUID))
			}),
		tool("drafts_list_actions", "List all available actions in Drafts",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, _ noArgs) error {
				as, err := c.ListActions(ctx)
				if err != nil {
					return err
				}
				return w.AppendJSON(as)
			}),
		tool("drafts_list_tags", "List all tags in Drafts",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, _ noArgs) error {
				ts, err := c.ListTags(ctx)
				if err != nil {
					return err
				}
				return w.AppendJSON(ts)
			}),
		tool("drafts_get_tag", "Get a tag together with the drafts that carry it",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a tagArgs) error {
				t, err := c.Tag(ctx, a.Name)
				if err != nil {
					return err
				}
				return w.AppendJSON(t)
			}),
		tool("drafts_flag", "Flag or unflag a draft",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a flagArgs) error {
				ok, err := c.SetFlagged(ctx, a.UUID, a.Flagged)
				if err != nil {
					return err
				}
				if a.Flagged {
					return outcome(w, ok, "Flagged draft "+a.UUID, "Failed to flag draft "+a.UUID)
				}
				return outcome(w, ok, "Unflagged draft "+a.UUID, "Failed to unflag draft "+a.UUID)
			}),
		tool("drafts_archive", "Archive a draft",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a uuidArgs) error {
				ok, err := c.Archive(ctx, a.UUID)
				if err != nil {
					return err
				}
				return outcome(w, ok, "Archived draft "+a.UUID, "Failed to archive draft "+a.UUID)
			}),
		tool("drafts_inbox", "Move a draft to inbox",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a uuidArgs) error {
				ok, err := c.Inbox(ctx, a.UUID)
				if err != nil {
					return err
				}
				return outcome(w, ok, "Moved draft "+a.UUID+" to inbox", "Failed to move draft "+a.UUID+" to inbox")
			}),
		tool("drafts_trash", "Move a draft to trash",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a uuidArgs) error {
				ok, err := c.Trash(ctx, a.UUID)
				if err != nil {
					return err
				}
				return outcome(w, ok, "Trashed draft "+a.UUID, "Failed to trash draft "+a.UUID)
			}),
		tool("drafts_open", "Open a draft in the Drafts editor",
			func(ctx context.Context, w mcpservice.ToolResponseWriter, a uuidArgs) error {
				ok, err := c.Open(ctx, a.UUID)
				if err != nil {
					return err
				}
				return outcome(w, ok, "Opened draft "+a.UUID, "Failed to open draft "+a.UUID)
			}),
	}
}
