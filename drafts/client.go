package drafts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/drafts-mcp-go/internal/applescript"
	"github.com/ggoodman/drafts-mcp-go/storage"
)

// Cache namespaces for the catalog lookups.
const (
	NamespaceWorkspaces = "workspaces"
	NamespaceActions    = "actions"
	NamespaceTags       = "tags"

	catalogKey = "all"
)

// ErrEmptyArgument is returned when a required identifier is blank.
var ErrEmptyArgument = errors.New("empty argument")

// Client runs Drafts operations through an AppleScript runner.
type Client struct {
	run   applescript.Runner
	store storage.Storage
	ttl   time.Duration
	log   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCache reads catalog lookups through s, keeping entries for ttl. A
// nil store or a non-positive ttl disables caching.
func WithCache(s storage.Storage, ttl time.Duration) ClientOption {
	return func(c *Client) {
		if s == nil || ttl <= 0 {
			c.store, c.ttl = nil, 0
			return
		}
		c.store, c.ttl = s, ttl
	}
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient returns a Client using r for every script.
func NewClient(r applescript.Runner, opts ...ClientOption) *Client {
	c := &Client{run: r, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Runner returns the runner the client executes scripts with.
func (c *Client) Runner() applescript.Runner { return c.run }

func (c *Client) catalog(ctx context.Context, ns string, load func(ctx context.Context) ([]string, error)) ([]string, error) {
	if c.store == nil {
		return load(ctx)
	}
	return storage.GetOrLoad(ctx, c.store, ns, catalogKey, c.ttl, load)
}

func (c *Client) invalidate(ctx context.Context, ns string) {
	if c.store == nil {
		return
	}
	if err := c.store.Purge(ctx, ns); err != nil {
		c.log.WarnContext(ctx, "drafts.cache.invalidate.fail", slog.String("namespace", ns), slog.String("err", err.Error()))
	}
}

func (c *Client) names(script string) func(ctx context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		out, err := c.run.Run(ctx, script)
		if err != nil {
			return nil, err
		}
		return applescript.ParseList(out), nil
	}
}

// ListWorkspaces returns every workspace.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	names, err := c.catalog(ctx, NamespaceWorkspaces, c.names(nameListScript("workspaces")))
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	out := make([]Workspace, len(names))
	for i, n := range names {
		out[i] = Workspace{Name: n}
	}
	return out, nil
}

// CurrentWorkspace returns the workspace selected in the app.
func (c *Client) CurrentWorkspace(ctx context.Context) (Workspace, error) {
	out, err := c.run.Run(ctx, `
tell application "Drafts"
	return name of current workspace
end tell
`)
	if err != nil {
		return Workspace{}, fmt.Errorf("current workspace: %w", err)
	}
	return Workspace{Name: out}, nil
}

// CurrentDraft returns the draft open in the editor, or nil when there is
// none.
func (c *Client) CurrentDraft(ctx context.Context) (*Draft, error) {
	return c.single(ctx, "current draft", "current draft")
}

// Draft returns the draft with the given UUID, or nil when it does not exist.
func (c *Client) Draft(ctx context.Context, uuid string) (*Draft, error) {
	if strings.TrimSpace(uuid) == "" {
		return nil, fmt.Errorf("get draft: %w: uuid", ErrEmptyArgument)
	}
	return c.single(ctx, "get draft", "draft id "+applescript.Quote(uuid))
}

func (c *Client) single(ctx context.Context, op, selector string) (*Draft, error) {
	out, err := c.run.Run(ctx, singleDraftScript(selector))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if strings.HasPrefix(out, notFound) {
		c.log.DebugContext(ctx, "drafts.draft.not_found", slog.String("op", op), slog.String("reason", strings.TrimPrefix(out, notFound)))
		return nil, nil
	}
	d := parseDraft(out)
	return &d, nil
}

func (c *Client) list(ctx context.Context, op, script string) ([]Draft, error) {
	out, err := c.run.Run(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return parseDraftList(out), nil
}

// WorkspaceDrafts returns the drafts of a workspace, optionally restricted
// to one folder.
func (c *Client) WorkspaceDrafts(ctx context.Context, workspace string, folder Folder) ([]Draft, error) {
	if strings.TrimSpace(workspace) == "" {
		return nil, fmt.Errorf("workspace drafts: %w: workspace name", ErrEmptyArgument)
	}
	if folder != "" && !folder.Valid() {
		return nil, fmt.Errorf("workspace drafts: %w: %q", ErrInvalidFolder, folder)
	}
	setup := "set targetWorkspace to workspace " + applescript.Quote(workspace)
	list := "every draft of targetWorkspace"
	if folder != "" {
		list += " whose folder is " + string(folder)
	}
	return c.list(ctx, "workspace drafts", draftListScript(setup, list))
}

// Drafts returns every draft matching f.
func (c *Client) Drafts(ctx context.Context, f Filter) ([]Draft, error) {
	script, err := filterScript(f)
	if err != nil {
		return nil, fmt.Errorf("get drafts: %w", err)
	}
	return c.list(ctx, "get drafts", script)
}

// Search returns the drafts whose content contains query.
func (c *Client) Search(ctx context.Context, query string) ([]Draft, error) {
	return c.list(ctx, "search", draftListScript("", "every draft whose content contains "+applescript.Quote(query)))
}

// CreateDraft creates a draft and returns its UUID.
func (c *Client) CreateDraft(ctx context.Context, content string, tags []string, flagged bool) (string, error) {
	var b strings.Builder
	b.WriteString("\ntell application \"Drafts\"\n")
	fmt.Fprintf(&b, "\tset newDraft to make new draft with properties {content:%s}\n", applescript.Quote(content))
	if len(tags) > 0 {
		fmt.Fprintf(&b, "\tset tag list of newDraft to %s\n", applescript.QuoteList(tags))
	}
	if flagged {
		b.WriteString("\tset flagged of newDraft to true\n")
	}
	b.WriteString("\treturn id of newDraft\nend tell\n")

	uuid, err := c.run.Run(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	if len(tags) > 0 {
		c.invalidate(ctx, NamespaceTags)
	}
	return uuid, nil
}

// mutate runs a mutation script. A script-level refusal ("ERROR: ...")
// reports false without an error; execution failures are errors.
func (c *Client) mutate(ctx context.Context, op, uuid, body string) (bool, error) {
	if strings.TrimSpace(uuid) == "" {
		return false, fmt.Errorf("%s: %w: uuid", op, ErrEmptyArgument)
	}
	out, err := c.run.Run(ctx, mutationScript(uuid, body))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if out == okResult {
		return true, nil
	}
	c.log.InfoContext(ctx, "drafts.mutation.refused",
		slog.String("op", op),
		slog.String("uuid", uuid),
		slog.String("reason", strings.TrimPrefix(out, errorPrefix)))
	return false, nil
}

// UpdateDraft replaces the content of a draft.
func (c *Client) UpdateDraft(ctx context.Context, uuid, content string) (bool, error) {
	return c.mutate(ctx, "update draft", uuid, "set content of targetDraft to "+applescript.Quote(content))
}

// AddTags appends tags to a draft's existing tag list.
func (c *Client) AddTags(ctx context.Context, uuid string, tags []string) (bool, error) {
	ok, err := c.mutate(ctx, "add tags", uuid, `set currentTags to tag list of targetDraft
		set tag list of targetDraft to currentTags & `+applescript.QuoteList(tags))
	if ok {
		c.invalidate(ctx, NamespaceTags)
	}
	return ok, err
}

// RunAction performs the named action on a draft.
func (c *Client) RunAction(ctx context.Context, uuid, action string) (bool, error) {
	if strings.TrimSpace(action) == "" {
		return false, fmt.Errorf("run action: %w: action name", ErrEmptyArgument)
	}
	return c.mutate(ctx, "run action", uuid, `set targetAction to action `+applescript.Quote(action)+`
		perform action targetAction on draft targetDraft`)
}

// SetFlagged flags or unflags a draft.
func (c *Client) SetFlagged(ctx context.Context, uuid string, flagged bool) (bool, error) {
	return c.mutate(ctx, "flag draft", uuid, fmt.Sprintf("set flagged of targetDraft to %t", flagged))
}

// Archive moves a draft to the archive.
func (c *Client) Archive(ctx context.Context, uuid string) (bool, error) {
	return c.moveTo(ctx, uuid, FolderArchive)
}

// Inbox moves a draft to the inbox.
func (c *Client) Inbox(ctx context.Context, uuid string) (bool, error) {
	return c.moveTo(ctx, uuid, FolderInbox)
}

// Trash moves a draft to the trash.
func (c *Client) Trash(ctx context.Context, uuid string) (bool, error) {
	return c.moveTo(ctx, uuid, FolderTrash)
}

func (c *Client) moveTo(ctx context.Context, uuid string, f Folder) (bool, error) {
	return c.mutate(ctx, "move to "+string(f), uuid, "set folder of targetDraft to "+string(f))
}

// Open brings Drafts to the front and opens the draft in the editor.
func (c *Client) Open(ctx context.Context, uuid string) (bool, error) {
	return c.mutate(ctx, "open draft", uuid, `activate
		open targetDraft`)
}

// ListActions returns every installed action.
func (c *Client) ListActions(ctx context.Context) ([]Action, error) {
	names, err := c.catalog(ctx, NamespaceActions, c.names(nameListScript("actions")))
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	out := make([]Action, len(names))
	for i, n := range names {
		out[i] = Action{Name: n}
	}
	return out, nil
}

// ListTags returns every tag known to Drafts.
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	names, err := c.catalog(ctx, NamespaceTags, c.names(nameListScript("tags")))
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	out := make([]Tag, len(names))
	for i, n := range names {
		out[i] = Tag{Name: n}
	}
	return out, nil
}

// Tag returns a tag together with its drafts.
func (c *Client) Tag(ctx context.Context, name string) (Tag, error) {
	if strings.TrimSpace(name) == "" {
		return Tag{}, fmt.Errorf("get tag: %w: tag name", ErrEmptyArgument)
	}
	drafts, err := c.list(ctx, "get tag", draftListScript("set t to tag "+applescript.Quote(name), "drafts of t"))
	if err != nil {
		return Tag{}, err
	}
	return Tag{Name: name, Drafts: drafts}, nil
}
