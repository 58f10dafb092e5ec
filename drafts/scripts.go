package drafts

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/drafts-mcp-go/internal/applescript"
)

// Markers shared between the generated scripts and the parser.
const (
	fieldSep    = "<<SEP>>"
	recordEnd   = "<<END>>"
	notFound    = "NOT_FOUND:"
	okResult    = "SUCCESS"
	errorPrefix = "ERROR: "
)

// isoDateHandler formats an AppleScript date as ISO-8601 without going
// through the locale-dependent "as string" coercion.
const isoDateHandler = `
on formatDateToISO(theDate)
	set y to year of theDate
	set m to month of theDate as integer
	set d to day of theDate
	set h to hours of theDate
	set min to minutes of theDate
	set s to seconds of theDate
	set mStr to text -2 thru -1 of ("0" & m)
	set dStr to text -2 thru -1 of ("0" & d)
	set hStr to text -2 thru -1 of ("0" & h)
	set minStr to text -2 thru -1 of ("0" & min)
	set sStr to text -2 thru -1 of ("0" & s)
	return (y as string) & "-" & mStr & "-" & dStr & "T" & hStr & ":" & minStr & ":" & sStr & "Z"
end formatDateToISO
`

// draftFields maps record keys to the AppleScript expression producing them
// for the variable theDraft. Order is the order of the emitted record.
var draftFields = []struct{ key, expr string }{
	{"ID", "id of theDraft"},
	{"TITLE", "title of theDraft"},
	{"CONTENT", "content of theDraft"},
	{"FLAGGED", "flagged of theDraft"},
	{"FOLDER", "folder of theDraft"},
	{"TAGS", "((tag list of theDraft) as string)"},
	{"TAG_NAMES", "tag names of theDraft"},
	{"QUERY_TAG_NAMES", "query tag names of theDraft"},
	{"CREATED", "my formatDateToISO(creation date of theDraft)"},
	{"MODIFIED", "my formatDateToISO(modification date of theDraft)"},
	{"ACCESSED", "my formatDateToISO(access date of theDraft)"},
	{"PERMALINK", "permalink of theDraft"},
	{"CREATION_LAT", "creation latitude of theDraft"},
	{"CREATION_LON", "creation longitude of theDraft"},
	{"MODIFICATION_LAT", "modification latitude of theDraft"},
	{"MODIFICATION_LON", "modification longitude of theDraft"},
}

// propsBlock builds the record for theDraft into the variable props.
func propsBlock() string {
	var b strings.Builder
	for i, f := range draftFields {
		if i == 0 {
			fmt.Fprintf(&b, "set props to %q & %s\n", f.key+":", f.expr)
			continue
		}
		fmt.Fprintf(&b, "set props to props & %q & %s\n", fieldSep+f.key+":", f.expr)
	}
	return b.String()
}

// singleDraftScript renders the draft selected by selector ("current draft",
// `draft id "..."`), or NOT_FOUND when the selection fails.
func singleDraftScript(selector string) string {
	return isoDateHandler + `
tell application "Drafts"
	try
		set theDraft to ` + selector + `
		` + propsBlock() + `
		return props
	on error errMsg
		return "` + notFound + `" & errMsg
	end try
end tell
`
}

// draftListScript renders every draft in the list expression, one record
// per draft terminated by <<END>>. setup runs inside the tell block first.
func draftListScript(setup, list string) string {
	return isoDateHandler + `
tell application "Drafts"
	` + setup + `
	set matchingDrafts to ` + list + `
	set results to ""
	repeat with d in matchingDrafts
		set theDraft to contents of d
		` + propsBlock() + `
		set results to results & props & "` + recordEnd + `"
	end repeat
	return results
end tell
`
}

// nameListScript returns the names of every element of a collection.
func nameListScript(collection string) string {
	return `
tell application "Drafts"
	set nameList to {}
	repeat with x in ` + collection + `
		set end of nameList to name of x
	end repeat
	return nameList
end tell
`
}

// mutationScript runs body against targetDraft and reports SUCCESS or
// "ERROR: <message>".
func mutationScript(uuid, body string) string {
	return `
tell application "Drafts"
	try
		set targetDraft to draft id ` + applescript.Quote(uuid) + `
		` + body + `
		return "` + okResult + `"
	on error errMsg
		return "` + errorPrefix + `" & errMsg
	end try
end tell
`
}

// ErrInvalidDate is returned for a date filter not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("invalid date")

const dateLayout = "2006-01-02"

// dateVar emits statements setting name to midnight of the given day.
func dateVar(name, value string) (string, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return "", fmt.Errorf("%w: %q (want YYYY-MM-DD)", ErrInvalidDate, value)
	}
	return fmt.Sprintf(`set %[1]s to current date
	set day of %[1]s to 1
	set year of %[1]s to %[2]d
	set month of %[1]s to %[3]d
	set day of %[1]s to %[4]d
	set hours of %[1]s to 0
	set minutes of %[1]s to 0
	set seconds of %[1]s to 0`, name, t.Year(), int(t.Month()), t.Day()), nil
}

// filterScript translates f into a whose clause over every draft.
func filterScript(f Filter) (string, error) {
	var conds, setup []string
	if f.Query != "" {
		conds = append(conds, "content contains "+applescript.Quote(f.Query))
	}
	if f.Folder != "" {
		if !f.Folder.Valid() {
			return "", fmt.Errorf("%w: %q", ErrInvalidFolder, f.Folder)
		}
		conds = append(conds, "folder is "+string(f.Folder))
	}
	if f.Tag != "" {
		conds = append(conds, "query tag names contains "+applescript.Quote("#"+f.Tag+"#"))
	}
	if f.Flagged != nil {
		conds = append(conds, fmt.Sprintf("flagged is %t", *f.Flagged))
	}

	dates := []struct {
		value, varName, cond string
	}{
		{f.CreatedAfter, "createdAfterDate", "creation date > createdAfterDate"},
		{f.CreatedBefore, "createdBeforeDate", "creation date < createdBeforeDate"},
		{f.ModifiedAfter, "modifiedAfterDate", "modification date > modifiedAfterDate"},
		{f.ModifiedBefore, "modifiedBeforeDate", "modification date < modifiedBeforeDate"},
	}
	for _, d := range dates {
		if d.value == "" {
			continue
		}
		stmt, err := dateVar(d.varName, d.value)
		if err != nil {
			return "", err
		}
		setup = append(setup, stmt)
		conds = append(conds, d.cond)
	}

	list := "every draft"
	if len(conds) > 0 {
		list += " whose " + strings.Join(conds, " and ")
	}
	return draftListScript(strings.Join(setup, "\n\t"), list), nil
}
