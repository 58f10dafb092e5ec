package drafts

import (
	"strconv"
	"strings"
)

// parseDraft reads one <<SEP>>-delimited record. Unknown keys are ignored
// and missing ones keep their zero value; values may contain ':' and
// newlines, only the first ':' of a field splits key from value.
func parseDraft(record string) Draft {
	props := make(map[string]string, len(draftFields))
	for _, part := range strings.Split(record, fieldSep) {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = value
	}

	d := Draft{
		ID:                    props["ID"],
		Title:                 props["TITLE"],
		Content:               props["CONTENT"],
		Flagged:               props["FLAGGED"] == "true",
		Folder:                Folder(props["FOLDER"]),
		Tags:                  splitTags(props["TAGS"]),
		TagNames:              props["TAG_NAMES"],
		QueryTagNames:         props["QUERY_TAG_NAMES"],
		CreationDate:          props["CREATED"],
		ModificationDate:      props["MODIFIED"],
		AccessDate:            props["ACCESSED"],
		Permalink:             props["PERMALINK"],
		CreationLatitude:      parseCoord(props["CREATION_LAT"]),
		CreationLongitude:     parseCoord(props["CREATION_LON"]),
		ModificationLatitude:  parseCoord(props["MODIFICATION_LAT"]),
		ModificationLongitude: parseCoord(props["MODIFICATION_LON"]),
	}
	if !d.Folder.Valid() {
		d.Folder = FolderInbox
	}
	return d
}

// parseDraftList reads <<END>>-terminated records. Blank output is an
// empty list.
func parseDraftList(out string) []Draft {
	drafts := []Draft{}
	for _, rec := range strings.Split(out, recordEnd) {
		if strings.TrimSpace(rec) == "" {
			continue
		}
		drafts = append(drafts, parseDraft(rec))
	}
	return drafts
}

func splitTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ", ") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// parseCoord reads a coordinate, accepting the decimal comma some locales
// use. Unparseable values are 0.
func parseCoord(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
