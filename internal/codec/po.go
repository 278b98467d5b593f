package codec

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// entrySeparator delimits entry blocks in the plain-text projection. The
// assembly step splits the translated projection on the same separator.
const entrySeparator = "--------------------------------------------------------------------------------"

const sectionRule = "================================================================================"

// CatalogEntry is one gettext message with the surrounding structure needed
// to write it back out unchanged when no translation matches it.
type CatalogEntry struct {
	Msgctxt           string
	Msgid             string
	MsgidPlural       string
	Msgstr            string
	MsgstrPlural      map[int]string
	Comments          []string
	ExtractedComments []string
	References        []string
	Flags             []string
	PreviousMsgid     string
	Obsolete          bool
}

// IsTranslated reports whether the entry carries a non-empty translation.
func (e *CatalogEntry) IsTranslated() bool {
	if len(e.MsgstrPlural) > 0 {
		for _, s := range e.MsgstrPlural {
			if strings.TrimSpace(s) != "" {
				return true
			}
		}
		return false
	}
	return strings.TrimSpace(e.Msgstr) != ""
}

// IsFuzzy reports whether the entry is flagged fuzzy.
func (e *CatalogEntry) IsFuzzy() bool {
	for _, f := range e.Flags {
		if f == "fuzzy" {
			return true
		}
	}
	return false
}

// isHeader reports whether the entry is the catalog metadata header.
func (e *CatalogEntry) isHeader() bool {
	return e.Msgid == "" && !e.Obsolete
}

func (e *CatalogEntry) clone() *CatalogEntry {
	c := *e
	c.MsgstrPlural = make(map[int]string, len(e.MsgstrPlural))
	for k, v := range e.MsgstrPlural {
		c.MsgstrPlural[k] = v
	}
	c.Comments = append([]string(nil), e.Comments...)
	c.ExtractedComments = append([]string(nil), e.ExtractedComments...)
	c.References = append([]string(nil), e.References...)
	c.Flags = append([]string(nil), e.Flags...)
	return &c
}

// RenderOptions control which entries appear in the plain-text projection.
type RenderOptions struct {
	IncludeUntranslated bool
	IncludeFuzzy        bool
	IncludeObsolete     bool
	IncludeMetadata     bool
	IncludeComments     bool
}

// DefaultRenderOptions match the projection the pipeline chunks and
// translates: untranslated and fuzzy entries in, obsolete and comments out.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		IncludeUntranslated: true,
		IncludeFuzzy:        true,
		IncludeMetadata:     true,
	}
}

// CatalogCodec handles gettext .po catalogs. Decode exposes a plain-text
// projection for chunking while retaining the structured entries; Encode
// re-parses the translated projection and writes matched translations back
// by (context, id), leaving unmatched entries untouched.
type CatalogCodec struct{}

func (*CatalogCodec) Format() Format { return FormatCatalog }

func (*CatalogCodec) Decode(data []byte) (*Document, error) {
	entries := ParseCatalog(string(data))
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog contains no entries")
	}
	return &Document{
		Text:    RenderCatalog(entries, DefaultRenderOptions()),
		Format:  FormatCatalog,
		Entries: entries,
	}, nil
}

func (*CatalogCodec) Encode(translated string, original *Document) ([]byte, error) {
	if original == nil || len(original.Entries) == 0 {
		return nil, fmt.Errorf("catalog encode requires the decoded entries")
	}

	entries := make([]*CatalogEntry, len(original.Entries))
	for i, e := range original.Entries {
		entries[i] = e.clone()
	}

	byKey := make(map[catalogKey]*CatalogEntry, len(entries))
	for _, e := range entries {
		byKey[catalogKey{e.Msgctxt, e.Msgid}] = e
	}

	for _, block := range parseProjectionBlocks(translated) {
		entry, ok := byKey[catalogKey{block.msgctxt, block.msgid}]
		if !ok {
			continue
		}
		if entry.MsgidPlural != "" && len(block.msgstrPlural) > 0 {
			entry.MsgstrPlural = block.msgstrPlural
		} else {
			entry.Msgstr = block.msgstr
		}
	}

	return WriteCatalog(entries), nil
}

type catalogKey struct {
	msgctxt string
	msgid   string
}

// ParseCatalog parses .po file content into entries, including the metadata
// header entry (empty msgid) when present.
func ParseCatalog(content string) []*CatalogEntry {
	var entries []*CatalogEntry
	current := newCatalogEntry()
	currentField := ""
	started := false

	flush := func() {
		if started {
			entries = append(entries, current)
			current = newCatalogEntry()
			currentField = ""
			started = false
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			if currentField == "" && !started {
				continue
			}
			flush()
			continue
		}

		switch {
		case strings.HasPrefix(line, "#."):
			current.ExtractedComments = append(current.ExtractedComments, strings.TrimSpace(line[2:]))
			continue
		case strings.HasPrefix(line, "#:"):
			current.References = append(current.References, strings.TrimSpace(line[2:]))
			continue
		case strings.HasPrefix(line, "#,"):
			for _, f := range strings.Split(line[2:], ",") {
				current.Flags = append(current.Flags, strings.TrimSpace(f))
			}
			continue
		case strings.HasPrefix(line, "#|"):
			if m := rePrevMsgid.FindStringSubmatch(line); m != nil {
				current.PreviousMsgid = unescapePO(m[1])
			}
			continue
		case strings.HasPrefix(line, "# "), line == "#":
			current.Comments = append(current.Comments, strings.TrimSpace(strings.TrimPrefix(line, "#")))
			continue
		}

		if strings.HasPrefix(line, "#~") {
			current.Obsolete = true
			line = strings.TrimSpace(line[2:])
		}

		switch {
		case strings.HasPrefix(line, "msgctxt"):
			if m := reQuoted("msgctxt").FindStringSubmatch(line); m != nil {
				current.Msgctxt = unescapePO(m[1])
				currentField = "msgctxt"
				started = true
			}
		case strings.HasPrefix(line, "msgid_plural"):
			if m := reQuoted("msgid_plural").FindStringSubmatch(line); m != nil {
				current.MsgidPlural = unescapePO(m[1])
				currentField = "msgid_plural"
				started = true
			}
		case strings.HasPrefix(line, "msgid "):
			if m := reQuoted("msgid").FindStringSubmatch(line); m != nil {
				current.Msgid = unescapePO(m[1])
				currentField = "msgid"
				started = true
			}
		case strings.HasPrefix(line, "msgstr["):
			if m := reMsgstrPlural.FindStringSubmatch(line); m != nil {
				idx, _ := strconv.Atoi(m[1])
				current.MsgstrPlural[idx] = unescapePO(m[2])
				currentField = "msgstr[" + m[1] + "]"
				started = true
			}
		case strings.HasPrefix(line, "msgstr "):
			if m := reQuoted("msgstr").FindStringSubmatch(line); m != nil {
				current.Msgstr = unescapePO(m[1])
				currentField = "msgstr"
				started = true
			}
		case strings.HasPrefix(line, `"`) && currentField != "":
			if m := reContinuation.FindStringSubmatch(line); m != nil {
				appendContinuation(current, currentField, unescapePO(m[1]))
			}
		}
	}
	flush()

	return entries
}

func newCatalogEntry() *CatalogEntry {
	return &CatalogEntry{MsgstrPlural: make(map[int]string)}
}

var (
	rePrevMsgid     = regexp.MustCompile(`#\|\s+msgid\s+"(.*)"`)
	reMsgstrPlural  = regexp.MustCompile(`msgstr\[(\d+)\]\s+"(.*)"`)
	reContinuation  = regexp.MustCompile(`^"(.*)"`)
	rePluralFormRow = regexp.MustCompile(`^\s*\[Plural form (\d+)\]:\s*(.*)$`)
)

func reQuoted(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`^` + keyword + `\s+"(.*)"`)
}

func appendContinuation(e *CatalogEntry, field, text string) {
	switch {
	case field == "msgctxt":
		e.Msgctxt += text
	case field == "msgid":
		e.Msgid += text
	case field == "msgid_plural":
		e.MsgidPlural += text
	case field == "msgstr":
		e.Msgstr += text
	case strings.HasPrefix(field, "msgstr["):
		idx, err := strconv.Atoi(field[7 : len(field)-1])
		if err == nil {
			e.MsgstrPlural[idx] += text
		}
	}
}

// RenderCatalog builds the plain-text projection: a metadata section, a
// statistics section, then one block per retained entry delimited by the
// entry separator. Entry numbering runs over all non-header entries, so
// filtered-out entries leave gaps rather than renumbering the rest.
func RenderCatalog(entries []*CatalogEntry, opts RenderOptions) string {
	var header *CatalogEntry
	var regular []*CatalogEntry
	for _, e := range entries {
		if e.isHeader() {
			header = e
		} else {
			regular = append(regular, e)
		}
	}

	var b strings.Builder
	line := func(s string) { b.WriteString(s); b.WriteByte('\n') }

	if opts.IncludeMetadata && header != nil {
		line(sectionRule)
		line("METADATA")
		line(sectionRule)
		for _, l := range strings.Split(header.Msgstr, "\n") {
			if strings.TrimSpace(l) != "" {
				line(l)
			}
		}
		line("")
	}

	total := len(regular)
	translated, fuzzy, untranslated, obsolete := 0, 0, 0, 0
	for _, e := range regular {
		switch {
		case e.IsFuzzy():
			fuzzy++
		case e.IsTranslated():
			translated++
		}
		if !e.IsTranslated() {
			untranslated++
		}
		if e.Obsolete {
			obsolete++
		}
	}

	line(sectionRule)
	line("STATISTICS")
	line(sectionRule)
	line(fmt.Sprintf("Total Entries: %d", total))
	line(fmt.Sprintf("Translated: %d", translated))
	line(fmt.Sprintf("Fuzzy: %d", fuzzy))
	line(fmt.Sprintf("Untranslated: %d", untranslated))
	if obsolete > 0 {
		line(fmt.Sprintf("Obsolete: %d", obsolete))
	}
	if total > 0 {
		line(fmt.Sprintf("Completion: %.1f%%", float64(translated)/float64(total)*100))
	}
	line("")
	line(sectionRule)
	line("ENTRIES")
	line(sectionRule)
	line("")

	for i, e := range regular {
		if e.Obsolete && !opts.IncludeObsolete {
			continue
		}
		if e.IsFuzzy() && !opts.IncludeFuzzy {
			continue
		}
		if !e.IsTranslated() && !opts.IncludeUntranslated {
			continue
		}

		line(entrySeparator)
		switch {
		case e.Obsolete:
			line(fmt.Sprintf("[Entry %d] [OBSOLETE]", i+1))
		case e.IsFuzzy():
			line(fmt.Sprintf("[Entry %d] [FUZZY]", i+1))
		case e.IsTranslated():
			line(fmt.Sprintf("[Entry %d] [TRANSLATED]", i+1))
		default:
			line(fmt.Sprintf("[Entry %d] [UNTRANSLATED]", i+1))
		}
		line("")

		if opts.IncludeComments && len(e.Flags) > 0 {
			line("Flags: " + strings.Join(e.Flags, ", "))
			line("")
		}
		if e.Msgctxt != "" {
			line("Context: " + e.Msgctxt)
			line("")
		}
		if opts.IncludeComments {
			for _, c := range e.Comments {
				line("# " + c)
			}
			for _, c := range e.ExtractedComments {
				line("#. " + c)
			}
			for _, r := range e.References {
				line("#: " + r)
			}
			if len(e.Comments)+len(e.ExtractedComments)+len(e.References) > 0 {
				line("")
			}
		}

		line("Original:")
		line(e.Msgid)
		line("")
		if e.MsgidPlural != "" {
			line("Plural:")
			line(e.MsgidPlural)
			line("")
		}
		line("Translation:")
		if len(e.MsgstrPlural) > 0 {
			idxs := make([]int, 0, len(e.MsgstrPlural))
			for idx := range e.MsgstrPlural {
				idxs = append(idxs, idx)
			}
			sort.Ints(idxs)
			for _, idx := range idxs {
				text := e.MsgstrPlural[idx]
				if strings.TrimSpace(text) == "" {
					text = "(not translated)"
				}
				line(fmt.Sprintf("  [Plural form %d]: %s", idx, text))
			}
		} else {
			text := e.Msgstr
			if strings.TrimSpace(text) == "" {
				text = "(not translated)"
			}
			line(text)
		}
		line("")

		if e.PreviousMsgid != "" && opts.IncludeComments {
			line("Previous msgid: " + e.PreviousMsgid)
			line("")
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// projectionBlock is one parsed entry block from a translated projection.
type projectionBlock struct {
	msgctxt      string
	msgid        string
	msgstr       string
	msgstrPlural map[int]string
}

// parseProjectionBlocks splits a (translated) projection on the entry
// separator and extracts per-block fields. Everything before the first
// separator (metadata, statistics) is skipped.
func parseProjectionBlocks(text string) []projectionBlock {
	parts := strings.Split(text, entrySeparator)
	if len(parts) < 2 {
		return nil
	}

	var blocks []projectionBlock
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "" {
			continue
		}

		block := projectionBlock{msgstrPlural: make(map[int]string)}
		section := ""
		var msgid, msgidPlural, msgstr strings.Builder

		for _, raw := range strings.Split(strings.TrimSpace(part), "\n") {
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}

			switch {
			case strings.HasPrefix(line, "[Entry"):
				section = ""
				continue
			case strings.HasPrefix(line, "Context:"):
				block.msgctxt = strings.TrimSpace(strings.TrimPrefix(line, "Context:"))
				section = ""
				continue
			case line == "Original:":
				section = "msgid"
				continue
			case line == "Plural:":
				section = "msgid_plural"
				continue
			case line == "Translation:":
				section = "msgstr"
				continue
			}

			switch section {
			case "msgid":
				msgid.WriteString(raw)
				msgid.WriteByte('\n')
			case "msgid_plural":
				msgidPlural.WriteString(raw)
				msgidPlural.WriteByte('\n')
			case "msgstr":
				if m := rePluralFormRow.FindStringSubmatch(raw); m != nil {
					idx, _ := strconv.Atoi(m[1])
					v := m[2]
					if v == "(not translated)" {
						v = ""
					}
					block.msgstrPlural[idx] = v
				} else {
					msgstr.WriteString(raw)
					msgstr.WriteByte('\n')
				}
			}
		}

		block.msgid = strings.TrimSpace(msgid.String())
		block.msgstr = strings.TrimSpace(msgstr.String())
		if block.msgstr == "(not translated)" {
			block.msgstr = ""
		}
		if len(block.msgstrPlural) == 0 {
			block.msgstrPlural = nil
		}
		blocks = append(blocks, block)
	}

	return blocks
}

// WriteCatalog serializes entries back to .po syntax. Multiline strings are
// written as single escaped lines (wrap width 0), which gettext tooling
// accepts and ParseCatalog round-trips.
func WriteCatalog(entries []*CatalogEntry) []byte {
	var b strings.Builder

	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, c := range e.Comments {
			b.WriteString("# " + c + "\n")
		}
		for _, c := range e.ExtractedComments {
			b.WriteString("#. " + c + "\n")
		}
		for _, r := range e.References {
			b.WriteString("#: " + r + "\n")
		}
		if len(e.Flags) > 0 {
			b.WriteString("#, " + strings.Join(e.Flags, ", ") + "\n")
		}
		if e.PreviousMsgid != "" {
			b.WriteString(`#| msgid "` + escapePO(e.PreviousMsgid) + `"` + "\n")
		}

		prefix := ""
		if e.Obsolete {
			prefix = "#~ "
		}
		if e.Msgctxt != "" {
			b.WriteString(prefix + `msgctxt "` + escapePO(e.Msgctxt) + `"` + "\n")
		}
		b.WriteString(prefix + `msgid "` + escapePO(e.Msgid) + `"` + "\n")
		if e.MsgidPlural != "" {
			b.WriteString(prefix + `msgid_plural "` + escapePO(e.MsgidPlural) + `"` + "\n")
			idxs := make([]int, 0, len(e.MsgstrPlural))
			for idx := range e.MsgstrPlural {
				idxs = append(idxs, idx)
			}
			sort.Ints(idxs)
			for _, idx := range idxs {
				b.WriteString(fmt.Sprintf("%smsgstr[%d] \"%s\"\n", prefix, idx, escapePO(e.MsgstrPlural[idx])))
			}
		} else {
			b.WriteString(prefix + `msgstr "` + escapePO(e.Msgstr) + `"` + "\n")
		}
	}

	return []byte(b.String())
}

func unescapePO(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`)
	return r.Replace(s)
}

func escapePO(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`, "\r", `\r`)
	return r.Replace(s)
}
