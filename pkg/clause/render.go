package clause

import (
	"sort"
	"strings"
)

// RenderOptions adjusts a single render call.
type RenderOptions struct {
	// Strict rejects context keys the template never declares.
	Strict bool
}

// Render resolves every placeholder of tmpl against rc and returns the
// final text. Missing values are fatal: the partial output is discarded
// and a *MissingFieldError names the first unresolved placeholder.
func Render(tmpl *Template, rc RenderContext) (string, error) {
	return RenderWithOptions(tmpl, rc, RenderOptions{Strict: GetGlobalConfig().StrictMode})
}

// RenderWithOptions is Render with explicit options.
func RenderWithOptions(tmpl *Template, rc RenderContext, opts RenderOptions) (string, error) {
	if opts.Strict {
		if err := checkUnknownFields(tmpl, rc); err != nil {
			return "", err
		}
	}

	var out strings.Builder
	out.Grow(len(tmpl.source))

	segs := tmpl.segments
	for i := 0; i < len(segs); i++ {
		seg := segs[i]
		switch seg.Kind {
		case SegmentText:
			out.WriteString(seg.Text)
		case SegmentField:
			value, ok := rc.Fields[seg.Name]
			if !ok {
				return "", &MissingFieldError{Name: seg.Name, Pos: seg.Pos}
			}
			out.WriteString(value)
		case SegmentBlockStart:
			block := tmpl.blocks[tmpl.blockAt[i]]
			if err := renderBlock(&out, segs[block.Start+1:block.End], block.Party, rc.Parties[block.Party]); err != nil {
				return "", err
			}
			i = block.End
		case SegmentBlockEnd:
			// Consumed by the matching SegmentBlockStart.
		}
	}

	logger := GetLogger()
	if logger.IsDebugMode() {
		logger.WithFields(Fields{
			"hash":   tmpl.hash[:12],
			"output": out.Len(),
		}).Debug("Template rendered")
	}

	return out.String(), nil
}

// renderBlock emits body once per instance, in order, with no separator
// beyond what the body itself contains.
func renderBlock(out *strings.Builder, body []Segment, party string, instances []map[string]string) error {
	for n, inst := range instances {
		for _, seg := range body {
			switch seg.Kind {
			case SegmentText:
				out.WriteString(seg.Text)
			case SegmentField:
				value, ok := inst[seg.Name]
				if !ok {
					return &MissingFieldError{Name: seg.Name, Party: party, Instance: n, Pos: seg.Pos}
				}
				out.WriteString(value)
			}
		}
	}
	return nil
}

// checkUnknownFields reports the first context key, in sorted order, that
// the template does not declare in the matching scope.
func checkUnknownFields(tmpl *Template, rc RenderContext) error {
	declared := make(map[string]bool, len(tmpl.fields))
	for _, f := range tmpl.fields {
		declared[f] = true
	}
	for _, name := range sortedKeys(rc.Fields) {
		if !declared[name] {
			return &UnknownFieldError{Name: name}
		}
	}

	parties := make([]string, 0, len(rc.Parties))
	for p := range rc.Parties {
		parties = append(parties, p)
	}
	sort.Strings(parties)

	for _, party := range parties {
		allowed := make(map[string]bool)
		for _, f := range tmpl.PartyFields(party) {
			allowed[f] = true
		}
		for n, inst := range rc.Parties[party] {
			for _, name := range sortedKeys(inst) {
				if !allowed[name] {
					return &UnknownFieldError{Name: name, Party: party, Instance: n}
				}
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
