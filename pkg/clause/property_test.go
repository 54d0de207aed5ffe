package clause

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1357)
	parameters.MinSuccessfulTests = 200
	return parameters
}

// templatePieces are combined by generated index lists into valid templates.
var templatePieces = []string{
	" some text ",
	"${F1}",
	"${F2}",
	"${P1_START}${B1} and ${B2}\n${P1_END}",
	"${P2_START}-${B1}-${P2_END}",
	"\n",
}

func buildTemplate(codes []int) string {
	var sb strings.Builder
	for _, c := range codes {
		sb.WriteString(templatePieces[c])
	}
	sb.WriteString("${F1}")
	return sb.String()
}

func completeContext() RenderContext {
	inst := map[string]string{"B1": "bee", "B2": "bea"}
	return NewRenderContext().
		Set("F1", "one").
		Set("F2", "two").
		AddInstance("P1", inst).
		AddInstance("P2", inst)
}

// flatReplace substitutes every placeholder textually and drops block markers.
var flatReplace = strings.NewReplacer(
	"${F1}", "one", "${F2}", "two", "${B1}", "bee", "${B2}", "bea",
	"${P1_START}", "", "${P1_END}", "", "${P2_START}", "", "${P2_END}", "",
)

// literalGen produces text that can never form a placeholder.
func literalGen() gopter.Gen {
	return gen.AlphaString().Map(func(s string) string {
		return strings.ReplaceAll(s, "$", "")
	})
}

func TestTemplateProperties(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	codes := gen.SliceOf(gen.IntRange(0, len(templatePieces)-1))

	properties.Property("complete context always renders", prop.ForAll(
		func(codes []int) bool {
			tmpl, err := parseTemplate(buildTemplate(codes), 0)
			if err != nil {
				return false
			}
			out, err := RenderWithOptions(tmpl, completeContext(), RenderOptions{})
			return err == nil && !strings.Contains(out, "${")
		},
		codes,
	))

	properties.Property("single instances equal flat replacement", prop.ForAll(
		func(codes []int) bool {
			source := buildTemplate(codes)
			tmpl, err := parseTemplate(source, 0)
			if err != nil {
				return false
			}
			out, err := RenderWithOptions(tmpl, completeContext(), RenderOptions{})
			return err == nil && out == flatReplace.Replace(source)
		},
		codes,
	))

	properties.Property("rendering is idempotent", prop.ForAll(
		func(codes []int) bool {
			tmpl, err := parseTemplate(buildTemplate(codes), 0)
			if err != nil {
				return false
			}
			rc := completeContext()
			first, err1 := RenderWithOptions(tmpl, rc, RenderOptions{})
			second, err2 := RenderWithOptions(tmpl, rc, RenderOptions{})
			return err1 == nil && err2 == nil && first == second
		},
		codes,
	))

	// Text without placeholders renders to itself once a field is added.
	properties.Property("literal text round-trips", prop.ForAll(
		func(before, after, value string) bool {
			tmpl, err := parseTemplate(before+"${X}"+after, 0)
			if err != nil {
				return false
			}
			out, err := RenderWithOptions(tmpl, NewRenderContext().Set("X", value), RenderOptions{})
			return err == nil && out == before+value+after
		},
		literalGen(), literalGen(), gen.AnyString(),
	))

	// A block with n instances renders its body n times.
	properties.Property("block repeats once per instance", prop.ForAll(
		func(n int, body string) bool {
			tmpl, err := parseTemplate("${P_START}"+body+"${V}${P_END}", 0)
			if err != nil {
				return false
			}
			rc := NewRenderContext()
			for i := 0; i < n; i++ {
				rc = rc.AddInstance("P", map[string]string{"V": fmt.Sprint(i)})
			}
			out, err := RenderWithOptions(tmpl, rc, RenderOptions{})
			if err != nil {
				return false
			}
			var want strings.Builder
			for i := 0; i < n; i++ {
				want.WriteString(body)
				want.WriteString(fmt.Sprint(i))
			}
			return out == want.String()
		},
		gen.IntRange(0, 20), literalGen(),
	))

	// Removing any value the template needs turns the render into an error
	// with no output.
	properties.Property("missing value is always fatal", prop.ForAll(
		func(drop int) bool {
			tmpl := MustParse(agreementTemplate)
			rc := NewRenderContext().Set("DATE", "d")
			inst := map[string]string{"NAME": "n", "BIRTH": "b"}
			switch drop % 3 {
			case 0:
				delete(rc.Fields, "DATE")
			case 1:
				delete(inst, "NAME")
			case 2:
				delete(inst, "BIRTH")
			}
			rc = rc.AddInstance("PARTY1", inst)
			out, err := RenderWithOptions(tmpl, rc, RenderOptions{})
			return out == "" && IsMissingFieldError(err)
		},
		gen.IntRange(0, 100),
	))

	// Parsing is deterministic and the hash only depends on the text.
	properties.Property("parse is deterministic", prop.ForAll(
		func(a, b string) bool {
			source := a + "${F}" + b
			t1, err1 := parseTemplate(source, 0)
			t2, err2 := parseTemplate(source, 0)
			if err1 != nil || err2 != nil {
				return false
			}
			return t1.Hash() == t2.Hash() &&
				len(t1.Segments()) == len(t2.Segments()) &&
				t1.PlaceholderCount() == t2.PlaceholderCount()
		},
		gen.AnyString(), gen.AnyString(),
	))

	// Every start marker without its end is rejected, whatever follows.
	properties.Property("unterminated block is rejected", prop.ForAll(
		func(party, tail string) bool {
			_, err := parseTemplate("${"+party+"_START}"+tail, 0)
			return IsSyntaxError(err)
		},
		gen.RegexMatch(`^[A-Z][A-Z0-9]{0,8}$`), literalGen(),
	))

	properties.TestingRun(t)
}
