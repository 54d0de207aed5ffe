package clause

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agreementTemplate = "Dated: ${DATE}\n${PARTY1_START}${NAME}, born ${BIRTH}${PARTY1_END}"

func jane() map[string]string {
	return map[string]string{"NAME": "Jane Doe", "BIRTH": "1990-01-01"}
}

func john() map[string]string {
	return map[string]string{"NAME": "John Roe", "BIRTH": "1985-02-02"}
}

func TestRender(t *testing.T) {
	tmpl := MustParse(agreementTemplate)

	tests := []struct {
		name string
		rc   RenderContext
		want string
	}{
		{
			name: "one instance",
			rc:   NewRenderContext().Set("DATE", "2024-01-01").AddInstance("PARTY1", jane()),
			want: "Dated: 2024-01-01\nJane Doe, born 1990-01-01",
		},
		{
			name: "two instances in order",
			rc: NewRenderContext().Set("DATE", "2024-01-01").
				AddInstance("PARTY1", jane()).
				AddInstance("PARTY1", john()),
			want: "Dated: 2024-01-01\nJane Doe, born 1990-01-01John Roe, born 1985-02-02",
		},
		{
			name: "zero instances",
			rc:   NewRenderContext().Set("DATE", "2024-01-01"),
			want: "Dated: 2024-01-01\n",
		},
		{
			name: "extra keys ignored",
			rc: NewRenderContext().Set("DATE", "2024-01-01").Set("UNUSED", "x").
				AddInstance("PARTY1", map[string]string{"NAME": "A", "BIRTH": "B", "EMAIL": "c"}).
				AddInstance("PARTY9", map[string]string{"X": "y"}),
			want: "Dated: 2024-01-01\nA, born B",
		},
		{
			name: "values are not re-expanded",
			rc: NewRenderContext().Set("DATE", "${DATE}").
				AddInstance("PARTY1", map[string]string{"NAME": "${PARTY1_END}", "BIRTH": ""}),
			want: "Dated: ${DATE}\n${PARTY1_END}, born ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderWithOptions(tmpl, tt.rc, RenderOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderBlockBodyVerbatim(t *testing.T) {
	tmpl := MustParse("Parties:\n${SELLER_START}- ${NAME} (${EMAIL})\n${SELLER_END}End.")
	rc := NewRenderContext().
		AddInstance("SELLER", map[string]string{"NAME": "A", "EMAIL": "a@example.com"}).
		AddInstance("SELLER", map[string]string{"NAME": "B", "EMAIL": "b@example.com"})

	got, err := RenderWithOptions(tmpl, rc, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Parties:\n- A (a@example.com)\n- B (b@example.com)\nEnd.", got)
}

func TestRenderSamePartyTwice(t *testing.T) {
	tmpl := MustParse("${P_START}[${A}]${P_END}|${P_START}(${B})${P_END}")
	rc := NewRenderContext().
		AddInstance("P", map[string]string{"A": "1", "B": "2"}).
		AddInstance("P", map[string]string{"A": "3", "B": "4"})

	got, err := RenderWithOptions(tmpl, rc, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "[1][3]|(2)(4)", got)
}

func TestRenderMissingField(t *testing.T) {
	tmpl := MustParse(agreementTemplate)

	t.Run("top level", func(t *testing.T) {
		rc := NewRenderContext().AddInstance("PARTY1", jane())
		got, err := RenderWithOptions(tmpl, rc, RenderOptions{})
		require.Error(t, err)
		assert.Empty(t, got)

		var mf *MissingFieldError
		require.True(t, errors.As(err, &mf))
		assert.Equal(t, "DATE", mf.Name)
		assert.Empty(t, mf.Party)
		assert.Equal(t, Position{Offset: 7, Line: 1, Column: 8}, mf.Pos)
		assert.True(t, IsMissingFieldError(err))
		assert.False(t, IsValidationError(err))
	})

	t.Run("in second instance", func(t *testing.T) {
		rc := NewRenderContext().Set("DATE", "2024-01-01").
			AddInstance("PARTY1", jane()).
			AddInstance("PARTY1", map[string]string{"NAME": "Incomplete"})
		got, err := RenderWithOptions(tmpl, rc, RenderOptions{})
		require.Error(t, err)
		assert.Empty(t, got)

		var mf *MissingFieldError
		require.True(t, errors.As(err, &mf))
		assert.Equal(t, "BIRTH", mf.Name)
		assert.Equal(t, "PARTY1", mf.Party)
		assert.Equal(t, 1, mf.Instance)
		assert.Contains(t, err.Error(), "PARTY1 instance 1")
	})

	t.Run("nil context", func(t *testing.T) {
		_, err := RenderWithOptions(tmpl, RenderContext{}, RenderOptions{})
		assert.True(t, IsMissingFieldError(err))
	})

	t.Run("first missing wins", func(t *testing.T) {
		multi := MustParse("${A} ${B} ${C}")
		_, err := RenderWithOptions(multi, NewRenderContext().Set("A", "a"), RenderOptions{})
		var mf *MissingFieldError
		require.True(t, errors.As(err, &mf))
		assert.Equal(t, "B", mf.Name)
	})
}

func TestRenderStrict(t *testing.T) {
	tmpl := MustParse(agreementTemplate)
	strict := RenderOptions{Strict: true}

	t.Run("exact context passes", func(t *testing.T) {
		rc := NewRenderContext().Set("DATE", "2024-01-01").AddInstance("PARTY1", jane())
		got, err := RenderWithOptions(tmpl, rc, strict)
		require.NoError(t, err)
		assert.Equal(t, "Dated: 2024-01-01\nJane Doe, born 1990-01-01", got)
	})

	tests := []struct {
		name     string
		rc       RenderContext
		field    string
		party    string
		instance int
	}{
		{
			name:  "unknown top level key",
			rc:    NewRenderContext().Set("DATE", "d").Set("ZIP", "1"),
			field: "ZIP",
		},
		{
			name:  "block field supplied at top level",
			rc:    NewRenderContext().Set("DATE", "d").Set("NAME", "n"),
			field: "NAME",
		},
		{
			name: "unknown instance key",
			rc: NewRenderContext().Set("DATE", "d").
				AddInstance("PARTY1", jane()).
				AddInstance("PARTY1", map[string]string{"NAME": "n", "BIRTH": "b", "PHONE": "p"}),
			field:    "PHONE",
			party:    "PARTY1",
			instance: 1,
		},
		{
			name: "unknown party",
			rc: NewRenderContext().Set("DATE", "d").
				AddInstance("PARTY2", map[string]string{"NAME": "n"}),
			field: "NAME",
			party: "PARTY2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RenderWithOptions(tmpl, tt.rc, strict)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnknownField))

			var uf *UnknownFieldError
			require.True(t, errors.As(err, &uf))
			assert.Equal(t, tt.field, uf.Name)
			assert.Equal(t, tt.party, uf.Party)
			assert.Equal(t, tt.instance, uf.Instance)
		})
	}
}

func TestRenderUsesGlobalStrictMode(t *testing.T) {
	original := GetGlobalConfig()
	t.Cleanup(func() { SetGlobalConfig(original) })

	tmpl := MustParse("${A}")
	rc := NewRenderContext().Set("A", "a").Set("B", "b")

	cfg := GetGlobalConfig()
	cfg.StrictMode = false
	SetGlobalConfig(cfg)
	got, err := Render(tmpl, rc)
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	cfg = GetGlobalConfig()
	cfg.StrictMode = true
	SetGlobalConfig(cfg)
	_, err = Render(tmpl, rc)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestRenderLargeBlock(t *testing.T) {
	tmpl := MustParse("${ROW_START}${N};${ROW_END}")
	rc := NewRenderContext()
	for i := 0; i < 1000; i++ {
		rc = rc.AddInstance("ROW", map[string]string{"N": "x"})
	}

	got, err := RenderWithOptions(tmpl, rc, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x;", 1000), got)
}
