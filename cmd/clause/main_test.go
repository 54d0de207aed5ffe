package main

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CLAUSE_CACHE_MAX_SIZE", "CLAUSE_CACHE_TTL", "CLAUSE_LOG_LEVEL", "CLAUSE_RENDER_STRICT",
	"CLAUSE_RENDER_CONCURRENCY", "CLAUSE_TEMPLATE_MAX_SIZE", "CLAUSE_STORE_ROOT",
	"CLAUSE_STORE_OWNER", "CLAUSE_WATCH_DEBOUNCE", "CLAUSE_CONFIG_FILE",
}

const leaseTemplate = `Lease dated ${DATE}.
${TENANT_START}Tenant: ${NAME}, ${ADDRESS}
${TENANT_END}Signed.`

// setup clears CLAUSE_* variables and runs the test from an empty
// directory, returning that directory.
func setup(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Setenv("CLAUSE_LOG_LEVEL", "off")
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

// execute runs the root command with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// testDocx builds a DOCX package with one paragraph per line.
func testDocx(t *testing.T, lines ...string) []byte {
	t.Helper()
	body := ""
	for _, l := range lines {
		body += `<w:p><w:r><w:t xml:space="preserve">` + l + `</w:t></w:r></w:p>`
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	parts := []struct{ name, content string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`},
	}
	for _, p := range parts {
		f, err := zw.Create(p.name)
		require.NoError(t, err)
		_, err = f.Write([]byte(p.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
