package clause

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

const (
	documentPart    = "word/document.xml"
	wordMLNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

var (
	bodyOpenPattern  = regexp.MustCompile(`<(\w+:)?body\b[^>]*>`)
	bodyClosePattern = regexp.MustCompile(`</(\w+:)?body>`)
)

// DocxReader handles reading and parsing DOCX files
type DocxReader struct {
	reader *zip.Reader
	Parts  map[string]*zip.File
}

// NewDocxReader creates a new DOCX reader
func NewDocxReader(r io.ReaderAt, size int64) (*DocxReader, error) {
	zipReader, err := zip.NewReader(r, size)
	if err != nil {
		return nil, NewDocumentError("read", "DOCX", fmt.Errorf("failed to read zip file: %w", err))
	}

	dr := &DocxReader{
		reader: zipReader,
		Parts:  make(map[string]*zip.File),
	}

	for _, file := range zipReader.File {
		dr.Parts[file.Name] = file
	}

	if _, ok := dr.Parts[documentPart]; !ok {
		return nil, NewDocumentError("read", "DOCX", fmt.Errorf("not a valid DOCX file: missing %s", documentPart))
	}

	return dr, nil
}

// DocxReaderFromBytes creates a DocxReader over an in-memory DOCX.
func DocxReaderFromBytes(data []byte) (*DocxReader, error) {
	return NewDocxReader(bytes.NewReader(data), int64(len(data)))
}

// DocxReaderFromFile creates a DocxReader from a file path
func DocxReaderFromFile(path string) (*DocxReader, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentError("read", path, err)
	}
	return DocxReaderFromBytes(content)
}

// GetPart retrieves the content of a specific part
func (dr *DocxReader) GetPart(partName string) ([]byte, error) {
	file, ok := dr.Parts[partName]
	if !ok {
		return nil, fmt.Errorf("part %s not found", partName)
	}

	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open part %s: %w", partName, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read part %s: %w", partName, err)
	}

	return content, nil
}

// GetDocumentXML retrieves the content of word/document.xml
func (dr *DocxReader) GetDocumentXML() (string, error) {
	content, err := dr.GetPart(documentPart)
	if err != nil {
		return "", NewDocumentError("extract", documentPart, err)
	}
	return string(content), nil
}

// ListParts returns the part names in the DOCX, sorted.
func (dr *DocxReader) ListParts() []string {
	parts := make([]string, 0, len(dr.Parts))
	for name := range dr.Parts {
		parts = append(parts, name)
	}
	sort.Strings(parts)
	return parts
}

// Text extracts the template text of the main document part.
func (dr *DocxReader) Text() (string, error) {
	docXML, err := dr.GetDocumentXML()
	if err != nil {
		return "", err
	}
	return ExtractText(docXML)
}

// ExtractText flattens WordprocessingML into plain text. Paragraphs are
// separated by "\n", text of consecutive runs is concatenated so a
// placeholder split across runs comes back whole, w:tab becomes "\t" and
// w:br / w:cr become "\n". Only run content counts: tab stops declared in
// paragraph properties produce nothing.
func ExtractText(documentXML string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(documentXML))

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
		inPara     int
		inRun      int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", NewDocumentError("extract", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordMLNamespace {
				continue
			}
			switch t.Name.Local {
			case "p":
				inPara++
			case "r":
				inRun++
			case "t":
				inText = inRun > 0
			case "tab":
				if inPara > 0 && inRun > 0 {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inPara > 0 && inRun > 0 {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordMLNamespace {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				inRun--
			case "p":
				inPara--
				if inPara == 0 {
					paragraphs = append(paragraphs, current.String())
					current.Reset()
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	return strings.Join(paragraphs, "\n"), nil
}

// WriteDocx writes a copy of the DOCX held by dr to w with the body of
// word/document.xml replaced by text, one paragraph per line. Every other
// part, the root element with its namespaces, and the trailing section
// properties are carried over unchanged.
func WriteDocx(dr *DocxReader, text string, w io.Writer) error {
	docXML, err := dr.GetDocumentXML()
	if err != nil {
		return err
	}

	rebuilt, err := replaceBody(docXML, text)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, file := range dr.reader.File {
		if file.Name == documentPart {
			fw, err := zw.CreateHeader(&zip.FileHeader{
				Name:     documentPart,
				Method:   zip.Deflate,
				Modified: file.Modified,
			})
			if err != nil {
				return NewDocumentError("write", documentPart, err)
			}
			if _, err := io.WriteString(fw, rebuilt); err != nil {
				return NewDocumentError("write", documentPart, err)
			}
			continue
		}
		if err := zw.Copy(file); err != nil {
			return NewDocumentError("write", file.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return NewDocumentError("write", "DOCX", err)
	}
	return nil
}

func replaceBody(docXML, text string) (string, error) {
	open := bodyOpenPattern.FindStringSubmatchIndex(docXML)
	if open == nil {
		return "", NewDocumentError("write", documentPart, fmt.Errorf("document has no body element"))
	}
	prefix := ""
	if open[2] >= 0 {
		prefix = docXML[open[2]:open[3]]
	}

	closeLoc := bodyClosePattern.FindAllStringIndex(docXML, -1)
	if len(closeLoc) == 0 {
		return "", NewDocumentError("write", documentPart, fmt.Errorf("document body is not closed"))
	}
	bodyEnd := closeLoc[len(closeLoc)-1][0]
	if bodyEnd < open[1] {
		return "", NewDocumentError("write", documentPart, fmt.Errorf("malformed document body"))
	}

	sectPr := trailingSectPr(docXML[open[1]:bodyEnd], prefix)

	var buf bytes.Buffer
	buf.Grow(len(docXML) + len(text))
	buf.WriteString(docXML[:open[1]])
	for _, line := range strings.Split(text, "\n") {
		writeParagraph(&buf, prefix, line)
	}
	buf.WriteString(sectPr)
	buf.WriteString(docXML[bodyEnd:])
	return buf.String(), nil
}

// trailingSectPr returns the body-level section properties, which Word
// requires as the last child of the body.
func trailingSectPr(body, prefix string) string {
	quoted := regexp.QuoteMeta(prefix)
	pattern := regexp.MustCompile(`(?s)<` + quoted + `sectPr\b(?:[^>]*/>|.*?</` + quoted + `sectPr>)`)
	matches := pattern.FindAllStringIndex(body, -1)
	if len(matches) == 0 {
		return ""
	}
	last := matches[len(matches)-1]
	if strings.TrimSpace(body[last[1]:]) != "" {
		return ""
	}
	return body[last[0]:last[1]]
}

func writeParagraph(buf *bytes.Buffer, prefix, line string) {
	if line == "" {
		buf.WriteString("<" + prefix + "p/>")
		return
	}
	buf.WriteString("<" + prefix + "p><" + prefix + "r>")
	for i, part := range strings.Split(line, "\t") {
		if i > 0 {
			buf.WriteString("<" + prefix + "tab/>")
		}
		if part == "" {
			continue
		}
		buf.WriteString("<" + prefix + `t xml:space="preserve">`)
		_ = xml.EscapeText(buf, []byte(part))
		buf.WriteString("</" + prefix + "t>")
	}
	buf.WriteString("</" + prefix + "r></" + prefix + "p>")
}
