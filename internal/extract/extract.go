// Package extract turns fetched resume bytes into plain text, sniffing the
// container format from the leading bytes.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
)

// Text detects the payload format and extracts plain text. The second
// return value names the detected kind: "pdf", "docx", "txt", or the
// "_fallback" variants when structured extraction failed and the bytes
// were decoded as text instead.
func Text(b []byte) (string, string, error) {
	if len(b) == 0 {
		return "", "unknown", nil
	}
	switch {
	case bytes.HasPrefix(b, []byte("%PDF")):
		text, err := pdfText(b)
		if err != nil {
			return decodeText(b), "pdf_fallback", nil
		}
		return text, "pdf", nil
	case bytes.HasPrefix(b, []byte("PK")):
		// DOCX is a zip archive carrying word/document.xml
		text, err := docxText(b)
		if err != nil {
			return decodeText(b), "docx_fallback", nil
		}
		return text, "docx", nil
	default:
		return decodeText(b), "txt", nil
	}
}

func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

var pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)

func pdfText(b []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.Cmd = model.EXTRACTCONTENT
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(b), conf)
	if err != nil {
		return "", errors.Wrap(err, "extracting pdf content")
	}
	var out strings.Builder
	for p := 1; p <= ctx.PageCount; p++ {
		r, err := pdfcpu.ExtractPageContent(ctx, p)
		if err != nil {
			return "", errors.Wrap(err, "extracting pdf content")
		}
		if r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return "", errors.Wrap(err, "reading pdf content stream")
		}
		for _, line := range strings.Split(string(content), "\n") {
			if !strings.Contains(line, "Tj") && !strings.Contains(line, "TJ") {
				continue
			}
			for _, m := range pdfStringRe.FindAllStringSubmatch(line, -1) {
				out.WriteString(unescapePDF(m[1]))
			}
			out.WriteString("\n")
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", errors.New("no text operators found")
	}
	return text, nil
}

func unescapePDF(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out.WriteByte('\n')
		case 'r':
			out.WriteByte('\r')
		case 't':
			out.WriteByte('\t')
		case '(', ')', '\\':
			out.WriteByte(s[i])
		default:
			// octal escapes and anything else pass through unchanged
			out.WriteByte(s[i])
		}
	}
	return out.String()
}

func docxText(b []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", errors.Wrap(err, "opening docx archive")
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", errors.Wrap(err, "opening document.xml")
		}
		defer rc.Close()
		doc, err := io.ReadAll(rc)
		if err != nil {
			return "", errors.Wrap(err, "reading document.xml")
		}
		return documentXMLText(doc), nil
	}
	return "", errors.New("document.xml not found in archive")
}

// documentXMLText walks WordprocessingML collecting run text, emitting a
// newline per paragraph.
func documentXMLText(doc []byte) string {
	var out strings.Builder
	dec := xml.NewDecoder(bytes.NewReader(doc))
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
			if t.Name.Local == "p" {
				out.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return strings.TrimSpace(out.String())
}
