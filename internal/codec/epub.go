package codec

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
)

// EbookCodec handles EPUB containers. Decode extracts reading-order content
// in declared spine order with markup preserved, so translation prompts can
// require markup preservation. Encode deliberately degrades to flat text:
// the container is not structurally rebuilt (documented policy).
type EbookCodec struct{}

func (*EbookCodec) Format() Format { return FormatEbook }

var (
	reXMLDecl = regexp.MustCompile(`<\?xml[^>]*\?>`)
	reBody    = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
)

func (*EbookCodec) Decode(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a valid EPUB container: %w", err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	opfPath, err := findOPFPath(files)
	if err != nil {
		return nil, err
	}

	opfData, err := readZipFile(files[opfPath])
	if err != nil {
		return nil, fmt.Errorf("reading package document: %w", err)
	}

	pkg, err := parseOPF(opfData)
	if err != nil {
		return nil, fmt.Errorf("parsing package document: %w", err)
	}

	contentDir := path.Dir(opfPath)
	var parts []string
	for _, href := range pkg.spineHrefs() {
		full := href
		if contentDir != "." {
			full = path.Join(contentDir, href)
		}
		f, ok := files[full]
		if !ok {
			slog.Warn("spine item missing from container", "href", full)
			continue
		}
		raw, err := readZipFile(f)
		if err != nil {
			// A single broken content unit must not sink the decode.
			slog.Warn("skipping unreadable spine item", "href", full, "err", err)
			continue
		}
		if text := extractBodyMarkup(string(raw)); text != "" {
			parts = append(parts, text)
		}
	}

	return &Document{
		Text:   strings.Join(parts, "\n\n"),
		Format: FormatEbook,
		Title:  pkg.Title,
		Author: pkg.Author,
	}, nil
}

func (*EbookCodec) Encode(translated string, _ *Document) ([]byte, error) {
	return []byte(translated), nil
}

// findOPFPath locates the package document via META-INF/container.xml,
// falling back to conventional locations.
func findOPFPath(files map[string]*zip.File) (string, error) {
	if f, ok := files["META-INF/container.xml"]; ok {
		if data, err := readZipFile(f); err == nil {
			var container struct {
				Rootfiles []struct {
					FullPath string `xml:"full-path,attr"`
				} `xml:"rootfiles>rootfile"`
			}
			if xml.Unmarshal(data, &container) == nil && len(container.Rootfiles) > 0 && container.Rootfiles[0].FullPath != "" {
				return container.Rootfiles[0].FullPath, nil
			}
		}
	}

	for _, p := range []string{"OEBPS/content.opf", "content.opf", "EPUB/content.opf"} {
		if _, ok := files[p]; ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("could not find package document in EPUB")
}

type opfPackage struct {
	Title  string
	Author string

	manifest map[string]string // id -> href
	spine    []string          // idrefs in reading order
}

// spineHrefs resolves the spine idrefs against the manifest, preserving the
// declared reading order and dropping unresolved references.
func (p *opfPackage) spineHrefs() []string {
	var hrefs []string
	for _, idref := range p.spine {
		if href, ok := p.manifest[idref]; ok {
			hrefs = append(hrefs, href)
		}
	}
	return hrefs
}

func parseOPF(data []byte) (*opfPackage, error) {
	var doc struct {
		Metadata struct {
			Title   string `xml:"title"`
			Creator string `xml:"creator"`
		} `xml:"metadata"`
		Manifest struct {
			Items []struct {
				ID   string `xml:"id,attr"`
				Href string `xml:"href,attr"`
			} `xml:"item"`
		} `xml:"manifest"`
		Spine struct {
			Itemrefs []struct {
				IDRef string `xml:"idref,attr"`
			} `xml:"itemref"`
		} `xml:"spine"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	pkg := &opfPackage{
		Title:    doc.Metadata.Title,
		Author:   doc.Metadata.Creator,
		manifest: make(map[string]string, len(doc.Manifest.Items)),
	}
	if pkg.Title == "" {
		pkg.Title = "Unknown"
	}
	if pkg.Author == "" {
		pkg.Author = "Unknown"
	}
	for _, item := range doc.Manifest.Items {
		if item.ID != "" && item.Href != "" {
			pkg.manifest[item.ID] = item.Href
		}
	}
	for _, ref := range doc.Spine.Itemrefs {
		pkg.spine = append(pkg.spine, ref.IDRef)
	}
	return pkg, nil
}

// extractBodyMarkup returns the inner markup of the <body> element, tags
// intact. When no body element is found the whole document minus the XML
// declaration is returned.
func extractBodyMarkup(content string) string {
	content = reXMLDecl.ReplaceAllString(content, "")
	if m := reBody.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(content)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
