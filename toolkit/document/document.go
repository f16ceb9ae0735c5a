// Package document provides the read_documents tool: text extraction and
// term search over a folder of local files (PDF, TXT, MD).
package document

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/parley-ai/parley"
)

// FileTypes lists the extensions the reader understands.
var FileTypes = []string{"pdf", "txt", "md"}

const (
	maxDocuments  = 50
	excerptLength = 1200
)

// Config assembles the tool.
type Config struct {
	// Root confines folder_path lookups: every requested folder must resolve
	// inside it. Required.
	Root string
}

// Document is one analyzed file.
type Document struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Excerpt string   `json:"excerpt"`
	Matches []string `json:"matched_terms,omitempty"`
}

type readOutput struct {
	Folder    string     `json:"folder"`
	Scanned   int        `json:"files_scanned"`
	Documents []Document `json:"documents"`
}

// New builds the read_documents tool.
func New(cfg Config) (parley.Tool, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("document: Root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("document: resolve root: %w", err)
	}

	schema := parley.Schema{
		"folder_path": {
			Type:        parley.TypeString,
			Description: "Path to folder containing documents, relative to the configured document root",
			Required:    true,
		},
		"file_types": {
			Type:        parley.TypeStringArray,
			Description: "File types to process",
			Enum:        FileTypes,
			Default:     FileTypes,
		},
		"search_terms": {
			Type:        parley.TypeStringArray,
			Description: "Optional terms to search for within documents",
		},
	}

	handler := func(ctx context.Context, args map[string]any) (any, error) {
		folder, err := resolveFolder(root, args["folder_path"].(string))
		if err != nil {
			return nil, err
		}
		types := toStrings(args["file_types"])
		terms := toStrings(args["search_terms"])

		entries, err := os.ReadDir(folder)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, &parley.ClientError{Reason: fmt.Sprintf("folder %q does not exist", args["folder_path"])}
			}
			return nil, fmt.Errorf("read folder: %w", err)
		}

		out := readOutput{Folder: folder, Documents: []Document{}}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if entry.IsDir() || len(out.Documents) >= maxDocuments {
				continue
			}
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), ".")
			if !slices.Contains(types, ext) {
				continue
			}
			out.Scanned++
			text, err := extractText(filepath.Join(folder, entry.Name()), ext)
			if err != nil {
				continue
			}
			doc := Document{
				Name:    entry.Name(),
				Type:    ext,
				Excerpt: excerpt(text),
				Matches: matchTerms(text, terms),
			}
			if len(terms) > 0 && len(doc.Matches) == 0 {
				continue
			}
			out.Documents = append(out.Documents, doc)
		}
		return out, nil
	}

	return parley.NewFuncTool(
		"read_documents",
		"Read and analyze documents from specified folders (PDF, TXT, MD files)",
		schema,
		handler,
		parley.WithTimeout(60*time.Second),
		parley.WithTags("filesystem", "research"),
		parley.WithDescriber(func(argsJSON []byte) string {
			args, err := schema.Validate(argsJSON)
			if err != nil {
				return "Reading documents"
			}
			return fmt.Sprintf("Reading documents from: %s", args["folder_path"])
		}),
	)
}

// resolveFolder joins the requested path onto root and rejects escapes.
func resolveFolder(root, requested string) (string, error) {
	joined := filepath.Join(root, filepath.Clean("/"+requested))
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &parley.ClientError{Reason: fmt.Sprintf("folder %q is outside the document root", requested)}
	}
	return joined, nil
}

func extractText(path, ext string) (string, error) {
	switch ext {
	case "pdf":
		return extractPDF(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if _, err := io.Copy(&b, reader); err != nil {
		return "", err
	}
	return b.String(), nil
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= excerptLength {
		return text
	}
	return text[:excerptLength] + "…"
}

// matchTerms returns the terms found in text, case-insensitively.
func matchTerms(text string, terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	var out []string
	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			out = append(out, term)
		}
	}
	return out
}

func toStrings(v any) []string {
	s, _ := v.([]string)
	return s
}
