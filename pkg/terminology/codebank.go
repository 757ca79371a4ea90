package terminology

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrCodeBankNotFound = errors.New("code bank not found")

// CodeEntry is one canonical code of a chapter with its reference embedding.
type CodeEntry struct {
	Code        string
	Title       string
	Description string
	Text        string
	Embedding   []float64
}

// ReferenceText is the canonical text shown to the selector and carried onto labels.
func (e CodeEntry) ReferenceText() string {
	if e.Text != "" {
		return e.Text
	}
	switch {
	case e.Title != "" && e.Description != "":
		return fmt.Sprintf("%s. Definição: %s", e.Title, e.Description)
	case e.Title != "":
		return e.Title
	default:
		return e.Description
	}
}

type bankEntryJSON struct {
	Code        string    `json:"code"`
	Codigo      string    `json:"codigo"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Descricao   string    `json:"descricao"`
	Text        string    `json:"text"`
	Embedding   []float64 `json:"embedding"`
}

type bankLineJSON struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding"`
	Metadata  struct {
		NomeOriginal string `json:"nome_original"`
		Nome         string `json:"nome"`
		Codigo       string `json:"codigo"`
	} `json:"metadata"`
}

// LoadCodeBank reads <dir>/<chapter>.json, falling back to <dir>/<chapter>.jsonl.
// Entries without a code or an embedding are skipped.
func LoadCodeBank(dir, chapter string) ([]CodeEntry, error) {
	if chapter == "" || filepath.Base(chapter) != chapter || strings.HasPrefix(chapter, ".") {
		return nil, fmt.Errorf("invalid chapter %q", chapter)
	}
	base := filepath.Join(dir, chapter)

	data, err := os.ReadFile(base + ".json")
	if err == nil {
		return parseBankArray(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read code bank %s: %w", chapter, err)
	}

	data, err = os.ReadFile(base + ".jsonl")
	if err == nil {
		return parseBankLines(data)
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: chapter %s", ErrCodeBankNotFound, chapter)
	}
	return nil, fmt.Errorf("read code bank %s: %w", chapter, err)
}

func parseBankArray(data []byte) ([]CodeEntry, error) {
	var raw []bankEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse code bank: %w", err)
	}
	entries := make([]CodeEntry, 0, len(raw))
	for _, item := range raw {
		entry := CodeEntry{
			Code:        firstNonEmpty(item.Code, item.Codigo),
			Title:       item.Title,
			Description: firstNonEmpty(item.Description, item.Descricao),
			Text:        item.Text,
			Embedding:   item.Embedding,
		}
		if entry.Code == "" || len(entry.Embedding) == 0 {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseBankLines(data []byte) ([]CodeEntry, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var entries []CodeEntry
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var item bankLineJSON
		if err := json.Unmarshal(text, &item); err != nil {
			return nil, fmt.Errorf("parse code bank line %d: %w", line, err)
		}
		entry := CodeEntry{
			Code:      firstNonEmpty(item.Metadata.Codigo, item.ID),
			Title:     firstNonEmpty(item.Metadata.NomeOriginal, item.Metadata.Nome),
			Text:      item.Text,
			Embedding: item.Embedding,
		}
		if entry.Code == "" || len(entry.Embedding) == 0 {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan code bank: %w", err)
	}
	return entries, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
