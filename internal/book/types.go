// Package book defines the manuscript types handed to Lectern by the reading
// application: ordered chapters containing ordered sections of text blocks.
// Parsing HTML/EPUB into this shape happens upstream; this package only loads
// and navigates the already-structured form.
package book

import (
	"encoding/json"
	"fmt"
	"os"
)

// Block is the smallest unit of chapter text (roughly a paragraph).
type Block struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Section is an ordered run of blocks within a chapter.
type Section struct {
	ID     string  `json:"id"`
	Title  string  `json:"title,omitempty"`
	Blocks []Block `json:"blocks"`
}

// Chapter is one chapter of a book with its ordered sections.
type Chapter struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Sections []Section `json:"sections"`
}

// Book is a full manuscript as delivered by the ingestion layer.
type Book struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Chapters []Chapter `json:"chapters"`
}

// Blocks returns the chapter's blocks flattened across sections, in order.
func (c *Chapter) Blocks() []Block {
	var blocks []Block
	for _, sec := range c.Sections {
		blocks = append(blocks, sec.Blocks...)
	}
	return blocks
}

// BlockCount returns the number of blocks across all sections.
func (c *Chapter) BlockCount() int {
	n := 0
	for _, sec := range c.Sections {
		n += len(sec.Blocks)
	}
	return n
}

// TotalBlocks counts blocks across every chapter of the book.
func TotalBlocks(chapters []Chapter) int {
	n := 0
	for i := range chapters {
		n += chapters[i].BlockCount()
	}
	return n
}

// Load reads a book manuscript from a JSON file.
func Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read book file %s: %w", path, err)
	}

	var b Book
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse book file %s: %w", path, err)
	}

	if b.ID == "" {
		return nil, fmt.Errorf("book file %s has no book id", path)
	}

	return &b, nil
}
