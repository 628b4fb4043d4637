// Package catalog imports lessons and their assets from Excel or CSV files
// into the remote store.
package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/learnsync/internal/remote"
	"github.com/example/learnsync/pkg/models"
	"github.com/xuri/excelize/v2"
)

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath          string // Path to the Excel or CSV file
	LessonIDColumn    string // Column with the lesson id
	LessonTitleColumn string // Column with the lesson title
	AssetIDColumn     string // Column with the asset id (optional, derived from the text when empty)
	TextColumn        string // Column with the word or phrase
	TranslationColumn string // Column with the translation
	SheetName         string // Name of the sheet to import
	StartRow          int    // The row to start importing from (1-based index)
	Publish           bool   // Import lessons as published and assets as approved
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		LessonIDColumn:    "A",
		LessonTitleColumn: "B",
		AssetIDColumn:     "C",
		TextColumn:        "D",
		TranslationColumn: "E",
		SheetName:         "Sheet1",
		StartRow:          2, // By default, start from the second row (skip header)
		Publish:           true,
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int      `json:"total_processed" yaml:"total_processed"`
	Lessons        int      `json:"lessons" yaml:"lessons"`
	Assets         int      `json:"assets" yaml:"assets"`
	Skipped        int      `json:"skipped" yaml:"skipped"`
	Errors         []string `json:"errors" yaml:"errors"`
}

// row is one parsed catalog line
type row struct {
	num         int
	lessonID    string
	lessonTitle string
	assetID     string
	text        string
	translation string
}

// Import reads the file at cfg.FilePath and upserts its lessons and assets.
// Row-level problems are collected in the result; only unreadable files and
// an unreachable store abort the import.
func Import(ctx context.Context, w remote.CatalogWriter, cfg ImportConfig) (*ImportResult, error) {
	var (
		rows []row
		err  error
	)
	if strings.ToLower(filepath.Ext(cfg.FilePath)) == ".csv" {
		rows, err = readCSV(cfg)
	} else {
		rows, err = readExcel(cfg)
	}
	if err != nil {
		return nil, err
	}
	return apply(ctx, w, cfg, rows)
}

// readExcel reads rows from an Excel file
func readExcel(cfg ImportConfig) ([]row, error) {
	f, err := excelize.OpenFile(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	cells, err := f.GetRows(cfg.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	var rows []row
	for i, cols := range cells {
		// Skip header rows
		if i < cfg.StartRow-1 {
			continue
		}
		rows = append(rows, parseRow(cols, cfg, i+1))
	}
	return rows, nil
}

// readCSV reads rows from a CSV file using the same column layout
func readCSV(cfg ImportConfig) ([]row, error) {
	file, err := os.Open(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows []row
	rowNum := 0
	for {
		cols, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}

		rowNum++
		if rowNum < cfg.StartRow {
			continue
		}
		rows = append(rows, parseRow(cols, cfg, rowNum))
	}
	return rows, nil
}

func parseRow(cols []string, cfg ImportConfig, num int) row {
	cell := func(column string) string {
		if column == "" {
			return ""
		}
		if idx := columnToIndex(column); idx >= 0 && idx < len(cols) {
			return strings.TrimSpace(cols[idx])
		}
		return ""
	}
	return row{
		num:         num,
		lessonID:    cell(cfg.LessonIDColumn),
		lessonTitle: cell(cfg.LessonTitleColumn),
		assetID:     cell(cfg.AssetIDColumn),
		text:        cleanText(cell(cfg.TextColumn)),
		translation: cleanText(cell(cfg.TranslationColumn)),
	}
}

func apply(ctx context.Context, w remote.CatalogWriter, cfg ImportConfig, rows []row) (*ImportResult, error) {
	result := &ImportResult{Errors: make([]string, 0)}

	lessonStatus, assetStatus := "draft", "pending"
	if cfg.Publish {
		lessonStatus, assetStatus = models.LessonStatusPublished, models.AssetStatusApproved
	}

	lessons := make(map[string]bool)
	for _, r := range rows {
		if r.lessonID == "" && r.text == "" {
			result.Skipped++
			continue
		}
		result.TotalProcessed++

		if r.lessonID == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: lesson id cannot be empty", r.num))
			continue
		}
		if r.text == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: text cannot be empty", r.num))
			continue
		}

		if !lessons[r.lessonID] {
			title := r.lessonTitle
			if title == "" {
				title = r.lessonID
			}
			lesson := models.Lesson{
				ID:       r.lessonID,
				Title:    title,
				Status:   lessonStatus,
				Position: len(lessons) + 1,
			}
			if err := w.UpsertLesson(ctx, lesson); err != nil {
				return result, fmt.Errorf("failed to store lesson %s: %w", r.lessonID, err)
			}
			lessons[r.lessonID] = true
			result.Lessons++
		}

		assetID := r.assetID
		if assetID == "" {
			assetID = r.lessonID + "-" + slug(r.text)
		}
		asset := models.Asset{
			ID:          assetID,
			LessonID:    r.lessonID,
			Text:        r.text,
			Translation: r.translation,
			Status:      assetStatus,
		}
		if err := w.UpsertAsset(ctx, asset); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: failed to store asset: %v", r.num, err))
			continue
		}
		result.Assets++
	}
	return result, nil
}

// cleanText drops trailing notes in parentheses, e.g. "go (went, gone)"
func cleanText(s string) string {
	if i := strings.Index(s, "("); i > 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// slug lowercases s and replaces anything but letters and digits with '-'
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127 {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// columnToIndex converts an Excel column letter to a 0-based index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
