// Package export renders a trip as the reimbursement application workbook
// accounting expects, in a single-applicant and a merged-members layout.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/garyjia/trip-expense/internal/domain/subsidy"
)

// Sheet names of the two layouts
const (
	SheetSingle = "員工旅遊"
	SheetMerged = "合併申請"
)

const (
	title        = "員工自助旅遊費用申請單  Expenses Application"
	mergedSuffix = " (合併)"
	subtotalNote = "備註：小計金額因補助比例不同而可能產生無法除盡的狀況..."

	labelTotalExpense = "單據費用合計 Total Amount"
	labelTotalClaim   = "總申請金額 Apply for amortise"
	labelTotalPaid    = "付款總金額 Apply for amortise"
)

var (
	singleWidths = []float64{2, 20, 12, 30, 10, 10, 12, 12, 10, 15}
	mergedWidths = []float64{2, 12, 20, 12, 25, 5, 10, 12, 10, 15}
)

// Reimbursement is the data rendered into one workbook
type Reimbursement struct {
	Info      entity.TripInfo
	Employees []entity.Employee
	Expenses  []*entity.Expense
	// Merged adds a reporter column naming each expense's member
	Merged bool
	// Date is printed on the signature line and in the file name
	Date time.Time
}

// Config holds workbook output settings
type Config struct {
	OutputDir   string
	CompanyName string
	// FontName is an optional CJK font applied as the workbook default
	FontName string
}

// Generator writes reimbursement workbooks
type Generator struct {
	config Config
	logger *zap.Logger
}

// NewGenerator creates a generator
func NewGenerator(config Config, logger *zap.Logger) *Generator {
	return &Generator{config: config, logger: logger}
}

// FileName names the workbook of r. The location is slugged so the name
// is safe on every filesystem.
func FileName(r Reimbursement) string {
	prefix := "員工自助旅遊費用申請單"
	if r.Merged {
		prefix = "合併費用申請單"
	}
	location := slug.Make(r.Info.Location)
	if location == "" {
		location = "trip"
	}
	return fmt.Sprintf("%s_%s_%s.xlsx", prefix, location, entity.FormatDate(r.Date))
}

// Write renders r into the output directory and returns the file path
func (g *Generator) Write(ctx context.Context, r Reimbursement) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(g.config.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := g.Build(r)
	if err != nil {
		return "", err
	}
	defer file.Close()

	path := filepath.Join(g.config.OutputDir, FileName(r))
	if err := file.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}

	g.logger.Info("Reimbursement workbook written",
		zap.String("path", path),
		zap.Bool("merged", r.Merged),
		zap.Int("expenses", len(r.Expenses)))
	return path, nil
}

// Build renders r into an in-memory workbook
func (g *Generator) Build(r Reimbursement) (*excelize.File, error) {
	if r.Date.IsZero() {
		r.Date = time.Now()
	}
	r.Info.ApplyDefaults()

	file := excelize.NewFile()
	sheet := SheetSingle
	widths := singleWidths
	if r.Merged {
		sheet = SheetMerged
		widths = mergedWidths
	}
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if g.config.FontName != "" {
		if err := file.SetDefaultFont(g.config.FontName); err != nil {
			g.logger.Warn("Failed to set CJK font for workbook",
				zap.String("font", g.config.FontName),
				zap.Error(err))
		}
	}

	w := &sheetWriter{file: file, sheet: sheet}
	g.fill(w, r)
	if w.err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to fill workbook: %w", w.err)
	}

	for i, width := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := file.SetColWidth(sheet, col, col, width); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}
	if err := w.wrapHeaders(); err != nil {
		file.Close()
		return nil, err
	}
	return file, nil
}

func (g *Generator) fill(w *sheetWriter, r Reimbursement) {
	info := r.Info
	summary := subsidy.Summarize(info, r.Employees, r.Expenses)

	heading := title
	if r.Merged {
		heading += mergedSuffix
	}

	w.row("", g.config.CompanyName)
	w.row()
	w.row("", heading)
	w.row()

	w.row("", "匯款方式(下拉選單)→", info.PaymentMethod)
	w.header("", "補助資訊\n(人員、金額)", "", "出發日期", info.StartDate, "", "結束日期", info.EndDate)
	w.header("", "", "", "補助額度", ntd(info.SubsidyAmount), "", "補助方式\n(下拉選單)", info.SubsidyMethod)
	w.header("", "", "", "員工姓名", "申請補助\n(下拉選單)", "請填滿一年\n或到職日", "補助比例", "補助金額", "匯款金額")

	for _, line := range summary.Lines {
		amount := ntd(line.Subsidy)
		w.row("", "", "", line.Employee.Name, line.Employee.Apply, line.Employee.StartDate,
			ratio(line.Ratio), amount, amount)
	}

	totalSubsidy := ntd(summary.TotalSubsidy)
	if r.Merged {
		w.row("", "", "", "", "", "", "", "", "小計", totalSubsidy)
		w.row()
	} else {
		w.row("", subtotalNote, "", "", "", "", "", "", "小計", totalSubsidy)
	}

	w.header("", "地點\nLocation", info.Location)
	w.row("", "期間Period", fmt.Sprintf("%s ~ %s", info.StartDate, info.EndDate))

	if r.Merged {
		w.header("", "申報人\nReporter", "科目\nAccount", "日期\nDate", "說明\nDescription", "",
			"幣別\nCurrency", "金額\nAmount", "匯率\nEx. Rate", "新台幣\nNTD")
	} else {
		w.header("", "科目\nAccount", "日期\nDate", "說明\nDescription", "", "",
			"幣別\nCurrency", "金額\nAmount", "匯率\nEx. Rate", "新台幣\nNTD")
	}

	for _, category := range entity.Categories {
		group := byCategory(r.Expenses, category)
		if len(group) == 0 {
			if r.Merged {
				w.row("", "", string(category), "", "", "", "", "", "", int64(0))
			} else {
				w.row("", string(category), "", "", "", "", "", "", "", int64(0))
			}
			continue
		}

		for i, exp := range group {
			label := ""
			if i == 0 {
				label = string(category)
			}
			if r.Merged {
				w.row("", exp.EmployeeName, label, exp.Date, exp.Description, "",
					exp.Currency, exp.Amount, exp.ExchangeRate, ntd(exp.AmountNTD))
			} else {
				w.row("", label, exp.Date, exp.Description, "", "",
					exp.Currency, exp.Amount, exp.ExchangeRate, ntd(exp.AmountNTD))
			}
		}
	}

	totals := []struct {
		label string
		value float64
	}{
		{labelTotalExpense, summary.TotalExpense},
		{labelTotalClaim, summary.TotalClaim},
		{labelTotalPaid, summary.TotalSubsidy},
	}
	for _, t := range totals {
		if r.Merged {
			w.row("", "", t.label, "", "", "", "", "", "", ntd(t.value))
		} else {
			w.row("", t.label, "", "", "", "", "", "", "", ntd(t.value))
		}
	}

	w.row()
	w.row("", "申請人:", "(親簽)", "", "Date :", entity.FormatDate(r.Date))
}

func byCategory(expenses []*entity.Expense, category entity.Category) []*entity.Expense {
	var out []*entity.Expense
	for _, exp := range expenses {
		if exp.Category == category {
			out = append(out, exp)
		}
	}
	return out
}

// ntd truncates an amount to whole NTD for a cell
func ntd(amount float64) int64 {
	return subsidy.TruncateNTD(amount)
}

func ratio(r float64) float64 {
	return decimal.NewFromFloat(r).Round(4).InexactFloat64()
}

// sheetWriter appends rows and remembers the first error
type sheetWriter struct {
	file    *excelize.File
	sheet   string
	next    int
	headers []int
	err     error
}

func (w *sheetWriter) row(values ...interface{}) {
	w.next++
	if w.err != nil || len(values) == 0 {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, w.next)
	if err != nil {
		w.err = err
		return
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("row %d: %w", w.next, err)
	}
}

// header writes a row whose labels carry line breaks
func (w *sheetWriter) header(values ...interface{}) {
	w.row(values...)
	w.headers = append(w.headers, w.next)
}

func (w *sheetWriter) wrapHeaders() error {
	style, err := w.file.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	for _, r := range w.headers {
		if err := w.file.SetRowStyle(w.sheet, r, r, style); err != nil {
			return fmt.Errorf("failed to style row %d: %w", r, err)
		}
	}
	return nil
}
