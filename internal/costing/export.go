package costing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var explosionExportHeaders = []string{
	"层级", "料号", "名称", "单位", "用量", "累计用量",
	"单价", "币种", "小计", "本位币单价", "本位币小计", "子装配", "备注",
}

// ExportExplosion 导出展开结果为xlsx
func (s *Service) ExportExplosion(ctx context.Context, req ExplodeRequest) (*excelize.File, string, error) {
	req.Aggregate = true
	e, err := s.Explode(ctx, req)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "Explosion"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, "", fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range explosionExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for i, l := range e.Lines {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), l.Level)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), l.SKU)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), l.Name)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), l.Unit)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), l.Quantity.InexactFloat64())
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), l.ExtendedQuantity.InexactFloat64())
		setNullDecimal(f, sheet, fmt.Sprintf("G%d", row), l.UnitPrice)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), l.Currency)
		setNullDecimal(f, sheet, fmt.Sprintf("I%d", row), l.LineTotal)
		setNullDecimal(f, sheet, fmt.Sprintf("J%d", row), l.UnitPriceBase)
		setNullDecimal(f, sheet, fmt.Sprintf("K%d", row), l.LineTotalBase)
		sub := "否"
		if l.HasSubBOM {
			sub = "是"
		}
		f.SetCellValue(sheet, fmt.Sprintf("L%d", row), sub)
		f.SetCellValue(sheet, fmt.Sprintf("M%d", row), lineNote(l))
	}

	// 底部汇总行
	summaryRow := len(e.Lines) + 2
	summaryStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "汇总")
	f.SetCellValue(sheet, fmt.Sprintf("C%d", summaryRow), fmt.Sprintf("总行数: %d", len(e.Lines)))
	f.SetCellValue(sheet, fmt.Sprintf("J%d", summaryRow), e.TotalCurrency)
	f.SetCellValue(sheet, fmt.Sprintf("K%d", summaryRow), e.TotalPrice.InexactFloat64())
	if e.FXDegraded {
		f.SetCellValue(sheet, fmt.Sprintf("M%d", summaryRow), "汇率不可用，仅汇总本位币")
	}
	f.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("M%d", summaryRow), summaryStyle)

	colWidths := []float64{6, 18, 24, 6, 10, 10, 12, 6, 12, 12, 12, 8, 18}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	if len(e.Aggregate) > 0 {
		if err := writeAggregateSheet(f, e.Aggregate, headerStyle); err != nil {
			return nil, "", err
		}
	}

	filename := fmt.Sprintf("%s_explosion_%s.xlsx", e.BOMName, time.Now().Format("20060102"))
	return f, filename, nil
}

func writeAggregateSheet(f *excelize.File, totals []SKUTotal, headerStyle int) error {
	sheet := "Aggregate"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create aggregate sheet: %w", err)
	}
	for i, h := range []string{"料号", "名称", "单位", "总用量"} {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, headerStyle)
	}
	for i, t := range totals {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), t.SKU)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), t.Name)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), t.Unit)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), t.Quantity.InexactFloat64())
	}
	return nil
}

func setNullDecimal(f *excelize.File, sheet, cell string, v decimal.NullDecimal) {
	if v.Valid {
		f.SetCellValue(sheet, cell, v.Decimal.InexactFloat64())
	}
}

func lineNote(l Line) string {
	switch {
	case l.PriceUnresolved:
		return "无价格"
	case l.Unconvertible:
		return "无法折算"
	default:
		return ""
	}
}
