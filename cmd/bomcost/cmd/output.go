package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bitfantasy/nimo-bom/internal/costing"
	"github.com/bitfantasy/nimo-bom/internal/margin"
	"github.com/shopspring/decimal"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printExplosion(w io.Writer, e *costing.Explosion) error {
	fmt.Fprintf(w, "BOM %d %s (depth %d, base %s)\n\n", e.BOMID, e.BOMName, e.Depth, e.BaseCurrency)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tSKU\tNAME\tQTY\tEXT QTY\tUNIT PRICE\tCUR\tTOTAL\tTOTAL (BASE)\tNOTE")
	for _, l := range e.Lines {
		fmt.Fprintf(tw, "%d\t%s%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.Level,
			strings.Repeat("  ", l.Level-1), l.SKU,
			l.Name,
			l.Quantity.String(),
			l.ExtendedQuantity.String(),
			nullString(l.UnitPrice, -1),
			l.Currency,
			nullString(l.LineTotal, -1),
			nullString(l.LineTotalBase, costing.TotalScale),
			note(l),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(e.Aggregate) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SKU\tNAME\tUNIT\tTOTAL QTY")
		for _, a := range e.Aggregate {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.SKU, a.Name, a.Unit, a.Quantity.String())
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	for _, t := range e.TotalsByCurrency {
		fmt.Fprintf(w, "  %s %s\n", t.Total.String(), t.Currency)
	}
	fmt.Fprintf(w, "Total: %s %s\n", e.TotalPrice.StringFixed(costing.TotalScale), e.TotalCurrency)
	if e.FXDegraded {
		fmt.Fprintln(w, "warning: exchange rates unavailable, total covers base-currency lines only")
	}
	if e.Unconvertible > 0 {
		fmt.Fprintf(w, "warning: %d line(s) could not be converted to %s\n", e.Unconvertible, e.BaseCurrency)
	}
	return nil
}

func printMargins(w io.Writer, items []margin.BOMMargin) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBOM\tCUR\tCOST\tLIST PRICE\tMARGIN\tMARGIN %\tERROR")
	for _, m := range items {
		pct := "-"
		if m.MarginPct.Valid {
			pct = m.MarginPct.Decimal.Mul(decimal.NewFromInt(100)).StringFixed(2)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.BOMID, m.BOMName, m.Currency,
			m.Cost.StringFixed(costing.TotalScale),
			nullString(m.ListPrice, costing.TotalScale),
			nullString(m.Margin, costing.TotalScale),
			pct,
			m.Error,
		)
	}
	return tw.Flush()
}

// nullString places 为负时原样输出
func nullString(v decimal.NullDecimal, places int32) string {
	if !v.Valid {
		return "-"
	}
	if places < 0 {
		return v.Decimal.String()
	}
	return v.Decimal.StringFixed(places)
}

func note(l costing.Line) string {
	switch {
	case l.HasSubBOM:
		return "sub-assembly"
	case l.PriceUnresolved:
		return "no price"
	case l.Unconvertible:
		return "no fx rate"
	}
	return ""
}
