// Package ledgeraudit checks that every stock balance equals the signed sum
// of the movement items that touched it.
package ledgeraudit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/tillstock/tillstock-backend/pkg/logger"
)

// Mismatch is a balance that disagrees with the ledger. A key missing on one
// side counts as zero there.
type Mismatch struct {
	Key     Key
	Balance decimal.Decimal
	Ledger  decimal.Decimal
}

func (m Mismatch) Drift() decimal.Decimal {
	return m.Balance.Sub(m.Ledger)
}

type Report struct {
	Checked    int
	Mismatches []Mismatch
}

func (r Report) OK() bool { return len(r.Mismatches) == 0 }

// Compare is deterministic: mismatches are ordered by warehouse then product.
func Compare(balances, ledger map[Key]decimal.Decimal) Report {
	keys := make(map[Key]struct{}, len(balances)+len(ledger))
	for k := range balances {
		keys[k] = struct{}{}
	}
	for k := range ledger {
		keys[k] = struct{}{}
	}

	report := Report{Checked: len(keys)}
	for k := range keys {
		bal := balances[k]
		sum := ledger[k]
		if bal.Equal(sum) {
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{Key: k, Balance: bal, Ledger: sum})
	}
	sort.Slice(report.Mismatches, func(i, j int) bool {
		a, b := report.Mismatches[i].Key, report.Mismatches[j].Key
		if a.WarehouseID != b.WarehouseID {
			return bytes.Compare(a.WarehouseID[:], b.WarehouseID[:]) < 0
		}
		return bytes.Compare(a.ProductID[:], b.ProductID[:]) < 0
	})
	return report
}

type Auditor struct {
	source Source
	logg   *logger.Logger
}

func NewAuditor(source Source, logg *logger.Logger) (*Auditor, error) {
	if source == nil {
		return nil, errors.New("ledger source required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Auditor{source: source, logg: logg}, nil
}

func (a *Auditor) Run(ctx context.Context) (Report, error) {
	balances, err := a.source.Balances(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load balances: %w", err)
	}
	ledger, err := a.source.LedgerSums(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load ledger sums: %w", err)
	}

	report := Compare(balances, ledger)
	logCtx := a.logg.WithFields(ctx, map[string]any{
		"checked":    report.Checked,
		"mismatches": len(report.Mismatches),
	})
	if report.OK() {
		a.logg.Info(logCtx, "ledger audit passed")
	} else {
		a.logg.Warn(logCtx, "ledger audit found mismatches")
	}
	return report, nil
}

// WriteReport prints mismatches as an aligned table.
func WriteReport(w io.Writer, report Report) error {
	if report.OK() {
		_, err := fmt.Fprintf(w, "ok: %d balances match the ledger\n", report.Checked)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WAREHOUSE\tPRODUCT\tBALANCE\tLEDGER\tDRIFT")
	for _, m := range report.Mismatches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.Key.WarehouseID, m.Key.ProductID,
			m.Balance.String(), m.Ledger.String(), m.Drift().String())
	}
	fmt.Fprintf(tw, "%d of %d balances drifted\n", len(report.Mismatches), report.Checked)
	return tw.Flush()
}
