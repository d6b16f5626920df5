package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// ExportTransactionsCSV streams the owner's most recent ledger entries to w
// as CSV, newest first, honoring the same limit rules as Transactions.
func (s *PortfolioService) ExportTransactionsCSV(ctx context.Context, ownerID int64, limit int, w io.Writer) error {
	lines, err := s.Transactions(ctx, ownerID, limit)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	writer.Write([]string{"timestamp", "symbol", "kind", "quantity", "unit_price", "total_value"})
	for _, line := range lines {
		writer.Write([]string{
			line.Entry.Timestamp.Format(time.RFC3339),
			line.Symbol,
			string(line.Entry.Kind),
			line.Entry.Quantity.String(),
			line.Entry.UnitPrice.String(),
			line.Entry.TotalValue().String(),
		})
	}
	if err := writer.Error(); err != nil {
		return fmt.Errorf("write transaction CSV for owner %d: %w", ownerID, err)
	}
	return nil
}
