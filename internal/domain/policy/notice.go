package policy

import (
	"context"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// WriteNotice renders a one-page renewal notice for the policy.
func (s *Service) WriteNotice(ctx context.Context, id string, w io.Writer) error {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()
	class := s.classify(rec, now)

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Insurance Renewal Notice")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Date: %s", now.Format(dateLayout)))
	pdf.Ln(10)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Policy holder: %s", rec.HolderName)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Vehicle: %s %s", rec.VehicleNumber, rec.VehicleType))
	pdf.Ln(7)
	if rec.PolicyNumber != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Policy number: %s", rec.PolicyNumber))
		pdf.Ln(7)
	}
	if rec.Insurer != "" {
		pdf.Cell(0, 8, tr(fmt.Sprintf("Insurer: %s", rec.Insurer)))
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Cover: %s to %s", rec.StartDate.Format(dateLayout), rec.ExpiryDate.Format(dateLayout)))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Status: %s (%d days remaining)", class.Status.Label(), class.DaysRemaining))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, "Please renew the policy before the expiry date at your nearest Common Service Centre to avoid a lapse in cover.", "", "L", false)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render notice: %w", err)
	}
	return nil
}
