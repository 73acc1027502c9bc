package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"github.com/skaiser/nebenkosten-billing/backend/models"
)

// PDFGenerator renders settlement statements. Statements with an amount
// owed by the tenant get an EPC QR code (GiroCode) page so the balance can
// be paid by scanning.
type PDFGenerator struct {
	outputDir string
}

func NewPDFGenerator(outputDir string) *PDFGenerator {
	return &PDFGenerator{outputDir: outputDir}
}

// GenerateStatementPDF writes one statement to disk and returns the file
// name relative to the output directory.
func (pg *PDFGenerator) GenerateStatementPDF(statement models.Statement, unit models.Unit, settings models.BillingSettings) (string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 123, 255)
	pdf.Cell(0, 10, "Nebenkostenabrechnung")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 6, "#"+statement.StatementNumber)
	pdf.Ln(10)

	// Sender
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(0, 0, 0)
	if settings.SenderName != "" {
		pdf.Cell(0, 5, settings.SenderName)
		pdf.Ln(4)
		pdf.SetFont("Arial", "", 9)
		if settings.SenderAddress != "" {
			pdf.Cell(0, 4, settings.SenderAddress)
			pdf.Ln(4)
		}
		if settings.SenderZip != "" || settings.SenderCity != "" {
			pdf.Cell(0, 4, settings.SenderZip+" "+settings.SenderCity)
			pdf.Ln(4)
		}
		if settings.SenderCountry != "" {
			pdf.Cell(0, 4, settings.SenderCountry)
			pdf.Ln(8)
		}
	}

	// Recipient
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 6, "ABRECHNUNG FUER")
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(0, 0, 0)
	occupant := unit.OccupantName
	if occupant == "" {
		occupant = "Leerstand"
	}
	pdf.Cell(0, 5, occupant)
	pdf.Ln(4)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 4, fmt.Sprintf("Wohnung %s, %.1f qm, %d Person(en)", unit.UnitNumber, unit.AreaSqm, unit.PersonsCount))
	pdf.Ln(8)

	// Period
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 6, "ABRECHNUNGSZEITRAUM")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(0, 0, 0)
	pdf.Cell(0, 4, statement.PeriodStart+" bis "+statement.PeriodEnd)
	pdf.Ln(10)

	// Cost table
	pdf.SetFillColor(249, 249, 249)
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(80, 8, "Kostenart", "B", 0, "L", true, 0, "")
	pdf.CellFormat(40, 8, "Verteilerschluessel", "B", 0, "L", true, 0, "")
	pdf.CellFormat(25, 8, "Anteil", "B", 0, "R", true, 0, "")
	pdf.CellFormat(35, 8, "Betrag", "B", 0, "R", true, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 9)
	for _, line := range statement.Lines {
		pdf.CellFormat(80, 6, line.Description, "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, distributionKeyLabel(line.DistributionKey), "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.1f %%", line.SharePercent), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, formatCents(line.AmountCents, statement.Currency), "", 0, "R", false, 0, "")
		pdf.Ln(6)
	}

	pdf.Ln(4)

	// Totals
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(145, 7, "Summe Betriebskosten", "T", 0, "L", false, 0, "")
	pdf.CellFormat(35, 7, formatCents(statement.TotalAllocatedCents, statement.Currency), "T", 0, "R", false, 0, "")
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(145, 7, "Geleistete Vorauszahlungen", "", 0, "L", false, 0, "")
	pdf.CellFormat(35, 7, formatCents(statement.PrepaymentsCents, statement.Currency), "", 0, "R", false, 0, "")
	pdf.Ln(10)

	pdf.SetFillColor(249, 249, 249)
	pdf.SetFont("Arial", "B", 16)
	if statement.BalanceCents >= 0 {
		pdf.CellFormat(0, 14, "Guthaben: "+formatCents(statement.BalanceCents, statement.Currency), "", 0, "R", true, 0, "")
	} else {
		pdf.CellFormat(0, 14, "Nachzahlung: "+formatCents(-statement.BalanceCents, statement.Currency), "", 0, "R", true, 0, "")
	}
	pdf.Ln(20)

	// Payment details and QR page only when the tenant owes money
	if statement.BalanceCents < 0 && settings.BankIBAN != "" && settings.BankAccountHolder != "" {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetTextColor(0, 0, 0)
		pdf.Cell(0, 6, "ZAHLUNGSDETAILS")
		pdf.Ln(6)

		pdf.SetFont("Arial", "", 9)
		pdf.Cell(0, 4, "Bank: "+settings.BankName)
		pdf.Ln(4)
		pdf.Cell(0, 4, "Kontoinhaber: "+settings.BankAccountHolder)
		pdf.Ln(4)
		pdf.Cell(0, 4, "IBAN: "+settings.BankIBAN)
		pdf.Ln(10)

		qrData := generateEPCQRData(statement, settings)
		if qrData != "" {
			pdf.AddPage()

			pdf.SetFont("Arial", "B", 18)
			pdf.SetTextColor(0, 123, 255)
			pdf.Ln(20)
			pdf.Cell(0, 10, "GiroCode")
			pdf.Ln(15)

			tempQR := filepath.Join(os.TempDir(), fmt.Sprintf("qr_%s.png", statement.StatementNumber))
			err := qrcode.WriteFile(qrData, qrcode.Medium, 280, tempQR)
			if err == nil {
				pdf.ImageOptions(tempQR, 55, 60, 100, 100, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
				defer os.Remove(tempQR)

				pdf.Ln(110)
				pdf.SetFont("Arial", "", 10)
				pdf.SetTextColor(0, 0, 0)
				pdf.Cell(0, 5, "Abrechnung: "+statement.StatementNumber)
				pdf.Ln(5)
				pdf.Cell(0, 5, "Betrag: "+formatCents(-statement.BalanceCents, statement.Currency))
				pdf.Ln(5)
				pdf.Cell(0, 5, "IBAN: "+settings.BankIBAN)
			} else {
				log.Printf("Failed to generate QR code: %v", err)
			}
		}
	}

	if err := os.MkdirAll(pg.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create statements directory: %v", err)
	}

	filename := fmt.Sprintf("%s.pdf", statement.StatementNumber)
	path := filepath.Join(pg.outputDir, filename)

	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("failed to save PDF: %v", err)
	}

	log.Printf("Generated statement PDF: %s", filename)
	return filename, nil
}

// generateEPCQRData builds the EPC069-12 payload used by German banking
// apps (GiroCode). Empty when the IBAN does not look usable.
func generateEPCQRData(statement models.Statement, settings models.BillingSettings) string {
	iban := stripSpaces(settings.BankIBAN)
	if len(iban) < 15 {
		log.Printf("Invalid IBAN format: %s", iban)
		return ""
	}

	currency := statement.Currency
	if currency == "" {
		currency = "EUR"
	}
	amount := float64(-statement.BalanceCents) / 100

	lines := []string{
		"BCD",    // service tag
		"002",    // version
		"1",      // UTF-8
		"SCT",    // SEPA credit transfer
		"",       // BIC (optional since version 002)
		truncate(settings.BankAccountHolder, 70),
		iban,
		fmt.Sprintf("%s%.2f", currency, amount),
		"", // purpose code
		"", // structured reference
		truncate("Nebenkostenabrechnung "+statement.StatementNumber, 140),
	}

	return strings.Join(lines, "\n")
}

func distributionKeyLabel(key string) string {
	switch key {
	case "area":
		return "Wohnflaeche"
	case "persons":
		return "Personenzahl"
	case "units":
		return "Wohneinheiten"
	case "consumption":
		return "Verbrauch"
	}
	return key
}

func formatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d,%02d %s", sign, cents/100, cents%100, currency)
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
