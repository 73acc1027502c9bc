package services

import (
	"strings"
	"testing"

	"github.com/skaiser/nebenkosten-billing/backend/models"
)

func TestGenerateEPCQRData(t *testing.T) {
	statement := models.Statement{
		StatementNumber: "NK-1-2-20250831120000",
		BalanceCents:    -24350,
		Currency:        "EUR",
	}
	settings := models.BillingSettings{
		BankIBAN:          "DE89 3704 0044 0532 0130 00",
		BankAccountHolder: "Hausverwaltung Schmidt GmbH",
	}

	data := generateEPCQRData(statement, settings)
	if data == "" {
		t.Fatal("expected QR payload, got empty string")
	}

	lines := strings.Split(data, "\n")
	if len(lines) != 11 {
		t.Fatalf("EPC payload must have 11 lines, got %d", len(lines))
	}

	if lines[0] != "BCD" || lines[1] != "002" || lines[3] != "SCT" {
		t.Errorf("wrong EPC header: %v", lines[:4])
	}
	if lines[6] != "DE89370400440532013000" {
		t.Errorf("IBAN not normalized: %s", lines[6])
	}
	if lines[7] != "EUR243.50" {
		t.Errorf("amount line = %s, want EUR243.50", lines[7])
	}
	if !strings.Contains(lines[10], statement.StatementNumber) {
		t.Errorf("remittance line missing statement number: %s", lines[10])
	}
}

func TestGenerateEPCQRDataRejectsShortIBAN(t *testing.T) {
	statement := models.Statement{BalanceCents: -1000}
	settings := models.BillingSettings{BankIBAN: "DE89", BankAccountHolder: "X"}

	if data := generateEPCQRData(statement, settings); data != "" {
		t.Errorf("expected empty payload for invalid IBAN, got %q", data)
	}
}

func TestFormatCents(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{123456, "1234,56 EUR"},
		{5, "0,05 EUR"},
		{-15000, "-150,00 EUR"},
		{0, "0,00 EUR"},
	}
	for _, tc := range cases {
		if got := formatCents(tc.cents, "EUR"); got != tc.want {
			t.Errorf("formatCents(%d) = %s, want %s", tc.cents, got, tc.want)
		}
	}
}

func TestDistributionKeyLabel(t *testing.T) {
	if got := distributionKeyLabel("area"); got != "Wohnflaeche" {
		t.Errorf("area label = %s", got)
	}
	if got := distributionKeyLabel("unknown_key"); got != "unknown_key" {
		t.Errorf("unknown key should pass through, got %s", got)
	}
}
