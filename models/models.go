package models

import "time"

type AdminUser struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Building struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	AddressStreet  string    `json:"address_street"`
	AddressCity    string    `json:"address_city"`
	AddressZip     string    `json:"address_zip"`
	AddressCountry string    `json:"address_country"`
	Notes          string    `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Unit struct {
	ID                     int       `json:"id"`
	BuildingID             int       `json:"building_id"`
	UnitNumber             string    `json:"unit_number"`
	Floor                  string    `json:"floor"`
	AreaSqm                float64   `json:"area_sqm"`
	PersonsCount           int       `json:"persons_count"`
	OccupantName           string    `json:"occupant_name"`
	OccupantEmail          string    `json:"occupant_email"`
	OccupantPhone          string    `json:"occupant_phone"`
	MonthlyPrepaymentCents int64     `json:"monthly_prepayment_cents"`
	IsVacant               bool      `json:"is_vacant"`
	Notes                  string    `json:"notes"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

type Meter struct {
	ID               int        `json:"id"`
	Name             string     `json:"name"`
	MeterType        string     `json:"meter_type"`
	BuildingID       int        `json:"building_id"`
	UnitID           *int       `json:"unit_id"`
	SerialNumber     string     `json:"serial_number"`
	ConnectionType   string     `json:"connection_type"`
	ConnectionConfig string     `json:"connection_config"`
	Notes            string     `json:"notes"`
	LastReading      float64    `json:"last_reading"`
	LastReadingTime  *time.Time `json:"last_reading_time"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type MeterReading struct {
	ID          int       `json:"id"`
	MeterID     int       `json:"meter_id"`
	ReadingDate time.Time `json:"reading_date"`
	Value       float64   `json:"value"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

type CostItem struct {
	ID                int       `json:"id"`
	BuildingID        int       `json:"building_id"`
	Name              string    `json:"name"`
	AnnualAmountCents int64     `json:"annual_amount_cents"`
	DistributionKey   string    `json:"distribution_key"`
	ConsumptionGroup  string    `json:"consumption_group"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type BillingSettings struct {
	ID                     int       `json:"id"`
	BuildingID             int       `json:"building_id"`
	VacancyCostsToLandlord bool      `json:"vacancy_costs_to_landlord"`
	Currency               string    `json:"currency"`
	SenderName             string    `json:"sender_name"`
	SenderAddress          string    `json:"sender_address"`
	SenderCity             string    `json:"sender_city"`
	SenderZip              string    `json:"sender_zip"`
	SenderCountry          string    `json:"sender_country"`
	BankName               string    `json:"bank_name"`
	BankIBAN               string    `json:"bank_iban"`
	BankAccountHolder      string    `json:"bank_account_holder"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

type Statement struct {
	ID                  int             `json:"id"`
	StatementNumber     string          `json:"statement_number"`
	BuildingID          int             `json:"building_id"`
	UnitID              int             `json:"unit_id"`
	PeriodStart         string          `json:"period_start"`
	PeriodEnd           string          `json:"period_end"`
	TotalAllocatedCents int64           `json:"total_allocated_cents"`
	PrepaymentsCents    int64           `json:"prepayments_cents"`
	BalanceCents        int64           `json:"balance_cents"`
	Currency            string          `json:"currency"`
	Status              string          `json:"status"`
	PDFPath             string          `json:"pdf_path,omitempty"`
	Lines               []StatementLine `json:"lines,omitempty"`
	Unit                *Unit           `json:"unit,omitempty"`
	GeneratedAt         time.Time       `json:"generated_at"`
}

type StatementLine struct {
	ID              int     `json:"id"`
	StatementID     int     `json:"statement_id"`
	CostItemID      int     `json:"cost_item_id"`
	Description     string  `json:"description"`
	DistributionKey string  `json:"distribution_key"`
	SharePercent    float64 `json:"share_percent"`
	AmountCents     int64   `json:"amount_cents"`
}

type AdminLog struct {
	ID        int       `json:"id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	UserID    *int      `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}

type DashboardStats struct {
	TotalBuildings  int   `json:"total_buildings"`
	TotalUnits      int   `json:"total_units"`
	VacantUnits     int   `json:"vacant_units"`
	TotalMeters     int   `json:"total_meters"`
	ActiveMeters    int   `json:"active_meters"`
	ReadingsToday   int   `json:"readings_today"`
	TotalStatements int   `json:"total_statements"`
	OpenBalanceSum  int64 `json:"open_balance_cents"`
}
