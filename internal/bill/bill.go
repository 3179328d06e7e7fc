package bill

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a bill or its file does not exist
	ErrNotFound = errors.New("bill not found")

	// ErrUnsupportedFileType is returned when a receipt is not a PNG or JPEG image
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// Status is the review state of a bill
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRefused  Status = "refused"
)

// DefaultPct is the VAT percentage used when none could be read from the form
const DefaultPct = 20

// Bill represents an employee expense report with its receipt
type Bill struct {
	ID          string    `json:"id,omitempty"`
	Email       string    `json:"email" validate:"required"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Amount      int       `json:"amount" validate:"gte=0"` // Amount in euros
	Date        string    `json:"date" validate:"omitempty,billdate"`
	VAT         string    `json:"vat"`
	Pct         int       `json:"pct"`
	Commentary  string    `json:"commentary"`
	FileURL     string    `json:"fileUrl"`
	FileName    string    `json:"fileName"`
	Status      Status    `json:"status" validate:"oneof=pending accepted refused"`
	FileKey     string    `json:"fileKey,omitempty"` // Path of the receipt in storage
	ContentType string    `json:"contentType,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Upload is the store's answer to a receipt upload
type Upload struct {
	FileURL  string `json:"fileUrl"`
	Key      string `json:"key"`
	FileName string `json:"fileName"`
}

// File is a receipt chosen by the employee
type File struct {
	Name string
	Type string
	Data []byte
}

// ExpenseTypes lists the usual expense categories. The type of a bill is free text.
var ExpenseTypes = []string{
	"Transports",
	"Restaurants et bars",
	"Hôtel et logement",
	"Services en ligne",
	"IT et électronique",
	"Equipement et matériel",
	"Fournitures de bureau",
}
