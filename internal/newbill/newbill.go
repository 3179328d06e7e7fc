package newbill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/route"
	"github.com/zombor/billed/internal/session"
)

const (
	// MsgNoFileSelected is shown when the file picker comes back empty
	MsgNoFileSelected = "Aucun fichier n'a été sélectionné."

	// MsgUnsupportedFile is shown when the receipt is not a PNG or JPEG image
	MsgUnsupportedFile = "Le fichier n'est pas une image JPG ou PNG."
)

var (
	// ErrNoFileSelected is returned when no file was chosen
	ErrNoFileSelected = errors.New("no file selected")

	// ErrUnsupportedFileType is returned when the chosen file is not a PNG or JPEG image
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrParse is returned when a numeric form field cannot be read
	ErrParse = errors.New("invalid number")
)

var (
	acceptedTypes      = []string{"image/png", "image/jpeg"}
	acceptedExtensions = map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
	}
)

// Store is the part of the bill store the new bill page needs
type Store interface {
	Create(ctx context.Context, file *bill.File, email string) (*bill.Upload, error)
	Update(ctx context.Context, id string, b *bill.Bill) (*bill.Bill, error)
}

// Session gives the logged-in user
type Session interface {
	User() (*session.User, error)
}

// Alerter shows a blocking message to the user
type Alerter interface {
	Alert(message string)
}

// Form holds the new bill form fields as typed by the user
type Form struct {
	Type       string
	Name       string
	Amount     string
	Date       string
	VAT        string
	Pct        string
	Commentary string
}

// NewBill is the new bill page: receipt upload then bill submission
type NewBill struct {
	store     Store
	session   Session
	navigator route.Navigator
	alerter   Alerter

	billID   string
	fileURL  string
	fileName string
}

// New creates the new bill page
func New(store Store, session Session, navigator route.Navigator, alerter Alerter) *NewBill {
	return &NewBill{
		store:     store,
		session:   session,
		navigator: navigator,
		alerter:   alerter,
	}
}

// BillID returns the key the store gave to the uploaded receipt
func (n *NewBill) BillID() string { return n.billID }

// FileURL returns the address of the uploaded receipt
func (n *NewBill) FileURL() string { return n.fileURL }

// FileName returns the name of the uploaded receipt
func (n *NewBill) FileName() string { return n.fileName }

// HandleChangeFile checks the chosen receipt and uploads it to the store
func (n *NewBill) HandleChangeFile(ctx context.Context, file *bill.File) error {
	if file == nil {
		n.alerter.Alert(MsgNoFileSelected)
		return ErrNoFileSelected
	}

	name := bill.BaseName(file.Name)
	ext := strings.ToLower(filepath.Ext(name))
	contentType := strings.ToLower(strings.TrimSpace(file.Type))
	if contentType == "" {
		contentType = acceptedExtensions[ext]
	}

	if _, ok := acceptedExtensions[ext]; !ok || !slices.Contains(acceptedTypes, contentType) {
		n.alerter.Alert(MsgUnsupportedFile)
		return fmt.Errorf("%w: %s (%s)", ErrUnsupportedFileType, name, contentType)
	}

	user, err := n.session.User()
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}

	upload, err := n.store.Create(ctx, &bill.File{Name: name, Type: contentType, Data: file.Data}, user.Email)
	if err != nil {
		slog.Error("Error uploading receipt", "file", name, "error", err)
		return err
	}

	n.billID = upload.Key
	n.fileURL = upload.FileURL
	n.fileName = name
	slog.Info("Receipt uploaded", "key", upload.Key, "file", name)
	return nil
}

// HandleSubmit sends the completed bill to the store, then goes back to the bill list
func (n *NewBill) HandleSubmit(ctx context.Context, form Form) (*bill.Bill, error) {
	amount, err := strconv.Atoi(strings.TrimSpace(form.Amount))
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", ErrParse, form.Amount)
	}

	pct, err := strconv.Atoi(strings.TrimSpace(form.Pct))
	if err != nil {
		pct = bill.DefaultPct
	}

	user, err := n.session.User()
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	record := &bill.Bill{
		Email:      user.Email,
		Type:       form.Type,
		Name:       form.Name,
		Amount:     amount,
		Date:       strings.TrimSpace(form.Date),
		VAT:        form.VAT,
		Pct:        pct,
		Commentary: form.Commentary,
		FileURL:    n.fileURL,
		FileName:   n.fileName,
		Status:     bill.StatusPending,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	updated, err := n.store.Update(ctx, n.billID, record)
	if err != nil {
		slog.Error("Error submitting bill", "key", n.billID, "error", err)
		return nil, err
	}

	n.navigator.Navigate(route.Bills)
	return updated, nil
}
