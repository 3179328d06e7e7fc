package bills

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/route"
	"github.com/zombor/billed/internal/session"
)

// DisplayBill is a bill ready to be shown in the list
type DisplayBill struct {
	bill.Bill
	FormattedDate string
	StatusLabel   string
}

// FormatForDisplay returns bills newest first with their date and status formatted.
// The input slice is left untouched. Bills with the same date keep their relative order.
func FormatForDisplay(bills []*bill.Bill) []DisplayBill {
	type entry struct {
		bill   *bill.Bill
		date   time.Time
		parsed bool
	}

	entries := make([]entry, 0, len(bills))
	for _, b := range bills {
		if b == nil {
			continue
		}
		date, err := time.Parse(bill.DateLayout, strings.TrimSpace(b.Date))
		entries = append(entries, entry{bill: b, date: date, parsed: err == nil})
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		switch {
		case a.parsed && b.parsed:
			return b.date.Compare(a.date)
		case a.parsed:
			return -1
		case b.parsed:
			return 1
		default:
			return cmp.Compare(b.bill.Date, a.bill.Date)
		}
	})

	display := make([]DisplayBill, len(entries))
	for i, e := range entries {
		formatted, err := bill.FormatDate(e.bill.Date)
		if err != nil {
			slog.Warn("Unable to format bill date", "id", e.bill.ID, "date", e.bill.Date, "error", err)
			formatted = e.bill.Date
		}
		display[i] = DisplayBill{
			Bill:          *e.bill,
			FormattedDate: formatted,
			StatusLabel:   bill.FormatStatus(e.bill.Status),
		}
	}
	return display
}

// Store is the part of the bill store the list page needs
type Store interface {
	List(ctx context.Context, email string) ([]*bill.Bill, error)
	Download(ctx context.Context, fileURL string) ([]byte, string, error)
}

// Session gives the logged-in user
type Session interface {
	User() (*session.User, error)
}

// Proof is a receipt image opened from the list
type Proof struct {
	Data        []byte
	ContentType string
}

// Bills is the employee bill list page
type Bills struct {
	store     Store
	session   Session
	navigator route.Navigator
}

// New creates the bill list page
func New(store Store, session Session, navigator route.Navigator) *Bills {
	return &Bills{
		store:     store,
		session:   session,
		navigator: navigator,
	}
}

// GetBills fetches the bills of the logged-in user, ready for display.
// Store failures are returned as they are so their message can be shown.
func (b *Bills) GetBills(ctx context.Context) ([]DisplayBill, error) {
	user, err := b.session.User()
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	list, err := b.store.List(ctx, user.Email)
	if err != nil {
		slog.Error("Error fetching bills", "email", user.Email, "error", err)
		return nil, err
	}

	return FormatForDisplay(list), nil
}

// HandleClickNewBill opens the new bill page
func (b *Bills) HandleClickNewBill() {
	b.navigator.Navigate(route.NewBill)
}

// HandleClickIconEye downloads the receipt behind fileURL
func (b *Bills) HandleClickIconEye(ctx context.Context, fileURL string) (*Proof, error) {
	if fileURL == "" {
		return nil, fmt.Errorf("opening proof: %w", bill.ErrNotFound)
	}

	data, contentType, err := b.store.Download(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	return &Proof{Data: data, ContentType: contentType}, nil
}
