package bill

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// IDGenerator generates unique IDs for bills
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service implements the bill store: receipts uploads, bill updates and listing
type Service struct {
	db          DB
	storage     Storage
	baseURL     string
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
// baseURL is the public address of the server, used to build file URLs.
func NewService(db DB, storage Storage, baseURL string) *Service {
	return NewServiceWithDeps(db, storage, baseURL, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, baseURL string, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = BaseName(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "bill"
	}

	return base + ext
}

// BaseName strips any directory part of a file name, whichever separator the client used
func BaseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// FileURL returns the address where the receipt of bill id is served
func (s *Service) FileURL(id string) string {
	return fmt.Sprintf("%s/api/bills/%s/file", s.baseURL, id)
}

// CreateBill stores a receipt and creates the draft bill it belongs to
func (s *Service) CreateBill(ctx context.Context, filename string, data []byte, email string) (*Upload, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	mime := mimetype.Detect(data)
	if !mime.Is("image/png") && !mime.Is("image/jpeg") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, mime.String())
	}
	contentType := mime.String()

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	key, err := s.storage.Save(ctx, fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data, contentType)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	bill := &Bill{
		ID:          id,
		Email:       email,
		FileURL:     s.FileURL(id),
		FileName:    BaseName(filename),
		FileKey:     key,
		ContentType: contentType,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveBill(bill); err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			slog.Warn("Failed to clean up file", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}

	slog.Info("Bill created", "id", id, "email", email, "file", bill.FileName)
	return &Upload{FileURL: bill.FileURL, Key: id, FileName: bill.FileName}, nil
}

// UpdateBill replaces the submitted fields of bill id. An empty id stores a new bill.
func (s *Service) UpdateBill(ctx context.Context, id string, in *Bill) (*Bill, error) {
	now := s.timeSource.Now()
	bill := *in

	if id == "" {
		bill.ID = s.idGenerator.Generate()
		bill.FileKey = ""
		bill.ContentType = ""
		bill.CreatedAt = now
	} else {
		existing, err := s.db.GetBill(id)
		if err != nil {
			return nil, fmt.Errorf("getting bill: %w", err)
		}
		bill.ID = existing.ID
		bill.FileKey = existing.FileKey
		bill.ContentType = existing.ContentType
		bill.CreatedAt = existing.CreatedAt
		if bill.Email == "" {
			bill.Email = existing.Email
		}
		if bill.FileURL == "" {
			bill.FileURL = existing.FileURL
		}
		if bill.FileName == "" {
			bill.FileName = existing.FileName
		}
	}

	if bill.Status == "" {
		bill.Status = StatusPending
	}
	bill.UpdatedAt = now

	if err := bill.Validate(); err != nil {
		return nil, err
	}

	if err := s.db.SaveBill(&bill); err != nil {
		return nil, fmt.Errorf("saving bill to database: %w", err)
	}

	slog.Info("Bill updated", "id", bill.ID, "status", bill.Status)
	return &bill, nil
}

// GetBill retrieves a bill by ID
func (s *Service) GetBill(_ context.Context, id string) (*Bill, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	return bill, nil
}

// ListBills returns the bills of owner, or all bills when owner is empty
func (s *Service) ListBills(_ context.Context, owner string) ([]*Bill, error) {
	bills, err := s.db.ListBills(owner)
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	return bills, nil
}

// DeleteBill removes a bill and its receipt
func (s *Service) DeleteBill(ctx context.Context, id string) error {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return fmt.Errorf("getting bill for deletion: %w", err)
	}

	if bill.FileKey != "" {
		if err := s.storage.Delete(ctx, bill.FileKey); err != nil {
			// Log error but continue with database deletion
			slog.Warn("Failed to delete file", "key", bill.FileKey, "error", err)
		}
	}

	if err := s.db.DeleteBill(id); err != nil {
		return fmt.Errorf("deleting bill from database: %w", err)
	}
	return nil
}

// GetBillFile retrieves the receipt of a bill and its content type
func (s *Service) GetBillFile(ctx context.Context, id string) ([]byte, string, error) {
	bill, err := s.db.GetBill(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill: %w", err)
	}
	if bill.FileKey == "" {
		return nil, "", fmt.Errorf("bill %s has no file: %w", id, ErrNotFound)
	}

	data, err := s.storage.Get(ctx, bill.FileKey)
	if err != nil {
		return nil, "", fmt.Errorf("getting bill file: %w", err)
	}

	return data, bill.ContentType, nil
}
