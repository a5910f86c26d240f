// Package verification handles doctor credential review: document uploads,
// the admin review queue, and approve/reject decisions.
package verification

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/identity"
	"github.com/carebook/carebook/internal/platform/blobstore"
	"github.com/carebook/carebook/internal/platform/notification"
)

var (
	ErrNotPending      = errors.New("doctor is not pending verification")
	ErrMissingReason   = errors.New("a rejection reason is required")
	ErrProfileNotFound = errors.New("doctor profile not found")
)

// Notifier sends templated notifications. Satisfied by notification.Manager.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

type Service struct {
	store    blobstore.BlobStore
	doctors  identity.DoctorProfileRepository
	accounts identity.AccountRepository
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(store blobstore.BlobStore, doctors identity.DoctorProfileRepository, accounts identity.AccountRepository, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		doctors:  doctors,
		accounts: accounts,
		notifier: notifier,
		logger:   logger,
	}
}

// UploadDocument stores a credential document for the doctor's account.
func (s *Service) UploadDocument(ctx context.Context, ownerID uuid.UUID, fileName, contentType, category string, content io.Reader) (*blobstore.BlobMetadata, error) {
	meta := blobstore.BlobMetadata{
		FileName:    fileName,
		ContentType: contentType,
		Category:    category,
		OwnerID:     ownerID.String(),
	}
	return s.store.Upload(ctx, meta, content)
}

// ListDocuments returns the documents uploaded by an account.
func (s *Service) ListDocuments(ctx context.Context, ownerID uuid.UUID, category string, limit, offset int) ([]*blobstore.BlobMetadata, int, error) {
	return s.store.ListByOwner(ctx, ownerID.String(), category, limit, offset)
}

// OpenDocument returns a document's content and metadata.
func (s *Service) OpenDocument(ctx context.Context, id string) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	return s.store.Download(ctx, id)
}

// DeleteDocument removes a document.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// GetDocumentMetadata returns a document's metadata without content.
func (s *Service) GetDocumentMetadata(ctx context.Context, id string) (*blobstore.BlobMetadata, error) {
	return s.store.GetMetadata(ctx, id)
}

// PendingReview is a queue entry: the profile under review plus the account
// holder's name and their uploaded documents.
type PendingReview struct {
	Profile   *identity.DoctorProfile   `json:"profile"`
	FirstName string                    `json:"first_name"`
	LastName  string                    `json:"last_name"`
	Email     string                    `json:"email"`
	Documents []*blobstore.BlobMetadata `json:"documents"`
}

// ListPending returns the admin review queue, oldest submissions first.
func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*PendingReview, int, error) {
	profiles, total, err := s.doctors.ListPending(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*PendingReview, 0, len(profiles))
	for _, p := range profiles {
		entry := &PendingReview{Profile: p}
		if acct, err := s.accounts.GetByID(ctx, p.AccountID); err == nil {
			entry.FirstName = acct.FirstName
			entry.LastName = acct.LastName
			entry.Email = acct.Email
		}
		docs, _, err := s.store.ListByOwner(ctx, p.AccountID.String(), "", 50, 0)
		if err == nil {
			entry.Documents = docs
		}
		out = append(out, entry)
	}
	return out, total, nil
}

// Approve marks a pending doctor as verified and notifies them. Only pending
// profiles can be approved.
func (s *Service) Approve(ctx context.Context, profileID uuid.UUID) (*identity.DoctorProfile, error) {
	return s.decide(ctx, profileID, identity.VerificationApproved, nil)
}

// Reject marks a pending doctor as rejected with a reason and notifies them.
func (s *Service) Reject(ctx context.Context, profileID uuid.UUID, reason string) (*identity.DoctorProfile, error) {
	if reason == "" {
		return nil, ErrMissingReason
	}
	return s.decide(ctx, profileID, identity.VerificationRejected, &reason)
}

func (s *Service) decide(ctx context.Context, profileID uuid.UUID, status string, reason *string) (*identity.DoctorProfile, error) {
	profile, err := s.doctors.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if profile.VerificationStatus != identity.VerificationPending {
		return nil, ErrNotPending
	}

	if err := s.doctors.SetVerificationStatus(ctx, profileID, status, reason); err != nil {
		return nil, fmt.Errorf("updating verification status: %w", err)
	}
	profile.VerificationStatus = status
	profile.RejectionReason = reason

	s.notifyDecision(ctx, profile, status, reason)
	return profile, nil
}

// notifyDecision emails the doctor about the outcome. Failures are logged,
// never surfaced.
func (s *Service) notifyDecision(ctx context.Context, profile *identity.DoctorProfile, status string, reason *string) {
	if s.notifier == nil {
		return
	}
	acct, err := s.accounts.GetByID(ctx, profile.AccountID)
	if err != nil {
		s.logger.Warn().Err(err).Str("profile_id", profile.ID.String()).Msg("looking up doctor account for decision notice")
		return
	}

	templateID := notification.TemplateDoctorApproved
	data := map[string]string{"doctor_name": acct.FullName()}
	if status == identity.VerificationRejected {
		templateID = notification.TemplateDoctorRejected
		if reason != nil {
			data["reason"] = *reason
		}
	}

	if _, err := s.notifier.SendFromTemplate(ctx, templateID, data, acct.Email); err != nil {
		s.logger.Warn().Err(err).Str("template", templateID).Msg("sending verification decision notice")
	}
}
