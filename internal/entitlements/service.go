package entitlements

import (
	"context"
	"strings"

	"github.com/google/uuid"
	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/models"
)

const providerMidtrans = "midtrans"

// SnapCreator opens a Midtrans Snap transaction. *snap.Client satisfies it.
type SnapCreator interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// NewSnapClient builds a Snap client for the sandbox or production environment.
func NewSnapClient(serverKey string, production bool) *snap.Client {
	var c snap.Client
	if production {
		c.New(serverKey, midtrans.Production)
	} else {
		c.New(serverKey, midtrans.Sandbox)
	}
	return &c
}

// Service verifies entitlements and prepares checkouts.
type Service struct {
	payments PaymentStore
	snap     SnapCreator
	logger   *zap.Logger
}

// NewService creates an entitlement service. snapClient may be nil, in which case
// checkout descriptors carry only the price.
func NewService(payments PaymentStore, snapClient SnapCreator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{payments: payments, snap: snapClient, logger: logger}
}

// Verified reports whether userID has paid for courseID.
func (s *Service) Verified(ctx context.Context, courseID, userID uuid.UUID) (bool, error) {
	return s.payments.HasCompleted(ctx, courseID, userID)
}

// Checkout builds the descriptor sent with payment-required. When Midtrans is configured
// it opens a Snap transaction and records a pending payment; failures there degrade to a
// price-only descriptor.
func (s *Service) Checkout(ctx context.Context, l *models.Lecture, student models.Identity) (models.Checkout, error) {
	co := models.Checkout{
		CourseID:  l.CourseID,
		LectureID: l.ID,
		Price:     l.PriceAmount,
		Currency:  l.Currency,
	}
	if s.snap == nil || l.PriceAmount <= 0 {
		return co, nil
	}

	orderID := "course-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: l.PriceAmount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			Email: student.Email,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:       l.CourseID.String(),
			Price:    l.PriceAmount,
			Qty:      1,
			Name:     truncate(l.Title, 50),
			Category: "course",
		}},
	}
	resp, mErr := s.snap.CreateTransaction(req)
	if mErr != nil {
		s.logger.Warn("snap transaction failed",
			zap.String("lecture_id", l.ID.String()),
			zap.String("user_id", student.ID.String()),
			zap.String("error", mErr.Message))
		return co, nil
	}
	co.OrderID = orderID
	co.Token = resp.Token
	co.RedirectURL = resp.RedirectURL

	p := &models.Payment{
		CourseID:    l.CourseID,
		UserID:      student.ID,
		Provider:    providerMidtrans,
		OrderID:     orderID,
		AmountCents: l.PriceAmount,
		Currency:    l.Currency,
	}
	if err := s.payments.CreatePending(ctx, p); err != nil {
		s.logger.Warn("record pending payment failed", zap.String("order_id", orderID), zap.Error(err))
	}
	return co, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
