package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/elpekaan/eventgram-api/internal/status"
	"github.com/elpekaan/eventgram-api/internal/store"
	"github.com/elpekaan/eventgram-api/models"
	"github.com/elpekaan/eventgram-api/monitoring"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	transferLockReason = "pending_transfer"
	systemActor        = "system"
)

type CreateTransferRequest struct {
	SellerID    string          `json:"seller_id"`
	TicketID    string          `json:"ticket_id"`
	BuyerEmail  string          `json:"buyer_email"`
	AskingPrice decimal.Decimal `json:"asking_price"`
	Reason      string          `json:"reason"`
}

func (r *CreateTransferRequest) validate() error {
	switch {
	case r.SellerID == "":
		return status.ErrValidation.WithMeta("field", "seller_id")
	case r.TicketID == "":
		return status.ErrValidation.WithMeta("field", "ticket_id")
	case !strings.Contains(r.BuyerEmail, "@"):
		return status.ErrValidation.WithMessage("buyer email is invalid").WithMeta("field", "buyer_email")
	case r.AskingPrice.IsNegative():
		return status.ErrValidation.WithMessage("asking price cannot be negative").WithMeta("field", "asking_price")
	}
	return nil
}

// TransferService runs the resale protocol: seller listing, venue approval, buyer
// acceptance, escrow payment and the ownership swap.
type TransferService struct {
	dispatcher
	issuer  *TicketIssuer
	clock   Clock
	policy  Policy
	monitor *monitoring.Monitor
}

func NewTransferService(deps Deps, issuer *TicketIssuer) *TransferService {
	return &TransferService{
		dispatcher: deps.dispatcher(),
		issuer:     issuer,
		clock:      deps.clock(),
		policy:     deps.Policy,
		monitor:    deps.Monitor,
	}
}

// CreateTransfer lists a ticket for resale to a named buyer and locks the ticket.
func (s *TransferService) CreateTransfer(ctx context.Context, req CreateTransferRequest) (*models.Transfer, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var transfer *models.Transfer
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		ticket, err := tx.LockTicket(req.TicketID)
		if errors.Is(err, store.ErrNotFound) {
			return status.ErrNotFound.WithMessage("ticket %s not found", req.TicketID)
		}
		if err != nil {
			return err
		}

		if err := s.checkEligible(tx, ticket, req.SellerID); err != nil {
			return err
		}

		tt, err := tx.GetTicketType(ticket.TicketTypeID)
		if err != nil {
			return err
		}
		if req.AskingPrice.GreaterThan(tt.Price) {
			return status.ErrPriceExceedsCeiling.
				WithMeta("asking_price", req.AskingPrice.StringFixed(2)).
				WithMeta("face_value", tt.Price.StringFixed(2))
		}

		buyer, err := tx.FindUserByEmail(req.BuyerEmail)
		if errors.Is(err, store.ErrNotFound) {
			return status.ErrBuyerNotFound.WithMeta("email", req.BuyerEmail)
		}
		if err != nil {
			return err
		}
		if buyer.ID == req.SellerID {
			return status.ErrSelfTransferNotAllowed
		}

		commission, sellerReceives := models.Commission(req.AskingPrice, s.policy.CommissionRate)
		now := s.clock.Now()
		stamp := models.At(now)
		transfer = &models.Transfer{
			ID:                 uuid.NewString(),
			TicketID:           ticket.ID,
			FromUserID:         req.SellerID,
			ToUserID:           buyer.ID,
			AskingPrice:        req.AskingPrice,
			PlatformCommission: commission,
			SellerReceives:     sellerReceives,
			Status:             models.TransferPendingVenueApproval,
			EscrowStatus:       models.EscrowNone,
			Reason:             req.Reason,
			ExpiresAt:          models.At(now.Add(s.policy.VenueApprovalWindow)),
			CreatedAt:          stamp,
			UpdatedAt:          stamp,
		}
		if err := tx.InsertTransfer(transfer); err != nil {
			return err
		}

		ticket.Lock(transferLockReason)
		ticket.UpdatedAt = stamp
		if err := tx.SaveTicket(ticket); err != nil {
			return err
		}

		s.notifyParties(out, transfer, NotifyTransferCreated, now)
		return nil
	})

	s.track(models.TransferPendingVenueApproval, err)
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

func (s *TransferService) checkEligible(tx *store.Tx, ticket *models.Ticket, sellerID string) error {
	ineligible := func(reason string) error {
		return status.ErrTransferIneligible.WithMeta("reason", reason)
	}

	switch {
	case ticket.OwnerID != sellerID:
		return ineligible(status.ReasonNotOwner)
	case ticket.Status != models.TicketActive:
		return ineligible(status.ReasonNotActive)
	case ticket.IsLocked:
		return ineligible(status.ReasonLocked)
	case ticket.IsTransferred:
		return ineligible(status.ReasonAlreadyTransferred)
	}

	active, err := tx.ActiveTransferIDs(ticket.ID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return ineligible(status.ReasonLocked)
	}
	return nil
}

// ApproveByVenue moves a transfer to listed once the venue operator signs off.
func (s *TransferService) ApproveByVenue(ctx context.Context, staffID, transferID string) (*models.Transfer, error) {
	var transfer *models.Transfer
	expired := false

	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		var err error
		transfer, err = s.lockTransfer(tx, transferID)
		if err != nil {
			return err
		}
		if err := s.authorizeVenueStaff(tx, staffID, transfer); err != nil {
			return err
		}
		if transfer.Status != models.TransferPendingVenueApproval {
			return status.ErrInvalidTransferState.WithMeta("status", string(transfer.Status))
		}

		now := s.clock.Now()
		if now.After(transfer.ExpiresAt.Time()) {
			expired = true
			return s.endLocked(tx, out, transfer, models.TransferExpired, expiryReason(transfer.Status), systemActor)
		}

		stamp := models.At(now)
		transfer.Status = models.TransferListed
		transfer.VenueApprovedAt = stamp
		transfer.VenueApprovedBy = staffID
		transfer.ExpiresAt = models.At(now.Add(s.policy.BuyerAcceptanceWindow))
		transfer.UpdatedAt = stamp
		if err := tx.SaveTransfer(transfer); err != nil {
			return err
		}

		s.notifyParties(out, transfer, NotifyTransferApproved, now)
		return nil
	})

	if err == nil && expired {
		err = status.ErrTransferExpired.WithMeta("transfer_id", transferID)
	}
	s.track(models.TransferListed, err)
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

// RejectByVenue refuses a transfer that has not been paid yet and unlocks the ticket.
func (s *TransferService) RejectByVenue(ctx context.Context, staffID, transferID, reason string) (*models.Transfer, error) {
	var transfer *models.Transfer
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		var err error
		transfer, err = s.lockTransfer(tx, transferID)
		if err != nil {
			return err
		}
		if err := s.authorizeVenueStaff(tx, staffID, transfer); err != nil {
			return err
		}
		if reason == "" {
			reason = "rejected by venue"
		}
		return s.endLocked(tx, out, transfer, models.TransferRejected, reason, staffID)
	})
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

// AcceptByBuyer starts the payment step. A transfer past its deadline is expired
// instead and the call fails with TRANSFER_EXPIRED.
func (s *TransferService) AcceptByBuyer(ctx context.Context, buyerID, transferID string) (*models.Transfer, error) {
	var transfer *models.Transfer
	expired := false

	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		var err error
		transfer, err = s.lockTransfer(tx, transferID)
		if err != nil {
			return err
		}
		if transfer.ToUserID != buyerID {
			return status.ErrUnauthorized.WithMessage("transfer %s is addressed to another user", transferID)
		}
		if transfer.Status != models.TransferListed {
			return status.ErrInvalidTransferState.WithMeta("status", string(transfer.Status))
		}

		now := s.clock.Now()
		if now.After(transfer.ExpiresAt.Time()) {
			expired = true
			return s.endLocked(tx, out, transfer, models.TransferExpired, expiryReason(transfer.Status), systemActor)
		}

		stamp := models.At(now)
		transfer.Status = models.TransferPendingPayment
		transfer.AcceptedAt = stamp
		transfer.ExpiresAt = models.At(now.Add(s.policy.PaymentWindow))
		transfer.UpdatedAt = stamp
		if err := tx.SaveTransfer(transfer); err != nil {
			return err
		}

		s.notifyParties(out, transfer, NotifyTransferAccepted, now)
		return nil
	})

	if err == nil && expired {
		err = status.ErrTransferExpired.WithMeta("transfer_id", transferID)
	}
	s.track(models.TransferPendingPayment, err)
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

// CompleteTransfer settles a paid transfer. Completing twice with the same payment
// transaction is a no-op.
func (s *TransferService) CompleteTransfer(ctx context.Context, transferID, paymentTransactionID string) error {
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		transfer, err := s.lockTransfer(tx, transferID)
		if err != nil {
			return err
		}
		return s.completeLocked(tx, out, transfer, paymentTransactionID)
	})
	s.track(models.TransferCompleted, err)
	return err
}

func (s *TransferService) completeLocked(tx *store.Tx, out *outbox, transfer *models.Transfer, paymentTransactionID string) error {
	if transfer.Status == models.TransferCompleted && transfer.PaymentTransactionID == paymentTransactionID {
		return nil
	}
	if transfer.Status != models.TransferPendingPayment {
		return status.ErrInvalidTransferState.WithMeta("status", string(transfer.Status))
	}

	now := s.clock.Now()
	stamp := models.At(now)

	transfer.EscrowStatus = models.EscrowHeld
	transfer.Status = models.TransferPaymentReceived
	transfer.PaymentTransactionID = paymentTransactionID

	ticket, err := tx.LockTicket(transfer.TicketID)
	if err != nil {
		return err
	}
	ticket.TransferredFrom = ticket.OwnerID
	ticket.OwnerID = transfer.ToUserID
	ticket.IsTransferred = true
	ticket.TransferredAt = stamp
	ticket.Unlock()
	if err := s.issuer.RegenerateCode(tx, ticket); err != nil {
		return err
	}

	payout := &models.Payout{
		ID:          uuid.NewString(),
		TransferID:  transfer.ID,
		SellerID:    transfer.FromUserID,
		Amount:      transfer.SellerReceives,
		Status:      models.PayoutPending,
		RequestedAt: stamp,
	}
	if err := tx.InsertPayout(payout); err != nil {
		return err
	}

	transfer.EscrowStatus = models.EscrowReleased
	transfer.Status = models.TransferCompleted
	transfer.CompletedAt = stamp
	transfer.UpdatedAt = stamp
	if err := tx.SaveTransfer(transfer); err != nil {
		return err
	}

	s.notifyParties(out, transfer, NotifyTransferCompleted, now)
	return nil
}

// CancelTransfer withdraws a listing on the seller's behalf.
func (s *TransferService) CancelTransfer(ctx context.Context, sellerID, transferID, reason string) (*models.Transfer, error) {
	var transfer *models.Transfer
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		var err error
		transfer, err = s.lockTransfer(tx, transferID)
		if err != nil {
			return err
		}
		if transfer.FromUserID != sellerID {
			return status.ErrUnauthorized.WithMessage("transfer %s belongs to another seller", transferID)
		}
		if reason == "" {
			reason = "cancelled by seller"
		}
		return s.endLocked(tx, out, transfer, models.TransferCancelled, reason, sellerID)
	})
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

// ExpireTransfer closes a transfer whose current deadline has passed. It reports
// false when the transfer is not due.
func (s *TransferService) ExpireTransfer(ctx context.Context, transferID string) (bool, error) {
	expired := false
	err := s.run(ctx, func(tx *store.Tx, out *outbox) error {
		transfer, err := s.lockTransfer(tx, transferID)
		if err != nil {
			return err
		}
		if !transfer.Status.CanTransitionTo(models.TransferExpired) {
			return status.ErrInvalidTransferState.WithMeta("status", string(transfer.Status))
		}
		if !s.clock.Now().After(transfer.ExpiresAt.Time()) {
			return nil
		}

		expired = true
		return s.endLocked(tx, out, transfer, models.TransferExpired, expiryReason(transfer.Status), systemActor)
	})
	return expired, err
}

func expiryReason(from models.TransferStatus) string {
	switch from {
	case models.TransferPendingVenueApproval:
		return "venue did not respond"
	case models.TransferListed:
		return "buyer did not accept"
	case models.TransferPendingPayment:
		return "payment timed out"
	}
	return "expired"
}

// cancelActiveForTicket cancels every non-terminal transfer on ticketID.
func (s *TransferService) cancelActiveForTicket(tx *store.Tx, out *outbox, ticketID, reason string) error {
	ids, err := tx.ActiveTransferIDs(ticketID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		transfer, err := tx.LockTransfer(id)
		if err != nil {
			return err
		}
		if !transfer.Status.CanTransitionTo(models.TransferCancelled) {
			continue
		}
		if err := s.endLocked(tx, out, transfer, models.TransferCancelled, reason, systemActor); err != nil {
			return err
		}
	}
	return nil
}

// endLocked moves a transfer into a terminal side exit and unlocks its ticket.
func (s *TransferService) endLocked(tx *store.Tx, out *outbox, transfer *models.Transfer, to models.TransferStatus, reason, by string) error {
	if !transfer.Status.CanTransitionTo(to) {
		return status.ErrInvalidTransferState.WithMeta("status", string(transfer.Status))
	}

	now := s.clock.Now()
	stamp := models.At(now)

	ticket, err := tx.LockTicket(transfer.TicketID)
	if err != nil {
		return err
	}
	if ticket.IsLocked {
		ticket.Unlock()
		ticket.UpdatedAt = stamp
		if err := tx.SaveTicket(ticket); err != nil {
			return err
		}
	}

	if transfer.EscrowStatus == models.EscrowHeld {
		transfer.EscrowStatus = models.EscrowRefunded
	}
	from := transfer.Status
	transfer.Status = to
	transfer.Reason = reason
	transfer.CancelledBy = by
	transfer.CancelledAt = stamp
	transfer.UpdatedAt = stamp
	if err := tx.SaveTransfer(transfer); err != nil {
		return err
	}

	slog.Info("Transfer closed", "transfer_id", transfer.ID, "from", from, "to", to, "reason", reason)

	kind := NotifyTransferCancelled
	switch to {
	case models.TransferRejected:
		kind = NotifyTransferRejected
	case models.TransferExpired:
		kind = NotifyTransferExpired
	}
	s.notifyParties(out, transfer, kind, now)
	s.monitor.TrackTransferTransition(string(to))
	return nil
}

func (s *TransferService) lockTransfer(tx *store.Tx, transferID string) (*models.Transfer, error) {
	transfer, err := tx.LockTransfer(transferID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.ErrNotFound.WithMessage("transfer %s not found", transferID)
	}
	return transfer, err
}

// authorizeVenueStaff walks transfer -> ticket -> event -> venue and checks the owner.
func (s *TransferService) authorizeVenueStaff(tx *store.Tx, staffID string, transfer *models.Transfer) error {
	ticket, err := tx.LockTicket(transfer.TicketID)
	if err != nil {
		return err
	}
	return authorizeEventStaff(tx, staffID, ticket.EventID)
}

func authorizeEventStaff(tx *store.Tx, staffID, eventID string) error {
	event, err := tx.GetEvent(eventID)
	if err != nil {
		return err
	}
	venue, err := tx.GetVenue(event.VenueID)
	if err != nil {
		return err
	}
	if staffID == "" || venue.OwnerID != staffID {
		return status.ErrUnauthorized.WithMessage("user is not staff for venue %s", venue.ID)
	}
	return nil
}

func (s *TransferService) notifyParties(out *outbox, t *models.Transfer, kind NotificationType, at time.Time) {
	payload := map[string]any{
		"ticket_id":    t.TicketID,
		"status":       string(t.Status),
		"asking_price": t.AskingPrice.StringFixed(2),
	}
	if t.Reason != "" {
		payload["reason"] = t.Reason
	}
	for _, user := range []string{t.FromUserID, t.ToUserID} {
		out.notify(Notification{Type: kind, UserID: user, EntityID: t.ID, Payload: payload, OccurredAt: at})
	}
}

func (s *TransferService) track(to models.TransferStatus, err error) {
	if err != nil {
		slog.Info("Transfer action rejected", "to", to, "code", status.CodeOf(err), "error", err)
		return
	}
	s.monitor.TrackTransferTransition(string(to))
}

func (s *TransferService) GetTransfer(ctx context.Context, transferID string) (*models.Transfer, error) {
	transfer, err := s.store.Read(ctx).GetTransfer(transferID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.ErrNotFound.WithMessage("transfer %s not found", transferID)
	}
	return transfer, err
}
