package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cobranca/internal/domain"
)

// GetPixQRCode returns the instant-payment QR code of a linked, pending
// charge. Payloads are served from cache until they expire.
func (s *ChargeService) GetPixQRCode(ctx context.Context, chargeID string) (*domain.PixQRCode, error) {
	if chargeID == "" {
		return nil, ErrInvalidChargeID
	}

	charge, err := s.chargeRepo.GetByID(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if !RequiresGatewaySync(charge) {
		return nil, ErrChargeNotLinked
	}
	if charge.IsPaid() {
		return nil, ErrChargeAlreadyPaid
	}

	if s.pixCache != nil {
		cached, err := s.pixCache.GetPix(ctx, chargeID)
		if err != nil {
			s.logger.Warn("pix cache read failed", zap.String("charge_id", chargeID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	var qr *domain.PixQRCode
	err = s.callGateway(ctx, func(ctx context.Context) error {
		payload, err := s.gateway.FetchPaymentQRPayload(ctx, charge.ExternalReference())
		if err != nil {
			return err
		}
		qr = &domain.PixQRCode{
			ChargeID:       chargeID,
			EncodedImage:   payload.EncodedImage,
			Payload:        payload.Payload,
			ExpirationDate: payload.ExpirationDate,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewayCommunicationFailed, err)
	}

	if s.pixCache != nil {
		if err := s.pixCache.SetPix(ctx, qr); err != nil {
			s.logger.Warn("pix cache write failed", zap.String("charge_id", chargeID), zap.Error(err))
		}
	}

	return qr, nil
}
