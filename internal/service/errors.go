package service

import "errors"

var (
	ErrInsufficientRubies = errors.New("insufficient rubies")
	ErrGenerationFailed   = errors.New("image generation failed")
	ErrImageUnavailable   = errors.New("generated image unavailable")
	ErrUnknownModel       = errors.New("unknown model")

	ErrInvalidQuantity  = errors.New("invalid ruby quantity")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrPaymentPending   = errors.New("payment not paid yet")
	ErrAlreadyProcessed = errors.New("payment already processed")

	ErrSelfTransfer      = errors.New("cannot transfer to yourself")
	ErrRecipientNotFound = errors.New("recipient not found")
)
