package models

import "errors"

var (
	ErrInvalidAddress    = errors.New("invalid wallet address format")
	ErrInvalidAmount     = errors.New("invalid verification amount")
	ErrAlreadyVerified   = errors.New("this wallet is already verified")
	ErrAddressTaken      = errors.New("this wallet is already verified by another user")
	ErrNotFound          = errors.New("verification not found")
	ErrNoVerifiedWallets = errors.New("no verified wallets found")
	ErrInvalidTransition = errors.New("invalid verification status transition")
)
