package domain

import (
	"context"
	"errors"
)

type CreateCustomerRequest struct {
	Name            string `json:"name" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Company         string `json:"company"`
	PaymentMethodID string `json:"payment_method_id"`
}

type UpdateCustomerRequest struct {
	ID              string  `json:"-"`
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	Company         *string `json:"company"`
	PaymentMethodID *string `json:"payment_method_id"`
}

type GetCustomerRequest struct {
	ID string
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	Update(context.Context, UpdateCustomerRequest) (Customer, error)
	GetByID(context.Context, GetCustomerRequest) (Customer, error)
	List(context.Context) ([]Customer, error)
}

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrDuplicateEmail = errors.New("duplicate_email")
	ErrInvalidID      = errors.New("invalid_id")
	ErrNotFound       = errors.New("customer_not_found")
)
