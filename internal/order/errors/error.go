// Package errors provides error types for order persistence operations.
package errors

import "errors"

var ErrCreateOrder = errors.New("failed to create order")
var ErrCreateOrderItem = errors.New("failed to create order item")
var ErrDuplicateIdempotencyKey = errors.New("an order with this idempotency key already exists")

var ErrUpdateOrder = errors.New("failed to update order")
var ErrInvalidTransition = errors.New("status transition not allowed")

var ErrOrderNotFound = errors.New("order not found")
var ErrFailedToFindOrder = errors.New("failed to find order")
var ErrFailedToFindUserOrders = errors.New("failed to find user orders")
var ErrFailedToFindOrderItems = errors.New("failed to find order items")

var ErrTransactionBegin = errors.New("failed to begin transaction")
var ErrTransactionCommit = errors.New("failed to commit transaction")
var ErrTransactionRollback = errors.New("failed to rollback transaction")

var ErrAccessDenied = errors.New("access denied")
