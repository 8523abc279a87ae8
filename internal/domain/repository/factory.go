package repository

// Factory describes access to the domain repositories.
type Factory interface {
	Tables() TableRepository
	Sessions() SessionRepository
	Orders() OrderRepository
	Payments() PaymentRepository
}
