package ports

// Service is a long running component started and stopped by a binary
type Service interface {
	// Start starts the service without blocking
	Start() error

	// Stop stops the service
	Stop() error
}
